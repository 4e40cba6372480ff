// Package pipeline orchestrates one observation through classification,
// validation, learning and alerting.
package pipeline

import (
	"context"
	"log"
	"time"

	"podwatch/internal/catalog"
	"podwatch/internal/delivery"
	"podwatch/internal/knowledge"
	"podwatch/internal/routes"
)

// Recorder receives finished reports for archival or analytics. Recording
// is best-effort: failures are logged and never affect the verdict.
type Recorder interface {
	RecordReport(ctx context.Context, r *Report) error
}

// Report is the consolidated outcome of processing one observation.
type Report struct {
	ImageRef  string    `json:"image_path"`
	Timestamp time.Time `json:"timestamp"`

	TextLength  int    `json:"ocr_text_length"`
	TextPreview string `json:"ocr_preview,omitempty"`

	QuickCarrier   string                 `json:"quick_carrier,omitempty"`
	Classification catalog.Classification `json:"classification"`

	Verdict        *routes.Result `json:"validation"`
	MatchedRouteID string         `json:"matched_route_id,omitempty"`
	FieldRouteID   string         `json:"field_route_id,omitempty"`

	DeviceGPS         delivery.LatLon  `json:"device_gps"`
	VehicleGPS        *delivery.LatLon `json:"vehicle_gps,omitempty"`
	VehicleDistanceKm float64          `json:"vehicle_distance_km,omitempty"`
	VehicleNearby     bool             `json:"vehicle_nearby,omitempty"`

	Session knowledge.Session       `json:"learning_session"`
	Stats   knowledge.LearningStats `json:"learning_stats"`

	AlertSent bool `json:"alert_sent"`
}

// Config wires a Processor. Registry, Engine and Validator are required;
// the collaborators are optional and skipped when nil.
type Config struct {
	Registry  *catalog.Registry
	Engine    *knowledge.Engine
	Validator *routes.Validator

	Locator   delivery.DeviceLocator
	Vehicle   delivery.VehicleLocator
	Alerts    delivery.AlertSink
	Recorders []Recorder
}

// preview truncates label text for the report. Truncation counts runes so
// accented text never yields an invalid UTF-8 tail.
func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// Processor runs observations through the full validation pipeline.
type Processor struct {
	cfg Config
}

// New creates a Processor from cfg.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Process runs one observation start to finish and always returns a
// well-formed report. Collaborator failures degrade the result, they
// never abort it.
func (p *Processor) Process(ctx context.Context, obs *delivery.Observation) *Report {
	text := obs.Text
	if !obs.HasText() {
		text = ""
	}

	report := &Report{
		ImageRef:   obs.ImageRef,
		TextLength: len(text),
	}
	report.TextPreview = preview(text, 100)

	// Shortcut cache first, full rule evaluation always.
	if quick := p.cfg.Engine.QuickRecognition(text); quick != "" {
		log.Printf("[pipeline] quick recognition hit: %s", quick)
		report.QuickCarrier = quick
	}
	report.Classification = p.cfg.Registry.Classify(text)

	device := obs.EffectiveGPS()
	if device.IsZero() && p.cfg.Locator != nil {
		if loc, err := p.cfg.Locator.DeviceLocation(); err != nil {
			log.Printf("[pipeline] device location unavailable: %v", err)
		} else {
			device = loc
		}
	}
	report.DeviceGPS = device

	ts := obs.EffectiveTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	report.Timestamp = ts

	report.Verdict = p.cfg.Validator.Validate(report.Classification, device, ts)
	if report.Verdict.MatchedRoute != nil {
		report.MatchedRouteID = report.Verdict.MatchedRoute.RouteID
	}
	if rt := p.cfg.Validator.FindRouteByFields(report.Classification.Fields); rt != nil {
		report.FieldRouteID = rt.RouteID
	}

	// Legacy two-point check against vehicle telemetry, reported alongside
	// the blended verdict.
	if p.cfg.Vehicle != nil {
		if veh, err := p.cfg.Vehicle.VehicleLocation(ts); err != nil {
			log.Printf("[pipeline] vehicle location unavailable: %v", err)
		} else {
			report.VehicleGPS = &veh
			report.VehicleDistanceKm, report.VehicleNearby = routes.ProximityValid(device, veh)
		}
	}

	gpsOK := !device.IsZero() && report.Verdict.GPSDistanceKm < 0.5 && report.Verdict.MatchedRoute != nil
	routeOK := report.Verdict.MatchedRoute != nil

	report.Session = p.cfg.Engine.ProcessSession(knowledge.SessionInput{
		ImageRef:       obs.ImageRef,
		Text:           text,
		Classification: report.Classification,
		GPSValid:       gpsOK,
		RouteMatch:     routeOK,
	})
	report.Stats = p.cfg.Engine.Stats()

	if !report.Verdict.IsValid && p.cfg.Alerts != nil {
		summary := delivery.AlertSummary{
			ImageRef:      obs.ImageRef,
			Carrier:       report.Classification.Carrier,
			Confidence:    report.Verdict.ConfidenceScore,
			GPSDistanceKm: report.Verdict.GPSDistanceKm,
			FieldsFound:   len(report.Classification.Fields),
			Warnings:      report.Verdict.Warnings,
		}
		if err := p.cfg.Alerts.EmitAlert(summary); err != nil {
			log.Printf("[pipeline] alert emit failed: %v", err)
		} else {
			report.AlertSent = true
		}
	}

	for _, rec := range p.cfg.Recorders {
		if err := rec.RecordReport(ctx, report); err != nil {
			log.Printf("[pipeline] record failed: %v", err)
		}
	}

	return report
}
