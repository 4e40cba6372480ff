package pipeline

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"podwatch/internal/catalog"
	"podwatch/internal/delivery"
	"podwatch/internal/knowledge"
	"podwatch/internal/routes"
)

type fakeAlerts struct {
	calls []delivery.AlertSummary
	err   error
}

func (f *fakeAlerts) EmitAlert(s delivery.AlertSummary) error {
	f.calls = append(f.calls, s)
	return f.err
}

type fakeVehicle struct {
	loc delivery.LatLon
}

func (f *fakeVehicle) VehicleLocation(time.Time) (delivery.LatLon, error) {
	return f.loc, nil
}

type fakeRecorder struct {
	reports []*Report
}

func (f *fakeRecorder) RecordReport(_ context.Context, r *Report) error {
	f.reports = append(f.reports, r)
	return nil
}

func testRegistry() *catalog.Registry {
	reg := catalog.New()
	reg.Register(catalog.CarrierRule{
		Carrier:        "correios",
		Keywords:       []string{"correios"},
		Primary:        regexp.MustCompile(`(?i)\bcorreios\b`),
		Secondary:      regexp.MustCompile(`(?i)\bsedex\b`),
		BaseConfidence: 0.85,
		Boost:          0.1,
		Priority:       10,
	})
	return reg
}

func testValidator() *routes.Validator {
	return routes.NewValidator([]routes.DeliveryRoute{{
		RouteID:       "R001",
		RecipientName: "Maria Souza Lima",
		CEP:           "01310-100",
		NFNumber:      "123456789",
		Location:      delivery.LatLon{Lat: -23.5505, Lon: -46.6333},
		HasGPS:        true,
		WindowStart:   "08:00",
		WindowEnd:     "18:00",
	}})
}

func newTestProcessor(t *testing.T, alerts delivery.AlertSink, recs ...Recorder) (*Processor, *knowledge.Engine) {
	t.Helper()
	store, err := knowledge.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	engine := knowledge.NewEngine(store, nil)
	proc := New(Config{
		Registry:  testRegistry(),
		Engine:    engine,
		Validator: testValidator(),
		Alerts:    alerts,
		Recorders: recs,
	})
	return proc, engine
}

func TestProcessValidDelivery(t *testing.T) {
	alerts := &fakeAlerts{}
	rec := &fakeRecorder{}
	proc, _ := newTestProcessor(t, alerts, rec)

	obs := &delivery.Observation{
		ImageRef:  "etiqueta1.jpg",
		Text:      "CORREIOS SEDEX NF-123456789 CEP 01310-100 Destinatario: Maria Souza Lima",
		Timestamp: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		// ~40 m from R001.
		DeviceGPS: delivery.LatLon{Lat: -23.55085, Lon: -46.6333},
	}

	report := proc.Process(context.Background(), obs)

	if !report.Verdict.IsValid {
		t.Errorf("IsValid = false, score %v", report.Verdict.ConfidenceScore)
	}
	if report.Verdict.ConfidenceScore < 0.9 {
		t.Errorf("ConfidenceScore = %v, want >= 0.9", report.Verdict.ConfidenceScore)
	}
	if report.MatchedRouteID != "R001" {
		t.Errorf("MatchedRouteID = %q, want R001", report.MatchedRouteID)
	}
	if report.FieldRouteID != "R001" {
		t.Errorf("FieldRouteID = %q, want R001", report.FieldRouteID)
	}
	if report.Session.LearningOutcome != knowledge.OutcomeValidated {
		t.Errorf("outcome = %q, want %q", report.Session.LearningOutcome, knowledge.OutcomeValidated)
	}
	if len(alerts.calls) != 0 {
		t.Errorf("alert emitted for valid delivery: %+v", alerts.calls)
	}
	if report.AlertSent {
		t.Error("AlertSent = true for valid delivery")
	}
	if len(rec.reports) != 1 {
		t.Errorf("recorded %d reports, want 1", len(rec.reports))
	}
}

func TestProcessUnknownFarDelivery(t *testing.T) {
	alerts := &fakeAlerts{}
	proc, engine := newTestProcessor(t, alerts)

	before := engine.Stats().CarriersLearned

	obs := &delivery.Observation{
		ImageRef:  "borrada.jpg",
		Text:      "texto ilegivel sem transportadora",
		Timestamp: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		// ~5 km north of R001.
		DeviceGPS: delivery.LatLon{Lat: -23.5055, Lon: -46.6333},
	}

	report := proc.Process(context.Background(), obs)

	if report.Verdict.IsValid {
		t.Error("IsValid = true for unknown carrier far from route")
	}
	if report.Classification.Carrier != catalog.Unknown {
		t.Errorf("Carrier = %q, want unknown", report.Classification.Carrier)
	}
	if report.Session.LearningOutcome != knowledge.OutcomeUnknownLogged {
		t.Errorf("outcome = %q, want %q", report.Session.LearningOutcome, knowledge.OutcomeUnknownLogged)
	}
	if got := engine.Stats().CarriersLearned; got != before {
		t.Errorf("CarriersLearned changed from %d to %d", before, got)
	}
	if len(alerts.calls) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(alerts.calls))
	}
	if alerts.calls[0].Carrier != catalog.Unknown {
		t.Errorf("alert carrier = %q", alerts.calls[0].Carrier)
	}
	if !report.AlertSent {
		t.Error("AlertSent = false after alert emitted")
	}
}

func TestProcessLateDelivery(t *testing.T) {
	alerts := &fakeAlerts{}
	proc, _ := newTestProcessor(t, alerts)

	obs := &delivery.Observation{
		ImageRef: "tarde.jpg",
		Text:     "correios entrega expressa",
		// 90 minutes after the window end.
		Timestamp: time.Date(2026, 1, 10, 19, 30, 0, 0, time.UTC),
		// ~100 m from R001.
		DeviceGPS: delivery.LatLon{Lat: -23.5514, Lon: -46.6333},
	}

	report := proc.Process(context.Background(), obs)

	if temporal := report.Verdict.Components[routes.ComponentTemporal]; temporal.Score != 0.2 {
		t.Errorf("temporal score = %v, want 0.2", temporal.Score)
	}
	if report.Verdict.IsValid {
		t.Errorf("IsValid = true at score %v", report.Verdict.ConfidenceScore)
	}
	// GPS was close and a route matched, so learning still counts it.
	if report.Session.LearningOutcome != knowledge.OutcomeValidated {
		t.Errorf("outcome = %q, want %q", report.Session.LearningOutcome, knowledge.OutcomeValidated)
	}
	if len(alerts.calls) != 1 {
		t.Errorf("alerts = %d, want 1", len(alerts.calls))
	}
}

func TestProcessEmptyText(t *testing.T) {
	proc, _ := newTestProcessor(t, nil)

	for _, text := range []string{"", "[ERRO: OCR falhou]"} {
		obs := &delivery.Observation{
			ImageRef:  "vazia.jpg",
			Text:      text,
			Timestamp: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
			DeviceGPS: delivery.LatLon{Lat: -23.5505, Lon: -46.6333},
		}
		report := proc.Process(context.Background(), obs)

		if report.Classification.Carrier != catalog.Unknown {
			t.Errorf("Carrier = %q for text %q, want unknown", report.Classification.Carrier, text)
		}
		if report.TextLength != 0 {
			t.Errorf("TextLength = %d for text %q, want 0", report.TextLength, text)
		}
	}
}

func TestProcessPreviewKeepsRunesIntact(t *testing.T) {
	proc, _ := newTestProcessor(t, nil)

	// Accented text sized so a byte cut at 100 would land inside a rune.
	text := "CORREIOS " + strings.Repeat("çãõé", 60)
	obs := &delivery.Observation{
		ImageRef:  "acentos.jpg",
		Text:      text,
		Timestamp: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		DeviceGPS: delivery.LatLon{Lat: -23.5505, Lon: -46.6333},
	}
	report := proc.Process(context.Background(), obs)

	if !utf8.ValidString(report.TextPreview) {
		t.Errorf("TextPreview is not valid UTF-8: %q", report.TextPreview)
	}
	if got := len([]rune(report.TextPreview)); got != 103 {
		t.Errorf("preview runes = %d, want 100 plus ellipsis", got)
	}
	if !strings.HasSuffix(report.TextPreview, "...") {
		t.Errorf("preview %q missing truncation marker", report.TextPreview)
	}
}

func TestProcessVehicleProximity(t *testing.T) {
	store, err := knowledge.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	proc := New(Config{
		Registry:  testRegistry(),
		Engine:    knowledge.NewEngine(store, nil),
		Validator: testValidator(),
		Vehicle:   &fakeVehicle{loc: delivery.LatLon{Lat: -23.5506, Lon: -46.6333}},
	})

	obs := &delivery.Observation{
		ImageRef:  "veiculo.jpg",
		Text:      "correios sedex",
		Timestamp: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		DeviceGPS: delivery.LatLon{Lat: -23.5505, Lon: -46.6333},
	}

	report := proc.Process(context.Background(), obs)

	if report.VehicleGPS == nil {
		t.Fatal("VehicleGPS not recorded")
	}
	if !report.VehicleNearby {
		t.Errorf("VehicleNearby = false at %v km", report.VehicleDistanceKm)
	}
}

func TestProcessAlertFailureDoesNotAbort(t *testing.T) {
	alerts := &fakeAlerts{err: errors.New("broker down")}
	proc, _ := newTestProcessor(t, alerts)

	obs := &delivery.Observation{
		ImageRef:  "falha.jpg",
		Text:      "texto ilegivel",
		Timestamp: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		DeviceGPS: delivery.LatLon{Lat: -23.5055, Lon: -46.6333},
	}

	report := proc.Process(context.Background(), obs)
	if report == nil {
		t.Fatal("Process returned nil on alert failure")
	}
	if report.AlertSent {
		t.Error("AlertSent = true despite emit failure")
	}
}
