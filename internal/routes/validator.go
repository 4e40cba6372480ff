package routes

import (
	"fmt"
	"math"
	"strings"
	"time"

	"podwatch/internal/catalog"
	"podwatch/internal/delivery"
)

// Validation component names.
const (
	ComponentGPS      = "gps_match"
	ComponentOCR      = "ocr_match"
	ComponentTemporal = "temporal_match"
	ComponentPattern  = "pattern_recognition"
)

// componentWeights blend the components into the overall score. Weights
// renormalise over the components actually present, so an absent temporal
// component does not drag the score down by itself.
var componentWeights = map[string]float64{
	ComponentGPS:      0.40,
	ComponentOCR:      0.35,
	ComponentTemporal: 0.15,
	ComponentPattern:  0.10,
}

// validThreshold is the overall score required for a valid verdict.
const validThreshold = 0.70

// Component is one scored validation sub-result.
type Component struct {
	Valid   bool    `json:"valid"`
	Score   float64 `json:"score"`
	Details string  `json:"details"`
}

// Result is the full validation verdict for one observation.
type Result struct {
	IsValid         bool                 `json:"is_valid"`
	ConfidenceScore float64              `json:"confidence_score"`
	Components      map[string]Component `json:"validation_details"`
	Warnings        []string             `json:"warnings"`
	Recommendations []string             `json:"recommendations"`
	MatchedRoute    *DeliveryRoute       `json:"matched_route,omitempty"`
	GPSDistanceKm   float64              `json:"gps_distance_km"`
}

// Validator scores observations against the route table.
type Validator struct {
	routes []DeliveryRoute
}

// NewValidator creates a Validator over the given route table.
func NewValidator(routes []DeliveryRoute) *Validator {
	return &Validator{routes: routes}
}

// RouteCount returns the number of loaded routes.
func (v *Validator) RouteCount() int {
	return len(v.routes)
}

// Validate scores one classified observation against the route table and
// returns the blended verdict. It never fails: degraded inputs surface as
// low component scores and warnings.
func (v *Validator) Validate(cls catalog.Classification, device delivery.LatLon, ts time.Time) *Result {
	res := &Result{Components: make(map[string]Component)}

	res.Components[ComponentGPS] = v.validateGPS(res, device)
	res.Components[ComponentOCR] = validateFieldQuality(cls)
	if res.MatchedRoute != nil {
		res.Components[ComponentTemporal] = validateDeliveryTime(res.MatchedRoute, ts)
	}
	res.Components[ComponentPattern] = validatePatternRecognition(cls)

	res.blend()
	res.annotate(cls)
	return res
}

// validateGPS finds the nearest route and scores the device fix by distance
// band. The nearest route becomes MatchedRoute regardless of validity.
func (v *Validator) validateGPS(res *Result, device delivery.LatLon) Component {
	minDist := math.Inf(1)
	best := -1

	for i := range v.routes {
		if !v.routes[i].HasGPS {
			continue
		}
		if d := Haversine(device, v.routes[i].Location); d < minDist {
			minDist = d
			best = i
		}
	}

	if best < 0 {
		return Component{Valid: false, Score: 0,
			Details: "no routes with coordinates available"}
	}

	res.GPSDistanceKm = minDist
	res.MatchedRoute = &v.routes[best]

	switch {
	case minDist <= 0.05:
		return Component{Valid: true, Score: 1.0,
			Details: fmt.Sprintf("exact GPS fix, %.0fm away", minDist*1000)}
	case minDist <= 0.2:
		return Component{Valid: true, Score: 0.8,
			Details: fmt.Sprintf("near route, %.0fm away", minDist*1000)}
	case minDist <= 0.5:
		return Component{Valid: true, Score: 0.6,
			Details: fmt.Sprintf("acceptable distance, %.0fm away", minDist*1000)}
	default:
		return Component{Valid: false, Score: math.Max(0, 0.5-minDist*0.1),
			Details: fmt.Sprintf("suspicious GPS fix, %.1fkm away", minDist)}
	}
}

// validateFieldQuality scores the extracted fields blended with the carrier
// match confidence.
func validateFieldQuality(cls catalog.Classification) Component {
	var sum float64
	count := 0
	for _, fv := range cls.Fields {
		if fv.Confidence > 0.5 {
			count++
			sum += fv.Confidence
		}
	}

	var avg float64
	if count > 0 {
		avg = sum / float64(count)
	}

	score := avg*0.7 + cls.Confidence*0.3
	return Component{
		Valid:   score >= 0.6 && count >= 2,
		Score:   score,
		Details: fmt.Sprintf("%d fields extracted, average confidence %.2f", count, avg),
	}
}

// validateDeliveryTime scores the timestamp against the route's delivery
// window. An unparseable window yields a neutral valid score so bad
// reference data never rejects a delivery on its own.
func validateDeliveryTime(route *DeliveryRoute, ts time.Time) Component {
	start, errS := parseTimeOfDay(route.WindowStart)
	end, errE := parseTimeOfDay(route.WindowEnd)
	if errS != nil || errE != nil {
		return Component{Valid: true, Score: 0.5,
			Details: fmt.Sprintf("unparseable delivery window %q-%q", route.WindowStart, route.WindowEnd)}
	}

	cur := ts.Hour()*60 + ts.Minute()

	switch {
	case cur >= start && cur <= end:
		return Component{Valid: true, Score: 1.0,
			Details: fmt.Sprintf("within window %s-%s", route.WindowStart, route.WindowEnd)}
	case cur < start:
		early := start - cur
		score := math.Max(0.3, 1-float64(early)*0.01)
		return Component{Valid: score >= 0.5, Score: score,
			Details: fmt.Sprintf("too early, %dmin before window", early)}
	default:
		late := cur - end
		score := math.Max(0.2, 1-float64(late)*0.02)
		return Component{Valid: score >= 0.5, Score: score,
			Details: fmt.Sprintf("late, %dmin after window", late)}
	}
}

// parseTimeOfDay parses "HH:MM" into minutes since midnight.
func parseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		// Windows sometimes carry seconds.
		t, err = time.Parse("15:04:05", strings.TrimSpace(s))
		if err != nil {
			return 0, err
		}
	}
	return t.Hour()*60 + t.Minute(), nil
}

// validatePatternRecognition scores how strongly the carrier was matched.
func validatePatternRecognition(cls catalog.Classification) Component {
	if !cls.Known() {
		return Component{Valid: false, Score: 0.3,
			Details: "unknown pattern, needs investigation"}
	}

	var score float64
	switch {
	case cls.Confidence >= 0.8:
		score = 1.0
	case cls.Confidence >= 0.6:
		score = 0.7
	default:
		score = 0.4
	}
	return Component{
		Valid:   cls.Confidence >= 0.5,
		Score:   score,
		Details: fmt.Sprintf("carrier %s matched with confidence %.2f", cls.Carrier, cls.Confidence),
	}
}

// blend combines per-component scores into the overall verdict, weighting
// only the components present.
func (r *Result) blend() {
	var total, weight float64
	for name, w := range componentWeights {
		if c, ok := r.Components[name]; ok {
			total += c.Score * w
			weight += w
		}
	}
	if weight > 0 {
		r.ConfidenceScore = total / weight
	}
	r.IsValid = r.ConfidenceScore >= validThreshold
}

// annotate fills warnings and recommendations. At least one recommendation
// is always produced.
func (r *Result) annotate(cls catalog.Classification) {
	switch {
	case r.ConfidenceScore >= 0.9:
		r.Recommendations = append(r.Recommendations, "delivery fully valid, proceed normally")
	case r.ConfidenceScore >= 0.7:
		r.Recommendations = append(r.Recommendations, "delivery valid, minor checks advised")
	case r.ConfidenceScore >= 0.5:
		r.Recommendations = append(r.Recommendations, "delivery questionable, manual verification recommended")
	default:
		r.Recommendations = append(r.Recommendations, "delivery invalid, investigation required")
	}

	if r.GPSDistanceKm > 0.5 {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("GPS fix %.1fkm from expected route", r.GPSDistanceKm))
	}
	if c, ok := r.Components[ComponentOCR]; ok && !c.Valid {
		r.Warnings = append(r.Warnings, "extracted data insufficient or low quality")
	}
	if c, ok := r.Components[ComponentPattern]; ok && !c.Valid {
		r.Warnings = append(r.Warnings, "carrier not recognised, possible new pattern")
	}

	if cls.Known() {
		if r.IsValid {
			r.Recommendations = append(r.Recommendations, "data valid for learning: "+cls.Carrier)
		} else {
			r.Recommendations = append(r.Recommendations, "verify manually before using for learning")
		}
	}
}

// FindRouteByFields matches a route by extracted fields instead of GPS.
// Recipient name (fuzzy) and postal code are worth 2 points each, invoice
// number 3; the first route in scan order reaching 2 points wins.
func (v *Validator) FindRouteByFields(fields map[string]catalog.FieldValue) *DeliveryRoute {
	for i := range v.routes {
		rt := &v.routes[i]
		points := 0

		if fv, ok := fields["recipient_name"]; ok && fuzzyMatch(fv.Value, rt.RecipientName) {
			points += 2
		}
		if fv, ok := fields["cep"]; ok && digitsOnly(fv.Value) == digitsOnly(rt.CEP) && digitsOnly(rt.CEP) != "" {
			points += 2
		}
		if fv, ok := fields["nf_number"]; ok && strings.EqualFold(fv.Value, rt.NFNumber) && rt.NFNumber != "" {
			points += 3
		}

		if points >= 2 {
			return rt
		}
	}
	return nil
}

// fuzzyMatch accepts substring containment after whitespace and case
// normalisation, or at least 80 percent token overlap.
func fuzzyMatch(a, b string) bool {
	ca := strings.ToLower(strings.Join(strings.Fields(a), ""))
	cb := strings.ToLower(strings.Join(strings.Fields(b), ""))
	if ca == "" || cb == "" {
		return false
	}
	if strings.Contains(ca, cb) || strings.Contains(cb, ca) {
		return true
	}

	wa := tokenSet(a)
	wb := tokenSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	common := 0
	for w := range wa {
		if wb[w] {
			common++
		}
	}
	max := len(wa)
	if len(wb) > max {
		max = len(wb)
	}
	return float64(common)/float64(max) >= 0.8
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
