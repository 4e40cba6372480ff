package routes

import (
	"strings"
	"testing"
	"time"

	"podwatch/internal/catalog"
	"podwatch/internal/delivery"
)

var testRoutes = []DeliveryRoute{
	{
		RouteID:       "R001",
		RecipientName: "Maria Souza Lima",
		CEP:           "01310-100",
		NFNumber:      "123456789",
		Location:      delivery.LatLon{Lat: -23.5505, Lon: -46.6333},
		HasGPS:        true,
		WindowStart:   "08:00",
		WindowEnd:     "18:00",
	},
	{
		RouteID:       "R002",
		RecipientName: "Joao Pereira",
		CEP:           "04538-133",
		NFNumber:      "987654321",
		Location:      delivery.LatLon{Lat: -23.586, Lon: -46.682},
		HasGPS:        true,
		WindowStart:   "09:00",
		WindowEnd:     "12:00",
	},
}

func strongClassification() catalog.Classification {
	return catalog.Classification{
		Carrier:     "correios",
		Confidence:  0.95,
		MatchedText: "CORREIOS",
		PatternUsed: "correios_combo",
		Fields: map[string]catalog.FieldValue{
			"tracking_code": {Value: "BR123456789BR", Confidence: 0.95},
			"nf_number":     {Value: "123456789", Confidence: 0.95},
			"cep":           {Value: "01310-100", Confidence: 0.95},
		},
	}
}

func inWindow() time.Time {
	return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
}

func TestValidateFullyValid(t *testing.T) {
	v := NewValidator(testRoutes)

	// ~40 m from R001.
	device := delivery.LatLon{Lat: -23.55085, Lon: -46.6333}
	res := v.Validate(strongClassification(), device, inWindow())

	if !res.IsValid {
		t.Errorf("IsValid = false, score %v", res.ConfidenceScore)
	}
	if res.ConfidenceScore < 0.9 {
		t.Errorf("ConfidenceScore = %v, want >= 0.9", res.ConfidenceScore)
	}
	if res.MatchedRoute == nil || res.MatchedRoute.RouteID != "R001" {
		t.Errorf("MatchedRoute = %+v, want R001", res.MatchedRoute)
	}
	if gps := res.Components[ComponentGPS]; gps.Score != 1.0 || !gps.Valid {
		t.Errorf("gps component = %+v, want score 1.0 valid", gps)
	}
	if len(res.Recommendations) == 0 {
		t.Error("no recommendations produced")
	}
}

func TestValidateExactGPS(t *testing.T) {
	v := NewValidator(testRoutes)

	res := v.Validate(strongClassification(), testRoutes[1].Location, inWindow())
	if gps := res.Components[ComponentGPS]; gps.Score != 1.0 {
		t.Errorf("gps score = %v for exact coordinates, want 1.0", gps.Score)
	}
	if res.MatchedRoute == nil || res.MatchedRoute.RouteID != "R002" {
		t.Errorf("MatchedRoute = %+v, want R002", res.MatchedRoute)
	}
}

func TestValidateLateDelivery(t *testing.T) {
	v := NewValidator(testRoutes)

	cls := strongClassification()
	cls.Fields = nil // zero extracted fields

	// ~100 m away, 90 minutes after the 18:00 window end.
	device := delivery.LatLon{Lat: -23.5514, Lon: -46.6333}
	late := time.Date(2026, 1, 10, 19, 30, 0, 0, time.UTC)
	res := v.Validate(cls, device, late)

	temporal := res.Components[ComponentTemporal]
	if temporal.Score != 0.2 {
		t.Errorf("temporal score = %v, want floor 0.2", temporal.Score)
	}
	if temporal.Valid {
		t.Error("temporal component valid for 90min late delivery")
	}

	// 0.4*0.8 + 0.35*(0.3*0.95) + 0.15*0.2 + 0.1*1.0 = 0.54975.
	if res.ConfidenceScore < 0.54 || res.ConfidenceScore > 0.56 {
		t.Errorf("ConfidenceScore = %v, want ~0.55", res.ConfidenceScore)
	}
	if res.IsValid {
		t.Error("IsValid = true for late, fieldless delivery")
	}
}

func TestValidateEarlyDelivery(t *testing.T) {
	v := NewValidator(testRoutes)

	// 30 minutes before the 08:00 window start.
	early := time.Date(2026, 1, 10, 7, 30, 0, 0, time.UTC)
	res := v.Validate(strongClassification(), testRoutes[0].Location, early)

	temporal := res.Components[ComponentTemporal]
	if temporal.Score < 0.69 || temporal.Score > 0.71 {
		t.Errorf("temporal score = %v, want 0.7 for 30min early", temporal.Score)
	}
	if !temporal.Valid {
		t.Error("temporal component invalid for 30min early")
	}
}

func TestValidateUnparseableWindow(t *testing.T) {
	routes := []DeliveryRoute{{
		RouteID:     "R003",
		Location:    delivery.LatLon{Lat: 1, Lon: 1},
		HasGPS:      true,
		WindowStart: "manha",
		WindowEnd:   "tarde",
	}}
	v := NewValidator(routes)

	res := v.Validate(strongClassification(), delivery.LatLon{Lat: 1, Lon: 1}, inWindow())
	temporal := res.Components[ComponentTemporal]
	if temporal.Score != 0.5 || !temporal.Valid {
		t.Errorf("temporal = %+v, want neutral valid 0.5", temporal)
	}
}

func TestValidateNoRoutes(t *testing.T) {
	v := NewValidator(nil)

	res := v.Validate(strongClassification(), delivery.LatLon{Lat: 1, Lon: 1}, inWindow())
	if res.MatchedRoute != nil {
		t.Errorf("MatchedRoute = %+v with empty table", res.MatchedRoute)
	}
	if _, ok := res.Components[ComponentTemporal]; ok {
		t.Error("temporal component present without matched route")
	}

	// Weights renormalise over gps, ocr and pattern only.
	// (0.4*0 + 0.35*0.95 + 0.1*1.0) / 0.85 = 0.50882...
	if res.ConfidenceScore < 0.50 || res.ConfidenceScore > 0.52 {
		t.Errorf("ConfidenceScore = %v, want ~0.509", res.ConfidenceScore)
	}
}

func TestFieldQualityComponent(t *testing.T) {
	tests := []struct {
		name      string
		cls       catalog.Classification
		wantScore float64
		wantValid bool
	}{
		{
			name:      "no fields no confidence",
			cls:       catalog.Classification{Carrier: catalog.Unknown},
			wantScore: 0,
			wantValid: false,
		},
		{
			name: "one strong field only",
			cls: catalog.Classification{
				Carrier:    "correios",
				Confidence: 0.9,
				Fields: map[string]catalog.FieldValue{
					"nf_number": {Value: "123456789", Confidence: 0.95},
				},
			},
			// 0.7*0.95 + 0.3*0.9 = 0.935 but only one qualifying field.
			wantScore: 0.935,
			wantValid: false,
		},
		{
			name: "weak fields ignored",
			cls: catalog.Classification{
				Carrier:    "correios",
				Confidence: 0.9,
				Fields: map[string]catalog.FieldValue{
					"address": {Value: "rua x", Confidence: 0.4},
				},
			},
			// No field passes 0.5, so 0.3*0.9 only.
			wantScore: 0.27,
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateFieldQuality(tt.cls)
			if got.Score < tt.wantScore-0.001 || got.Score > tt.wantScore+0.001 {
				t.Errorf("score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", got.Valid, tt.wantValid)
			}
		})
	}
}

func TestPatternComponent(t *testing.T) {
	tests := []struct {
		name      string
		cls       catalog.Classification
		wantScore float64
		wantValid bool
	}{
		{"strong match", catalog.Classification{Carrier: "amazon", Confidence: 0.9}, 1.0, true},
		{"medium match", catalog.Classification{Carrier: "amazon", Confidence: 0.65}, 0.7, true},
		{"weak match", catalog.Classification{Carrier: "amazon", Confidence: 0.45}, 0.4, false},
		{"unknown", catalog.Classification{Carrier: catalog.Unknown, Confidence: 0.1}, 0.3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validatePatternRecognition(tt.cls)
			if got.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", got.Valid, tt.wantValid)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	v := NewValidator(testRoutes)

	cls := catalog.Classification{Carrier: catalog.Unknown, Confidence: 0.1, PatternUsed: "none"}
	// ~11 km from every route.
	far := delivery.LatLon{Lat: -23.45, Lon: -46.6333}
	res := v.Validate(cls, far, inWindow())

	if res.IsValid {
		t.Error("IsValid = true for unknown carrier far from routes")
	}

	var gpsWarn, ocrWarn, patternWarn bool
	for _, w := range res.Warnings {
		switch {
		case strings.Contains(w, "GPS"):
			gpsWarn = true
		case strings.Contains(w, "extracted data"):
			ocrWarn = true
		case strings.Contains(w, "not recognised"):
			patternWarn = true
		}
	}
	if !gpsWarn || !ocrWarn || !patternWarn {
		t.Errorf("warnings = %v, want gps, ocr and pattern warnings", res.Warnings)
	}
	if len(res.Recommendations) == 0 {
		t.Error("no recommendations produced")
	}
}

func TestFindRouteByFields(t *testing.T) {
	v := NewValidator(testRoutes)

	tests := []struct {
		name   string
		fields map[string]catalog.FieldValue
		want   string
	}{
		{
			name: "invoice number alone qualifies",
			fields: map[string]catalog.FieldValue{
				"nf_number": {Value: "987654321", Confidence: 0.95},
			},
			want: "R002",
		},
		{
			name: "recipient name alone qualifies",
			fields: map[string]catalog.FieldValue{
				"recipient_name": {Value: "MARIA SOUZA LIMA", Confidence: 0.85},
			},
			want: "R001",
		},
		{
			name: "formatted cep matches bare digits",
			fields: map[string]catalog.FieldValue{
				"cep": {Value: "04538133", Confidence: 0.65},
			},
			want: "R002",
		},
		{
			name: "no qualifying data",
			fields: map[string]catalog.FieldValue{
				"nf_number": {Value: "000000000", Confidence: 0.95},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.FindRouteByFields(tt.fields)
			switch {
			case tt.want == "" && got != nil:
				t.Errorf("matched %q, want no match", got.RouteID)
			case tt.want != "" && (got == nil || got.RouteID != tt.want):
				t.Errorf("matched %+v, want %s", got, tt.want)
			}
		})
	}
}

func TestFindRouteByFieldsScanOrder(t *testing.T) {
	dup := []DeliveryRoute{
		{RouteID: "first", NFNumber: "555"},
		{RouteID: "second", NFNumber: "555"},
	}
	v := NewValidator(dup)

	got := v.FindRouteByFields(map[string]catalog.FieldValue{
		"nf_number": {Value: "555", Confidence: 0.95},
	})
	if got == nil || got.RouteID != "first" {
		t.Errorf("matched %+v, want first route in scan order", got)
	}
}

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Maria Souza", "maria souza lima", true},   // containment
		{"Maria Lima Souza", "Maria Souza Lima", true}, // full token overlap
		{"Joao Pereira", "Maria Souza", false},
		{"", "Maria", false},
	}

	for _, tt := range tests {
		if got := fuzzyMatch(tt.a, tt.b); got != tt.want {
			t.Errorf("fuzzyMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
