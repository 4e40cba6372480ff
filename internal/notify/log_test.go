package notify

import (
	"bytes"
	"strings"
	"testing"

	"podwatch/internal/delivery"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf)

	err := sink.EmitAlert(delivery.AlertSummary{
		ImageRef:      "etiqueta.jpg",
		Carrier:       "unknown",
		Confidence:    0.19,
		GPSDistanceKm: 5.2,
		FieldsFound:   0,
		Warnings:      []string{"GPS fix 5.2km from expected route"},
	})
	if err != nil {
		t.Fatalf("EmitAlert() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ALERT etiqueta.jpg", "carrier=unknown", "gps=5.20km", "warnings="} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
