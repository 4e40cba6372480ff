package notify

import (
	"fmt"
	"io"
	"strings"

	"podwatch/internal/delivery"
)

// LogSink writes alert summaries to a writer, normally stderr. Used when no
// broker is configured.
type LogSink struct {
	w io.Writer
}

// NewLogSink creates a LogSink writing to w.
func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{w: w}
}

// EmitAlert writes one human-readable alert line.
func (s *LogSink) EmitAlert(a delivery.AlertSummary) error {
	line := fmt.Sprintf("ALERT %s carrier=%s score=%.2f gps=%.2fkm fields=%d",
		a.ImageRef, a.Carrier, a.Confidence, a.GPSDistanceKm, a.FieldsFound)
	if len(a.Warnings) > 0 {
		line += " warnings=" + strings.Join(a.Warnings, "; ")
	}
	_, err := fmt.Fprintln(s.w, line)
	return err
}
