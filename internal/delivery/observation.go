// Package delivery provides the proof-of-delivery observation types shared
// across the validation pipeline.
package delivery

import (
	"strings"
	"time"
)

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the coordinate is the unset (0,0) sentinel.
// A genuine delivery at Null Island is not a case this system serves.
func (p LatLon) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// Observation is one photographed proof-of-delivery label, already run
// through OCR and metadata extraction by the acquisition layer.
type Observation struct {
	ImageRef  string    `json:"image_ref"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	DeviceGPS LatLon    `json:"device_gps"`

	// Capture metadata, when the acquisition layer could read it.
	Capture *CaptureMetadata `json:"capture,omitempty"`
}

// CaptureMetadata is what the EXIF reader produced for the photo.
type CaptureMetadata struct {
	Timestamp   time.Time `json:"timestamp"`
	GPS         *LatLon   `json:"gps,omitempty"`
	DeviceMake  string    `json:"device_make,omitempty"`
	DeviceModel string    `json:"device_model,omitempty"`
}

// EffectiveTimestamp prefers the capture timestamp over the observation one.
func (o *Observation) EffectiveTimestamp() time.Time {
	if o.Capture != nil && !o.Capture.Timestamp.IsZero() {
		return o.Capture.Timestamp
	}
	return o.Timestamp
}

// EffectiveGPS prefers embedded capture GPS over the device fix.
func (o *Observation) EffectiveGPS() LatLon {
	if o.Capture != nil && o.Capture.GPS != nil && !o.Capture.GPS.IsZero() {
		return *o.Capture.GPS
	}
	return o.DeviceGPS
}

// HasText reports whether OCR recognised anything usable. Error-marker
// strings emitted by the OCR layer count as empty.
func (o *Observation) HasText() bool {
	t := strings.TrimSpace(o.Text)
	return t != "" && !strings.HasPrefix(t, "[ERRO")
}
