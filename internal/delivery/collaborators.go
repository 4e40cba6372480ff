package delivery

import "time"

// The interfaces below are the boundary to the acquisition and notification
// layers. They are implemented outside this core (mobile app, tracker API,
// messaging gateway); the core only consumes already-parsed values.

// TextSource returns the recognised text for an image. An empty string is a
// valid answer and downgrades classification to unknown; implementations
// never need to signal OCR failure any other way.
type TextSource interface {
	RecognizedText(imageRef string) (string, error)
}

// MetadataSource reads capture metadata (timestamp, embedded GPS, device).
type MetadataSource interface {
	CaptureMetadata(imageRef string) (*CaptureMetadata, error)
}

// DeviceLocator returns the current GPS fix of the delivery device.
type DeviceLocator interface {
	DeviceLocation() (LatLon, error)
}

// VehicleLocator returns the vehicle position reported by telemetry for the
// moment the photo was taken.
type VehicleLocator interface {
	VehicleLocation(ts time.Time) (LatLon, error)
}

// AlertSink receives a summary of an invalid verdict. Fire-and-forget: the
// pipeline calls it exactly once per invalid verdict and never retries.
type AlertSink interface {
	EmitAlert(summary AlertSummary) error
}

// AlertSummary is the payload handed to an AlertSink.
type AlertSummary struct {
	ImageRef      string   `json:"image_ref"`
	Carrier       string   `json:"carrier"`
	Confidence    float64  `json:"confidence"`
	GPSDistanceKm float64  `json:"gps_distance_km"`
	FieldsFound   int      `json:"fields_found"`
	Warnings      []string `json:"warnings,omitempty"`
}
