// Package correios registers the detection rule for Correios (EBCT) labels.
package correios

import (
	"regexp"

	"podwatch/internal/catalog"
)

func init() {
	catalog.Register(catalog.CarrierRule{
		Carrier:  "correios",
		Keywords: []string{"correios", "ebct", "sedex", "pac"},
		Primary:  regexp.MustCompile(`(?i)\bcorreios\b|\bebct\b`),
		// Service names and the BR-suffixed tracking format are strong
		// secondary signals.
		Secondary:      regexp.MustCompile(`(?i)\bsedex\b|\bpac\b|\b[A-Z]{2}\d{9}BR\b`),
		BaseConfidence: 0.85,
		Boost:          0.1,
		Priority:       10,
	})
}
