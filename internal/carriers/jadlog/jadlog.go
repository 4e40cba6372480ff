// Package jadlog registers the detection rule for Jadlog labels.
package jadlog

import (
	"regexp"

	"podwatch/internal/catalog"
)

func init() {
	catalog.Register(catalog.CarrierRule{
		Carrier:        "jadlog",
		Keywords:       []string{"jadlog"},
		Primary:        regexp.MustCompile(`(?i)\bjadlog\b`),
		Secondary:      regexp.MustCompile(`(?i)\.package\b|\bexpresso\b|\brodovi[aá]rio\b`),
		BaseConfidence: 0.85,
		Boost:          0.1,
		Priority:       10,
	})
}
