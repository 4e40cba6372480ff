// Package amazon registers the detection rule for Amazon Logistics labels.
package amazon

import (
	"regexp"

	"podwatch/internal/catalog"
)

func init() {
	catalog.Register(catalog.CarrierRule{
		Carrier:  "amazon",
		Keywords: []string{"amazon", "tba"},
		Primary:  regexp.MustCompile(`(?i)\bamazon(?:\.com(?:\.br)?)?\b`),
		// TBA tracking ids and fulfillment wording only appear on genuine
		// Amazon Logistics labels.
		Secondary:      regexp.MustCompile(`(?i)\bTBA\d{9,12}\b|\bfulfillment\b|\blog[ií]stica\s+amazon\b`),
		BaseConfidence: 0.85,
		Boost:          0.1,
		Priority:       10,
	})
}
