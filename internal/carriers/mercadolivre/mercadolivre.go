// Package mercadolivre registers the detection rule for Mercado Livre
// (Mercado Envios) labels.
package mercadolivre

import (
	"regexp"

	"podwatch/internal/catalog"
)

func init() {
	catalog.Register(catalog.CarrierRule{
		Carrier:        "mercado_livre",
		Keywords:       []string{"mercado", "meli", "envios"},
		Primary:        regexp.MustCompile(`(?i)\bmercado\s*livre\b|\bmercadolivre\b`),
		Secondary:      regexp.MustCompile(`(?i)\bmeli\b|\benvios?\s+flex\b|\bmercado\s+envios\b`),
		BaseConfidence: 0.85,
		Boost:          0.1,
		Priority:       10,
	})
}
