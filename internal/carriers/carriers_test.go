package carriers

import (
	"testing"

	"podwatch/internal/catalog"
)

func TestBuiltinCarriersRegistered(t *testing.T) {
	reg := catalog.Default()

	want := []string{"amazon", "correios", "jadlog", "mercado_livre"}
	have := make(map[string]bool)
	for _, c := range reg.Carriers() {
		have[c] = true
	}
	for _, c := range want {
		if !have[c] {
			t.Errorf("carrier %q not registered", c)
		}
	}
}

func TestBuiltinClassification(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantCarrier string
	}{
		{"amazon label", "AMAZON.COM.BR Fulfillment TBA123456789", "amazon"},
		{"correios sedex", "CORREIOS SEDEX objeto BR123456789BR", "correios"},
		{"jadlog expresso", "JADLOG .Package expresso", "jadlog"},
		{"mercado livre flex", "Mercado Livre Envios Flex", "mercado_livre"},
		{"unreadable", "texto qualquer sem remetente", catalog.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.Classify(tt.text)
			if got.Carrier != tt.wantCarrier {
				t.Errorf("Classify(%q).Carrier = %q, want %q", tt.text, got.Carrier, tt.wantCarrier)
			}
		})
	}
}
