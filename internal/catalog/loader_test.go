package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRulesInto(t *testing.T) {
	path := writeRuleFile(t, `{
		"total_express": {
			"primary": "(?i)\\btotal\\s*express\\b",
			"secondary": "(?i)\\bTEX\\d{8}\\b",
			"keywords": ["total"],
			"confidence_boost": 0.8
		},
		"loggi": {
			"primary": "(?i)\\bloggi\\b",
			"confidence_boost": 0
		}
	}`)

	reg := New()
	n, err := LoadRulesInto(reg, path)
	if err != nil {
		t.Fatalf("LoadRulesInto() error = %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d rules, want 2", n)
	}

	got := reg.Classify("TOTAL EXPRESS entrega TEX12345678")
	if got.Carrier != "total_express" {
		t.Errorf("Carrier = %q, want total_express", got.Carrier)
	}
	if got.PatternUsed != "total_express_combo" {
		t.Errorf("PatternUsed = %q, want combo", got.PatternUsed)
	}
	if got.Confidence < 0.89 || got.Confidence > 0.91 {
		t.Errorf("Confidence = %v, want 0.9", got.Confidence)
	}

	// Zero boost falls back to the default base confidence.
	got = reg.Classify("loggi retirada")
	if got.Confidence != 0.85 {
		t.Errorf("loggi Confidence = %v, want default 0.85", got.Confidence)
	}
}

func TestLoadRulesErrors(t *testing.T) {
	reg := New()

	if _, err := LoadRulesInto(reg, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := writeRuleFile(t, `{not json`)
	if _, err := LoadRulesInto(reg, bad); err == nil {
		t.Error("expected error for malformed JSON")
	}

	noPrimary := writeRuleFile(t, `{"x": {"confidence_boost": 0.8}}`)
	if _, err := LoadRulesInto(reg, noPrimary); err == nil {
		t.Error("expected error for entry without primary pattern")
	}

	badRegex := writeRuleFile(t, `{"x": {"primary": "[unclosed"}}`)
	if _, err := LoadRulesInto(reg, badRegex); err == nil {
		t.Error("expected error for invalid primary regex")
	}
}
