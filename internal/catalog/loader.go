package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// RuleFile is the on-disk representation of generated carrier rules, keyed
// by carrier. Produced offline by tools/trainer; consumed at startup.
type RuleFile map[string]RuleEntry

// RuleEntry is one carrier entry in a rule file.
type RuleEntry struct {
	Primary         string   `json:"primary"`
	Secondary       string   `json:"secondary,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	ConfidenceBoost float64  `json:"confidence_boost"`
	Priority        int      `json:"priority,omitempty"`
}

// LoadRules reads a JSON rule file and registers its entries with the
// default registry. Catalog extension is purely additive.
func LoadRules(path string) (int, error) {
	return LoadRulesInto(defaultRegistry, path)
}

// LoadRulesInto reads a JSON rule file and registers its entries with reg.
func LoadRulesInto(reg *Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read rule file: %w", err)
	}

	var file RuleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse rule file: %w", err)
	}

	count := 0
	for carrier, entry := range file {
		rule, err := entry.compile(carrier)
		if err != nil {
			return count, err
		}
		reg.Register(rule)
		count++
	}
	return count, nil
}

func (e RuleEntry) compile(carrier string) (CarrierRule, error) {
	if e.Primary == "" {
		return CarrierRule{}, fmt.Errorf("carrier %q: missing primary pattern", carrier)
	}
	primary, err := regexp.Compile(e.Primary)
	if err != nil {
		return CarrierRule{}, fmt.Errorf("carrier %q: primary: %w", carrier, err)
	}

	var secondary *regexp.Regexp
	if e.Secondary != "" {
		secondary, err = regexp.Compile(e.Secondary)
		if err != nil {
			return CarrierRule{}, fmt.Errorf("carrier %q: secondary: %w", carrier, err)
		}
	}

	base := e.ConfidenceBoost
	if base <= 0 || base > 0.99 {
		base = 0.85
	}
	priority := e.Priority
	if priority == 0 {
		priority = 100 // generated rules run after the built-in set
	}

	return CarrierRule{
		Carrier:        carrier,
		Keywords:       e.Keywords,
		Primary:        primary,
		Secondary:      secondary,
		BaseConfidence: base,
		Boost:          0.1,
		Priority:       priority,
	}, nil
}
