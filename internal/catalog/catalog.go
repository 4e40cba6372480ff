// Package catalog provides the carrier rule registry for classifying
// recognised label text. Rules are data: carrier packages register their
// entries during init(), and additional entries can be appended at startup
// from a rule file without touching classification logic.
package catalog

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Unknown is the sentinel carrier returned when no rule matches.
const Unknown = "unknown"

// unknownConfidence reflects absence-of-match strength only, never a
// positive carrier score.
const unknownConfidence = 0.1

// CarrierRule describes how to detect one carrier in free-form text.
type CarrierRule struct {
	// Carrier is the identity this rule detects, e.g. "correios".
	Carrier string

	// Keywords are lowercase substrings checked before any regex runs.
	// Empty means "always run the regexes".
	Keywords []string

	// Primary is the main detection pattern. A match contributes
	// BaseConfidence and provides the matched text.
	Primary *regexp.Regexp

	// Secondary is an optional combo pattern. When it also matches,
	// Boost is added on top of BaseConfidence, capped at 0.99.
	Secondary *regexp.Regexp

	BaseConfidence float64
	Boost          float64

	// Priority orders rules when several carriers could match.
	// Lower number = checked first.
	Priority int
}

// quickCheck performs the cheap substring scan before regex evaluation.
func (r *CarrierRule) quickCheck(lower string) bool {
	if len(r.Keywords) == 0 {
		return true
	}
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FieldValue is one extracted structured field with its confidence.
type FieldValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Classification is the result of classifying one label text.
type Classification struct {
	Carrier     string                `json:"carrier"`
	Confidence  float64               `json:"confidence"`
	MatchedText string                `json:"matched_text,omitempty"`
	PatternUsed string                `json:"pattern_used"`
	Fields      map[string]FieldValue `json:"fields,omitempty"`
}

// Known reports whether a carrier rule matched.
func (c *Classification) Known() bool {
	return c.Carrier != Unknown
}

// Registry holds carrier rules ordered for dispatch.
type Registry struct {
	mu     sync.RWMutex
	rules  []CarrierRule
	sorted bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Global default registry, populated by init() in carrier packages.
var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a rule to the default registry.
func Register(r CarrierRule) {
	defaultRegistry.Register(r)
}

// Register adds a rule to the registry.
func (reg *Registry) Register(r CarrierRule) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rules = append(reg.rules, r)
	reg.sorted = false
}

// sortLocked orders rules by priority. Callers must hold the write lock.
func (reg *Registry) sortLocked() {
	if reg.sorted {
		return
	}
	sort.SliceStable(reg.rules, func(i, j int) bool {
		return reg.rules[i].Priority < reg.rules[j].Priority
	})
	reg.sorted = true
}

// Carriers returns the distinct carriers with registered rules, sorted.
func (reg *Registry) Carriers() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, r := range reg.rules {
		if !seen[r.Carrier] {
			seen[r.Carrier] = true
			out = append(out, r.Carrier)
		}
	}
	sort.Strings(out)
	return out
}

// RuleCount returns the number of registered rules.
func (reg *Registry) RuleCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rules)
}

// Classify evaluates all rules against the text and returns the strongest
// match, or an unknown classification when nothing matched. Field extraction
// runs regardless of the carrier outcome. Pure function over the rule table.
func (reg *Registry) Classify(text string) Classification {
	cls := Classification{
		Carrier:     Unknown,
		Confidence:  unknownConfidence,
		PatternUsed: "none",
		Fields:      ExtractAll(text),
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		cls.Confidence = 0
		cls.Fields = nil
		return cls
	}

	reg.mu.Lock()
	reg.sortLocked()
	reg.mu.Unlock()

	reg.mu.RLock()
	defer reg.mu.RUnlock()

	lower := strings.ToLower(trimmed)

	for _, r := range reg.rules {
		if !r.quickCheck(lower) {
			continue
		}
		m := r.Primary.FindString(trimmed)
		if m == "" {
			continue
		}

		conf := r.BaseConfidence
		used := r.Carrier + "_primary"
		if r.Secondary != nil && r.Secondary.MatchString(trimmed) {
			conf += r.Boost
			if conf > 0.99 {
				conf = 0.99
			}
			used = r.Carrier + "_combo"
		}

		// Strongest match wins; ties keep the earlier (lower priority) rule.
		if conf > cls.Confidence || !cls.Known() {
			cls.Carrier = r.Carrier
			cls.Confidence = conf
			cls.MatchedText = m
			cls.PatternUsed = used
		}
	}

	return cls
}

// Classify runs the default registry.
func Classify(text string) Classification {
	return defaultRegistry.Classify(text)
}
