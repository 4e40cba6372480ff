// Package knowledge persists everything the system learns from processed
// labels: per-carrier track records, recognition shortcuts, unknown patterns
// queued for investigation and the overall accuracy timeline.
package knowledge

import "time"

const (
	// textPatternCap bounds the learned word list per carrier.
	textPatternCap = 50
	// investigationCap bounds the unknown pattern backlog.
	investigationCap = 50
	// evolutionCap bounds the system accuracy timeline.
	evolutionCap = 100
)

// Learning outcomes recorded per session.
const (
	OutcomeValidated     = "successful_validation"
	OutcomeNotValidated  = "recognized_but_not_validated"
	OutcomeUnknownLogged = "unknown_pattern_logged"
)

// CarrierRecord is the accumulated track record for one carrier.
type CarrierRecord struct {
	// ConfidenceScore is a 0-100 trust score derived from validation
	// history, not a per-label match confidence.
	ConfidenceScore       float64           `json:"confidence_score"`
	TotalSamples          int               `json:"total_samples"`
	SuccessfulValidations int               `json:"successful_validations"`
	TextPatterns          []string          `json:"text_patterns"`
	Shortcuts             map[string]string `json:"shortcuts,omitempty"`
	Timeline              []TimelinePoint   `json:"evolution_timeline,omitempty"`

	// PatternsToInvestigate queues unrecognised labels for offline review.
	// Only the unknown record carries entries.
	PatternsToInvestigate []InvestigationEntry `json:"patterns_to_investigate,omitempty"`
}

// TimelinePoint is one entry in a carrier's evolution timeline.
type TimelinePoint struct {
	Timestamp    time.Time `json:"timestamp"`
	Confidence   float64   `json:"confidence"`
	TotalSamples int       `json:"total_samples"`
	SuccessRate  float64   `json:"success_rate"`
}

// InvestigationEntry is an unrecognised label queued for offline review.
type InvestigationEntry struct {
	Timestamp         time.Time         `json:"timestamp"`
	ImageRef          string            `json:"image_ref"`
	TextExcerpt       string            `json:"text_excerpt"`
	Fields            map[string]string `json:"fields,omitempty"`
	CandidatePatterns []string          `json:"candidate_patterns,omitempty"`
}

// AccuracyPoint is one entry in the system accuracy timeline.
type AccuracyPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	TotalImages int       `json:"total_images"`
	Accuracy    float64   `json:"accuracy"`
}

// Statistics aggregates the whole learning history.
type Statistics struct {
	TotalImages            int             `json:"total_images"`
	SuccessfulRecognitions int             `json:"successful_recognitions"`
	CarriersLearned        int             `json:"companies_learned"`
	AccuracyEvolution      []AccuracyPoint `json:"accuracy_evolution,omitempty"`
}

// Knowledge is the full persisted learning state.
type Knowledge struct {
	Version     string                    `json:"version"`
	LastUpdated time.Time                 `json:"last_updated"`
	Statistics  Statistics                `json:"statistics"`
	Carriers    map[string]*CarrierRecord `json:"companies"`
}

// Signatures holds visual fingerprints keyed by carrier. Populated by
// future image-hash extractors; carried through persistence either way.
type Signatures struct {
	VisualHashes    map[string][]string
	ColorSignatures map[string][]string
	LayoutPatterns  map[string][]string
}

// Cache is the fast-path recognition index consulted before full
// classification.
type Cache struct {
	QuickRecognition map[string]string `json:"quick_recognition"`
	TextShortcuts    map[string]string `json:"text_shortcuts"`
	PatternFrequency map[string]int    `json:"pattern_frequency"`
}

// Session is the outcome of learning from one processed label.
type Session struct {
	Timestamp       time.Time         `json:"timestamp"`
	ImageRef        string            `json:"image_ref"`
	Carrier         string            `json:"company_detected"`
	Confidence      float64           `json:"confidence"`
	Fields          map[string]string `json:"extracted_data,omitempty"`
	GPSValidation   bool              `json:"gps_validation"`
	RouteMatch      bool              `json:"route_match"`
	LearningOutcome string            `json:"learning_outcome"`
}

func newCarrierRecord() *CarrierRecord {
	return &CarrierRecord{
		TextPatterns: []string{},
		Shortcuts:    make(map[string]string),
	}
}

// seedCarriers are the carriers every fresh knowledge store starts with.
var seedCarriers = []string{"amazon", "correios", "mercado_livre", "jadlog"}

func newKnowledge() *Knowledge {
	k := &Knowledge{
		Version:     "1.0",
		LastUpdated: time.Now(),
		Carriers:    make(map[string]*CarrierRecord),
	}
	for _, c := range seedCarriers {
		k.Carriers[c] = newCarrierRecord()
	}
	// Unknown gets its own record so unrecognised volume is still counted.
	k.Carriers["unknown"] = newCarrierRecord()
	return k
}

func newSignatures() *Signatures {
	return &Signatures{
		VisualHashes:    make(map[string][]string),
		ColorSignatures: make(map[string][]string),
		LayoutPatterns:  make(map[string][]string),
	}
}

func newCache() *Cache {
	return &Cache{
		QuickRecognition: make(map[string]string),
		TextShortcuts:    make(map[string]string),
		PatternFrequency: make(map[string]int),
	}
}
