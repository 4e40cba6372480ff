package knowledge

import (
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"podwatch/internal/catalog"
)

// Engine turns processed labels into accumulated knowledge. Every session
// updates the in-memory state, writes it through to disk and appends one
// audit row. A persistence failure is logged and never rolls back the
// in-memory update.
type Engine struct {
	mu sync.Mutex

	store      *Store
	knowledge  *Knowledge
	signatures *Signatures
	cache      *Cache
	audit      *AuditLog

	sessionCounter int
}

// NewEngine loads existing knowledge from store. The audit log is optional.
func NewEngine(store *Store, audit *AuditLog) *Engine {
	return &Engine{
		store:      store,
		knowledge:  store.LoadKnowledge(),
		signatures: store.LoadSignatures(),
		cache:      store.LoadCache(),
		audit:      audit,
	}
}

// SessionInput is everything one processed label contributes to learning.
type SessionInput struct {
	ImageRef       string
	Text           string
	Classification catalog.Classification
	GPSValid       bool
	RouteMatch     bool
}

// ProcessSession learns from one processed label and returns the recorded
// session.
func (e *Engine) ProcessSession(in SessionInput) Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessionCounter++

	session := Session{
		Timestamp:     time.Now(),
		ImageRef:      in.ImageRef,
		Carrier:       in.Classification.Carrier,
		Confidence:    in.Classification.Confidence,
		Fields:        fieldValues(in.Classification.Fields),
		GPSValidation: in.GPSValid,
		RouteMatch:    in.RouteMatch,
	}

	if in.Classification.Known() {
		e.learnFromRecognition(&session, in)
	} else {
		e.learnFromUnknown(&session, in)
	}

	e.updateStatistics(&session)

	if err := e.saveLocked(); err != nil {
		log.Printf("[knowledge] save failed: %v", err)
	}
	if e.audit != nil {
		if err := e.audit.Append(session, e.knowledge.Statistics.TotalImages); err != nil {
			log.Printf("[knowledge] audit append failed: %v", err)
		}
	}

	return session
}

func fieldValues(fields map[string]catalog.FieldValue) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for name, fv := range fields {
		out[name] = fv.Value
	}
	return out
}

func (e *Engine) learnFromRecognition(session *Session, in SessionInput) {
	rec, ok := e.knowledge.Carriers[session.Carrier]
	if !ok {
		log.Printf("[knowledge] new carrier %q, creating record", session.Carrier)
		rec = newCarrierRecord()
		e.knowledge.Carriers[session.Carrier] = rec
	}

	rec.TotalSamples++
	if session.GPSValidation && session.RouteMatch {
		rec.SuccessfulValidations++
		session.LearningOutcome = OutcomeValidated
	} else {
		session.LearningOutcome = OutcomeNotValidated
	}

	learnTextPatterns(in.Text, rec)
	e.createShortcuts(session.Carrier, in)

	successRate := float64(rec.SuccessfulValidations) / float64(rec.TotalSamples)
	rec.ConfidenceScore = trackRecordScore(successRate, rec.TotalSamples)

	rec.Timeline = append(rec.Timeline, TimelinePoint{
		Timestamp:    session.Timestamp,
		Confidence:   rec.ConfidenceScore,
		TotalSamples: rec.TotalSamples,
		SuccessRate:  successRate,
	})
}

// trackRecordScore maps validation history to a 0-100 trust score.
// A long-lived carrier with a perfect record approaches but never
// reaches 100.
func trackRecordScore(successRate float64, samples int) float64 {
	score := 60 + successRate*35 + float64(samples)*0.05
	if score > 99.9 {
		score = 99.9
	}
	return score
}

func (e *Engine) learnFromUnknown(session *Session, in SessionInput) {
	rec, ok := e.knowledge.Carriers[catalog.Unknown]
	if !ok {
		rec = newCarrierRecord()
		e.knowledge.Carriers[catalog.Unknown] = rec
	}
	rec.TotalSamples++

	rec.PatternsToInvestigate = append(rec.PatternsToInvestigate, InvestigationEntry{
		Timestamp:         session.Timestamp,
		ImageRef:          session.ImageRef,
		TextExcerpt:       excerpt(in.Text, 200),
		Fields:            session.Fields,
		CandidatePatterns: candidatePatterns(in.Text),
	})
	if n := len(rec.PatternsToInvestigate); n > investigationCap {
		rec.PatternsToInvestigate = rec.PatternsToInvestigate[n-investigationCap:]
	}

	session.LearningOutcome = OutcomeUnknownLogged
}

func excerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

// learnTextPatterns appends significant new words from the label text,
// keeping the most recent textPatternCap entries.
func learnTextPatterns(text string, rec *CarrierRecord) {
	seen := make(map[string]bool, len(rec.TextPatterns))
	for _, p := range rec.TextPatterns {
		seen[p] = true
	}

	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len([]rune(word)) <= 3 || !isAlpha(word) || seen[word] {
			continue
		}
		seen[word] = true
		rec.TextPatterns = append(rec.TextPatterns, word)
	}

	if n := len(rec.TextPatterns); n > textPatternCap {
		rec.TextPatterns = rec.TextPatterns[n-textPatternCap:]
	}
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

// createShortcuts caches high-confidence phrases for quick recognition.
// The first carrier that claims a phrase keeps it.
func (e *Engine) createShortcuts(carrier string, in SessionInput) {
	var phrases []string
	if in.Classification.MatchedText != "" {
		phrases = append(phrases, strings.ToLower(in.Classification.MatchedText))
	}
	for _, fv := range in.Classification.Fields {
		if fv.Confidence > 0.8 && len(fv.Value) > 5 {
			phrases = append(phrases, strings.ToLower(fv.Value))
		}
	}

	for _, p := range phrases {
		if _, ok := e.cache.QuickRecognition[p]; !ok {
			e.cache.QuickRecognition[p] = carrier
		}
	}
}

var (
	urlPattern    = regexp.MustCompile(`[\w.-]+\.com(?:\.br)?`)
	postalPattern = regexp.MustCompile(`\d{5}-?\d{3}`)
)

// candidatePatterns mines an unrecognised label for leads a reviewer or
// the trainer can follow up on.
func candidatePatterns(text string) []string {
	var out []string

	if codes := catalog.ExtractField(text, "nf_number"); len(codes) > 0 {
		out = append(out, "tracking_code: "+codes[0].Value)
	}
	for _, u := range urlPattern.FindAllString(strings.ToLower(text), -1) {
		out = append(out, "url: "+u)
	}
	for _, p := range postalPattern.FindAllString(text, -1) {
		out = append(out, "postal: "+p)
	}
	return out
}

func (e *Engine) updateStatistics(session *Session) {
	stats := &e.knowledge.Statistics
	stats.TotalImages++

	if session.Carrier != catalog.Unknown {
		stats.SuccessfulRecognitions++
	}

	accuracy := float64(stats.SuccessfulRecognitions) / float64(stats.TotalImages) * 100
	stats.AccuracyEvolution = append(stats.AccuracyEvolution, AccuracyPoint{
		Timestamp:   session.Timestamp,
		TotalImages: stats.TotalImages,
		Accuracy:    accuracy,
	})
	if n := len(stats.AccuracyEvolution); n > evolutionCap {
		stats.AccuracyEvolution = stats.AccuracyEvolution[n-evolutionCap:]
	}

	learned := 0
	for name, rec := range e.knowledge.Carriers {
		if name != catalog.Unknown && rec.TotalSamples > 0 {
			learned++
		}
	}
	stats.CarriersLearned = learned

	e.knowledge.LastUpdated = time.Now()
}

func (e *Engine) saveLocked() error {
	if err := e.store.SaveKnowledge(e.knowledge); err != nil {
		return err
	}
	if err := e.store.SaveSignatures(e.signatures); err != nil {
		return err
	}
	return e.store.SaveCache(e.cache)
}

// QuickRecognition returns the cached carrier for text containing a known
// shortcut phrase, or "" when no shortcut applies.
func (e *Engine) QuickRecognition(text string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	lower := strings.ToLower(text)
	for phrase, carrier := range e.cache.QuickRecognition {
		if strings.Contains(lower, phrase) {
			return carrier
		}
	}
	return ""
}

// SuggestInvestigations returns up to the 10 most recent unknown patterns
// that carried at least one candidate lead.
func (e *Engine) SuggestInvestigations() []InvestigationEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	var entries []InvestigationEntry
	if rec, ok := e.knowledge.Carriers[catalog.Unknown]; ok {
		entries = rec.PatternsToInvestigate
	}
	if len(entries) > 10 {
		entries = entries[len(entries)-10:]
	}

	var out []InvestigationEntry
	for _, entry := range entries {
		if len(entry.CandidatePatterns) > 0 {
			out = append(out, entry)
		}
	}
	return out
}

// CarrierDetail summarises one carrier's track record.
type CarrierDetail struct {
	Samples     int     `json:"samples"`
	Validations int     `json:"validations"`
	Confidence  float64 `json:"confidence"`
	SuccessRate float64 `json:"success_rate"`
}

// LearningStats is the aggregate view over all learning history.
type LearningStats struct {
	TotalImagesProcessed   int                      `json:"total_images_processed"`
	SuccessfulRecognitions int                      `json:"successful_recognitions"`
	RecognitionAccuracy    float64                  `json:"recognition_accuracy"`
	CarriersLearned        int                      `json:"companies_learned"`
	SessionCounter         int                      `json:"session_counter"`
	Carriers               map[string]CarrierDetail `json:"companies_detail"`
}

// Stats returns the aggregate learning statistics.
func (e *Engine) Stats() LearningStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.knowledge.Statistics
	out := LearningStats{
		TotalImagesProcessed:   stats.TotalImages,
		SuccessfulRecognitions: stats.SuccessfulRecognitions,
		CarriersLearned:        stats.CarriersLearned,
		SessionCounter:         e.sessionCounter,
		Carriers:               make(map[string]CarrierDetail),
	}
	if stats.TotalImages > 0 {
		out.RecognitionAccuracy = float64(stats.SuccessfulRecognitions) / float64(stats.TotalImages) * 100
	}

	for name, rec := range e.knowledge.Carriers {
		if name == catalog.Unknown {
			continue
		}
		detail := CarrierDetail{
			Samples:     rec.TotalSamples,
			Validations: rec.SuccessfulValidations,
			Confidence:  rec.ConfidenceScore,
		}
		if rec.TotalSamples > 0 {
			detail.SuccessRate = float64(rec.SuccessfulValidations) / float64(rec.TotalSamples) * 100
		}
		out.Carriers[name] = detail
	}
	return out
}
