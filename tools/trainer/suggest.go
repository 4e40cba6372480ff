// Pattern derivation logic: word statistics, carrier-unique signatures
// and regex candidate generation from labelled sample texts.
package main

import (
	"regexp"
	"sort"
	"strings"
)

// RuleFile mirrors the catalog rule file format: carrier name to entry.
type RuleFile map[string]RuleEntry

// RuleEntry is one generated carrier rule.
type RuleEntry struct {
	Primary         string   `json:"primary"`
	Secondary       string   `json:"secondary,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	ConfidenceBoost float64  `json:"confidence_boost"`
	Priority        int      `json:"priority,omitempty"`
}

// carrierAnalysis holds the word statistics for one carrier's corpus.
type carrierAnalysis struct {
	TextCount        int
	UniqueWords      int
	AvgTextLength    float64
	SignificantWords []string
	UniqueSignatures []string
}

// Portuguese stopwords plus generic label noise. Frequency alone would
// otherwise promote connectives over carrier names.
var stopwords = map[string]bool{
	"o": true, "a": true, "e": true, "de": true, "do": true, "da": true,
	"em": true, "um": true, "uma": true, "para": true, "com": true,
	"por": true, "na": true, "no": true, "os": true, "as": true,
	"dos": true, "das": true, "ao": true, "aos": true, "que": true,
	"se": true, "ou": true, "ser": true, "sua": true, "seu": true,
	"mais": true, "como": true, "mas": true, "foi": true, "ele": true,
	"ela": true, "the": true, "and": true, "for": true, "com.br": true,
}

var (
	wordPattern     = regexp.MustCompile(`[\pL\pN_]+`)
	longNumber      = regexp.MustCompile(`\b\d{6,}\b`)
	alphanumCode    = regexp.MustCompile(`\b[a-zA-Z]+\d+[a-zA-Z\d]*\b`)
	addressPattern  = regexp.MustCompile(`(?i)\b(?:rua|av|avenida|praca|praça)\s+[\w\s]+\d+`)
	addressWord     = regexp.MustCompile(`\b\w{4,}\b`)
	postalSignature = regexp.MustCompile(`\b\d{5}-?\d{3}\b`)
)

// analyzeCorpus computes per-carrier word statistics and unique signatures.
func analyzeCorpus(corpus map[string][]string, topN int) map[string]*carrierAnalysis {
	analyses := make(map[string]*carrierAnalysis, len(corpus))
	signatures := make(map[string]map[string]bool, len(corpus))

	for carrier, texts := range corpus {
		combined := strings.ToLower(strings.Join(texts, " "))
		words := wordPattern.FindAllString(combined, -1)

		counts := make(map[string]int)
		for _, w := range words {
			counts[w]++
		}

		// Significant: long enough, not a stopword, and present in
		// at least 30% of the sample texts.
		minCount := len(texts) * 3 / 10
		if minCount < 1 {
			minCount = 1
		}
		var significant []string
		for w, c := range counts {
			if len(w) >= 3 && !stopwords[w] && c >= minCount {
				significant = append(significant, w)
			}
		}
		sort.Slice(significant, func(i, j int) bool {
			if counts[significant[i]] != counts[significant[j]] {
				return counts[significant[i]] > counts[significant[j]]
			}
			return significant[i] < significant[j]
		})
		if len(significant) > topN {
			significant = significant[:topN]
		}

		totalLen := 0
		for _, t := range texts {
			totalLen += len(t)
		}

		analyses[carrier] = &carrierAnalysis{
			TextCount:        len(texts),
			UniqueWords:      len(counts),
			AvgTextLength:    float64(totalLen) / float64(len(texts)),
			SignificantWords: significant,
		}
		signatures[carrier] = findSignatures(combined)
	}

	// A signature only counts if no other carrier's corpus produced it.
	for carrier, sigs := range signatures {
		var unique []string
		for sig := range sigs {
			shared := false
			for other, otherSigs := range signatures {
				if other != carrier && otherSigs[sig] {
					shared = true
					break
				}
			}
			if !shared {
				unique = append(unique, sig)
			}
		}
		sort.Strings(unique)
		analyses[carrier].UniqueSignatures = unique
	}
	return analyses
}

// findSignatures extracts distinctive tokens from a carrier's combined text:
// long number prefixes, alphanumeric codes, address keywords and known
// carrier markers.
func findSignatures(text string) map[string]bool {
	sigs := make(map[string]bool)

	for _, num := range longNumber.FindAllString(text, -1) {
		sigs["number_"+num[:4]] = true
	}
	for _, code := range alphanumCode.FindAllString(text, -1) {
		if len(code) >= 4 {
			sigs[strings.ToLower(code)] = true
		}
	}
	for _, addr := range addressPattern.FindAllString(text, -1) {
		words := addressWord.FindAllString(strings.ToLower(addr), -1)
		if len(words) > 2 {
			words = words[:2]
		}
		for _, w := range words {
			sigs[w] = true
		}
	}

	if strings.Contains(text, "logistics") {
		sigs["logistics"] = true
	}
	if strings.Contains(text, "mercado") && strings.Contains(text, "livre") {
		sigs["mercado_livre"] = true
	}
	if strings.Contains(text, "correios") || strings.Contains(text, "ebct") {
		sigs["correios"] = true
	}
	if strings.Contains(text, "amazon") {
		sigs["amazon"] = true
	}
	if postalSignature.MatchString(text) {
		sigs["cep_pattern"] = true
	}
	return sigs
}

// generateRules builds regex rule entries from the analysis. Primary comes
// from unique signatures when available, falling back to top keywords, then
// to the carrier name itself. Secondary is an order-insensitive combination
// of the two most frequent words.
func generateRules(analyses map[string]*carrierAnalysis) RuleFile {
	rules := make(RuleFile, len(analyses))

	for carrier, a := range analyses {
		entry := RuleEntry{ConfidenceBoost: 0.85}

		keywordPattern := ""
		if len(a.SignificantWords) > 0 {
			top := head(a.SignificantWords, 3)
			parts := make([]string, len(top))
			for i, w := range top {
				parts[i] = regexp.QuoteMeta(w)
			}
			keywordPattern = "(?i)(" + strings.Join(parts, "|") + ")"
			entry.Keywords = top
		}

		switch {
		case len(a.UniqueSignatures) > 0:
			sigs := head(a.UniqueSignatures, 5)
			parts := make([]string, len(sigs))
			for i, s := range sigs {
				parts[i] = regexp.QuoteMeta(s)
			}
			entry.Primary = "(?i)(" + strings.Join(parts, "|") + ")"
			entry.Secondary = keywordPattern
		case keywordPattern != "":
			entry.Primary = keywordPattern
		default:
			entry.Primary = "(?i)" + regexp.QuoteMeta(carrier)
		}

		if entry.Secondary == "" && len(a.SignificantWords) >= 2 {
			w0 := regexp.QuoteMeta(a.SignificantWords[0])
			w1 := regexp.QuoteMeta(a.SignificantWords[1])
			entry.Secondary = "(?is)" + w0 + ".*" + w1 + "|" + w1 + ".*" + w0
		}

		rules[carrier] = entry
	}
	return rules
}

// validateRules cross-checks each carrier's generated primary pattern
// against its own corpus and returns the fraction of matching samples.
func validateRules(rules RuleFile, corpus map[string][]string) map[string]float64 {
	results := make(map[string]float64, len(rules))

	for carrier, entry := range rules {
		texts := corpus[carrier]
		if len(texts) == 0 {
			continue
		}
		re, err := regexp.Compile(entry.Primary)
		if err != nil {
			results[carrier] = 0
			continue
		}
		matches := 0
		for _, text := range texts {
			if re.MatchString(text) {
				matches++
			}
		}
		results[carrier] = float64(matches) / float64(len(texts))
	}
	return results
}
