package catalog

import "regexp"

// FieldRule extracts one structured field from label text. A full structural
// match scores higher than a partial one.
type FieldRule struct {
	Name              string
	Full              *regexp.Regexp
	FullConfidence    float64
	Partial           *regexp.Regexp
	PartialConfidence float64
}

// FieldMatch is one extracted value with its confidence.
type FieldMatch struct {
	Value      string
	Confidence float64
}

// fieldRules is the declarative extraction table. Patterns target Brazilian
// shipping labels: invoice numbers (nota fiscal), CEP postal codes, postal
// tracking codes, recipient lines and street addresses.
var fieldRules = []FieldRule{
	{
		Name:              "nf_number",
		Full:              regexp.MustCompile(`(?i)\bNF[-:\s]?(\d{6,12})\b`),
		FullConfidence:    0.95,
		Partial:           regexp.MustCompile(`\b(\d{8,12})\b`),
		PartialConfidence: 0.7,
	},
	{
		Name:              "tracking_code",
		Full:              regexp.MustCompile(`\b([A-Z]{2}\d{9}[A-Z]{2})\b`),
		FullConfidence:    0.95,
		Partial:           regexp.MustCompile(`\b([A-Z]{2,3}\d{8,13})\b`),
		PartialConfidence: 0.7,
	},
	{
		Name:              "cep",
		Full:              regexp.MustCompile(`\b(\d{5}-\d{3})\b`),
		FullConfidence:    0.95,
		Partial:           regexp.MustCompile(`\bCEP:?\s*(\d{8})\b`),
		PartialConfidence: 0.65,
	},
	{
		Name:           "recipient_name",
		Full:           regexp.MustCompile(`(?i)destinat[aá]rio:?\s*([\p{L}][\p{L} .]{4,50})`),
		FullConfidence: 0.85,
		Partial: regexp.MustCompile(
			`(?i)\bpara:?\s+([\p{Lu}][\p{Ll}]+(?:\s+[\p{Lu}][\p{Ll}]+)+)`),
		PartialConfidence: 0.6,
	},
	{
		Name:           "address",
		Full:           regexp.MustCompile(`(?i)\b((?:rua|av|avenida|travessa|alameda|pra[cç]a)\s+[\p{L}\d .]+?,\s*\d+)`),
		FullConfidence: 0.85,
		Partial:        regexp.MustCompile(`(?i)\b((?:rua|av|avenida)\s+[\p{L} ]{3,40})`),
		PartialConfidence: 0.55,
	},
	{
		Name:           "url",
		Full:           regexp.MustCompile(`(?i)\b([\w-]+(?:\.[\w-]+)*\.com(?:\.br)?)\b`),
		FullConfidence: 0.75,
	},
}

// FieldNames returns the names of all extractable fields.
func FieldNames() []string {
	names := make([]string, len(fieldRules))
	for i, r := range fieldRules {
		names[i] = r.Name
	}
	return names
}

// ExtractField returns every match of one field in the text, full structural
// matches first. Unknown field names yield nil.
func ExtractField(text, name string) []FieldMatch {
	for _, r := range fieldRules {
		if r.Name == name {
			return r.extract(text)
		}
	}
	return nil
}

func (r *FieldRule) extract(text string) []FieldMatch {
	var out []FieldMatch
	seen := make(map[string]bool)

	add := func(matches [][]string, conf float64) {
		for _, m := range matches {
			v := m[0]
			if len(m) > 1 && m[1] != "" {
				v = m[1]
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, FieldMatch{Value: v, Confidence: conf})
		}
	}

	if r.Full != nil {
		add(r.Full.FindAllStringSubmatch(text, -1), r.FullConfidence)
	}
	if r.Partial != nil {
		add(r.Partial.FindAllStringSubmatch(text, -1), r.PartialConfidence)
	}
	return out
}

// ExtractAll runs every field rule and keeps the best match per field.
// Fields with no match are absent from the result.
func ExtractAll(text string) map[string]FieldValue {
	fields := make(map[string]FieldValue)
	for i := range fieldRules {
		matches := fieldRules[i].extract(text)
		if len(matches) == 0 {
			continue
		}
		best := matches[0]
		for _, m := range matches[1:] {
			if m.Confidence > best.Confidence {
				best = m
			}
		}
		fields[fieldRules[i].Name] = FieldValue{Value: best.Value, Confidence: best.Confidence}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
