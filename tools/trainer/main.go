// Package main provides an offline rule trainer for delivery labels.
// It analyzes labelled sample corpora, derives carrier-specific regex
// patterns, cross-validates them and emits a JSON rule file compatible
// with the runtime catalog loader.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func main() {
	dataDir := flag.String("data", "data/training_texts", "Directory of <carrier>/*.txt sample corpora")
	output := flag.String("output", "learned_rules.json", "Rule file to write (catalog JSON format)")
	reportPath := flag.String("report", "", "Optional text report file (default: stdout)")
	minSamples := flag.Int("min-samples", 1, "Skip carriers with fewer sample texts than this")
	topN := flag.Int("top", 50, "Keep top N significant words per carrier")
	analyzeOnly := flag.Bool("analyze", false, "Analyze and report only, do not write the rule file")

	flag.Parse()

	corpus, err := loadCorpus(*dataDir, *minSamples)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading corpus: %v\n", err)
		os.Exit(1)
	}
	if len(corpus) == 0 {
		fmt.Fprintf(os.Stderr, "No training texts found under %s (expected <carrier>/*.txt)\n", *dataDir)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Analyzing %d carriers...\n", len(corpus))

	analyses := analyzeCorpus(corpus, *topN)
	rules := generateRules(analyses)
	validation := validateRules(rules, corpus)

	report := buildReport(analyses, rules, validation)
	if *reportPath != "" {
		if err := os.WriteFile(*reportPath, []byte(report), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", *reportPath)
	} else {
		fmt.Println(report)
	}

	if *analyzeOnly {
		return
	}

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding rules: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, append(data, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing rule file: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Rule file written to %s (%d carriers)\n", *output, len(rules))
}

// loadCorpus reads <dir>/<carrier>/*.txt sample texts, keyed by carrier.
func loadCorpus(dir string, minSamples int) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	corpus := make(map[string][]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		carrier := strings.ToLower(entry.Name())

		files, err := filepath.Glob(filepath.Join(dir, entry.Name(), "*.txt"))
		if err != nil {
			return nil, err
		}
		var texts []string
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", file, err)
				continue
			}
			text := strings.TrimSpace(string(data))
			if text != "" {
				texts = append(texts, text)
			}
		}
		if len(texts) >= minSamples && len(texts) > 0 {
			corpus[carrier] = texts
		}
	}
	return corpus, nil
}

// buildReport renders a human-readable training summary.
func buildReport(analyses map[string]*carrierAnalysis, rules RuleFile, validation map[string]float64) string {
	var b strings.Builder
	b.WriteString("=== Pattern Training Report ===\n\n")

	carriers := make([]string, 0, len(analyses))
	for carrier := range analyses {
		carriers = append(carriers, carrier)
	}
	sort.Strings(carriers)

	for _, carrier := range carriers {
		a := analyses[carrier]
		fmt.Fprintf(&b, "Carrier: %s\n", carrier)
		fmt.Fprintf(&b, "  Texts: %d  Unique words: %d  Avg length: %.0f chars\n",
			a.TextCount, a.UniqueWords, a.AvgTextLength)
		fmt.Fprintf(&b, "  Top words: %s\n", strings.Join(head(a.SignificantWords, 8), ", "))
		fmt.Fprintf(&b, "  Unique signatures: %s\n", strings.Join(head(a.UniqueSignatures, 5), ", "))

		if rule, ok := rules[carrier]; ok {
			fmt.Fprintf(&b, "  Primary:   %s\n", rule.Primary)
			if rule.Secondary != "" {
				fmt.Fprintf(&b, "  Secondary: %s\n", rule.Secondary)
			}
			fmt.Fprintf(&b, "  Keywords:  %s\n", strings.Join(rule.Keywords, ", "))
		}
		if acc, ok := validation[carrier]; ok {
			fmt.Fprintf(&b, "  Cross-validation: %.1f%% of samples matched\n", acc*100)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
