package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadKnowledgeFresh(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	k := store.LoadKnowledge()
	if k.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", k.Version)
	}

	for _, c := range []string{"amazon", "correios", "mercado_livre", "jadlog", "unknown"} {
		if _, ok := k.Carriers[c]; !ok {
			t.Errorf("seed carrier %q missing", c)
		}
	}
	if k.Statistics.TotalImages != 0 {
		t.Errorf("TotalImages = %d, want 0", k.Statistics.TotalImages)
	}
}

func TestLoadKnowledgeCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, patternsFile), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	k := store.LoadKnowledge()
	if k == nil {
		t.Fatal("LoadKnowledge returned nil for corrupt file")
	}
	if _, ok := k.Carriers["correios"]; !ok {
		t.Error("corrupt file did not fall back to seeded structure")
	}
}

func TestLoadKnowledgeSeedsMissingCarriers(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Older file knowing only one carrier.
	partial := []byte(`{"version":"1.0","companies":{"correios":{"total_samples":7}}}`)
	if err := os.WriteFile(filepath.Join(dir, patternsFile), partial, 0644); err != nil {
		t.Fatal(err)
	}

	k := store.LoadKnowledge()
	if k.Carriers["correios"].TotalSamples != 7 {
		t.Errorf("existing record lost: %+v", k.Carriers["correios"])
	}
	if _, ok := k.Carriers["jadlog"]; !ok {
		t.Error("missing carrier not seeded on load")
	}
	if k.Carriers["correios"].Shortcuts == nil {
		t.Error("nil shortcuts map not initialised on load")
	}
}

func TestLoadCacheCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, cacheFile), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}

	c := store.LoadCache()
	if c.QuickRecognition == nil || c.TextShortcuts == nil || c.PatternFrequency == nil {
		t.Error("corrupt cache did not fall back to empty maps")
	}
}

func TestLoadSignaturesCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, signaturesFile), []byte("not gob"), 0644); err != nil {
		t.Fatal(err)
	}

	sig := store.LoadSignatures()
	if sig.VisualHashes == nil {
		t.Error("corrupt signatures did not fall back to empty structure")
	}
}

func TestSaveAndReload(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	k := store.LoadKnowledge()
	k.Carriers["correios"].TotalSamples = 3
	if err := store.SaveKnowledge(k); err != nil {
		t.Fatalf("SaveKnowledge() error = %v", err)
	}

	sig := store.LoadSignatures()
	sig.VisualHashes["correios"] = []string{"abc123"}
	if err := store.SaveSignatures(sig); err != nil {
		t.Fatalf("SaveSignatures() error = %v", err)
	}

	c := store.LoadCache()
	c.QuickRecognition["sedex"] = "correios"
	if err := store.SaveCache(c); err != nil {
		t.Fatalf("SaveCache() error = %v", err)
	}

	if got := store.LoadKnowledge().Carriers["correios"].TotalSamples; got != 3 {
		t.Errorf("TotalSamples = %d after reload, want 3", got)
	}
	if got := store.LoadSignatures().VisualHashes["correios"]; len(got) != 1 || got[0] != "abc123" {
		t.Errorf("VisualHashes = %v after reload", got)
	}
	if got := store.LoadCache().QuickRecognition["sedex"]; got != "correios" {
		t.Errorf("QuickRecognition = %q after reload, want correios", got)
	}
}
