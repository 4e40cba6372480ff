package knowledge

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// File names inside the models directory.
const (
	patternsFile   = "learned_patterns.json"
	signaturesFile = "company_signatures.gob"
	cacheFile      = "pattern_cache.json"
)

// Store loads and persists the learning state under one models directory.
// Loading is fail-soft: a missing or corrupt file yields a fresh structure
// so processing never stops on damaged knowledge. Saving is write-through
// and atomic per file (temp file then rename).
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "models"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the models directory.
func (s *Store) Dir() string {
	return s.dir
}

// LoadKnowledge reads learned_patterns.json, or returns the seeded initial
// structure when the file is absent or unreadable.
func (s *Store) LoadKnowledge() *Knowledge {
	k := newKnowledge()

	data, err := os.ReadFile(filepath.Join(s.dir, patternsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[knowledge] load patterns: %v, starting fresh", err)
		}
		return k
	}

	var loaded Knowledge
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Printf("[knowledge] corrupt patterns file: %v, starting fresh", err)
		return k
	}

	if loaded.Carriers == nil {
		loaded.Carriers = make(map[string]*CarrierRecord)
	}
	// Seed any carrier missing from an older file.
	for name, rec := range k.Carriers {
		if _, ok := loaded.Carriers[name]; !ok {
			loaded.Carriers[name] = rec
		}
	}
	for _, rec := range loaded.Carriers {
		if rec.Shortcuts == nil {
			rec.Shortcuts = make(map[string]string)
		}
	}
	return &loaded
}

// LoadSignatures reads company_signatures.gob, or returns empty signatures.
func (s *Store) LoadSignatures() *Signatures {
	f, err := os.Open(filepath.Join(s.dir, signaturesFile))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[knowledge] load signatures: %v, starting fresh", err)
		}
		return newSignatures()
	}
	defer func() { _ = f.Close() }()

	sig := newSignatures()
	if err := gob.NewDecoder(f).Decode(sig); err != nil {
		log.Printf("[knowledge] corrupt signatures file: %v, starting fresh", err)
		return newSignatures()
	}
	return sig
}

// LoadCache reads pattern_cache.json, or returns an empty cache.
func (s *Store) LoadCache() *Cache {
	data, err := os.ReadFile(filepath.Join(s.dir, cacheFile))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[knowledge] load cache: %v, starting fresh", err)
		}
		return newCache()
	}

	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		log.Printf("[knowledge] corrupt cache file: %v, starting fresh", err)
		return newCache()
	}
	if c.QuickRecognition == nil {
		c.QuickRecognition = make(map[string]string)
	}
	if c.TextShortcuts == nil {
		c.TextShortcuts = make(map[string]string)
	}
	if c.PatternFrequency == nil {
		c.PatternFrequency = make(map[string]int)
	}
	return &c
}

// SaveKnowledge writes learned_patterns.json.
func (s *Store) SaveKnowledge(k *Knowledge) error {
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return fmt.Errorf("encode patterns: %w", err)
	}
	return s.writeAtomic(patternsFile, data)
}

// SaveSignatures writes company_signatures.gob.
func (s *Store) SaveSignatures(sig *Signatures) error {
	tmp, err := os.CreateTemp(s.dir, signaturesFile+".*")
	if err != nil {
		return fmt.Errorf("write signatures: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := gob.NewEncoder(tmp).Encode(sig); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode signatures: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write signatures: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, signaturesFile))
}

// SaveCache writes pattern_cache.json.
func (s *Store) SaveCache(c *Cache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return s.writeAtomic(cacheFile, data)
}

func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}
