package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const fileSuffix = "_photos.json"

// Index maps stems to the records of a previously written manifest.
type Index map[string]Record

// Lookup returns the prior record for stem, or nil.
func (ix Index) Lookup(stem string) *Record {
	if r, ok := ix[stem]; ok {
		return &r
	}
	return nil
}

// Store reads and writes category manifests under one output directory.
type Store struct {
	dir string
	log *slog.Logger
}

func NewStore(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dir: dir, log: log}
}

// Path returns the manifest file for a category.
func (s *Store) Path(category string) string {
	return filepath.Join(s.dir, category+fileSuffix)
}

// Load returns the category's prior records keyed by stem. A missing file
// means no prior data; an unreadable or corrupt one is logged and treated
// the same way.
func (s *Store) Load(category string) Index {
	path := s.Path(category)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Index{}
	}
	if err != nil {
		s.log.Warn("cannot read prior manifest, starting fresh", "category", category, "path", path, "error", err)
		return Index{}
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Warn("prior manifest is not valid JSON, starting fresh", "category", category, "path", path, "error", err)
		return Index{}
	}

	ix := make(Index, len(records))
	for _, r := range records {
		stem := stemOf(r)
		if stem == "" {
			continue
		}
		r.Stem = stem
		if _, dup := ix[stem]; !dup {
			ix[stem] = r
		}
	}
	return ix
}

// Save replaces the category manifest with records, pretty-printed.
func (s *Store) Save(category string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	path := s.Path(category)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}
