package geocode

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// Location is a resolved place. Either field may be nil when unknown.
type Location struct {
	City    *string `json:"city"`
	Country *string `json:"country"`
}

// Resolved reports whether both city and country are known.
func (l Location) Resolved() bool {
	return l.City != nil && l.Country != nil
}

// NewLocation builds a Location, mapping empty strings to nil.
func NewLocation(city, country string) Location {
	var loc Location
	if city != "" {
		loc.City = &city
	}
	if country != "" {
		loc.Country = &country
	}
	return loc
}

// Key returns the coarse cache key for a coordinate pair: both values
// rounded to four decimal places (about 11 m) and joined with a comma.
func Key(lat, lon float64) string {
	return roundCoord(lat) + "," + roundCoord(lon)
}

func roundCoord(v float64) string {
	// Adding +0 turns a rounded -0 into 0 so "-0.0000" never appears.
	r := math.Round(v*1e4)/1e4 + 0
	return strconv.FormatFloat(r, 'f', 4, 64)
}

// Cache maps coarse coordinate keys to resolved locations. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Location
	dirty   bool
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Location)}
}

// LoadCache reads a cache file. A missing file yields an empty cache. A file
// that cannot be parsed yields an empty cache together with the parse error
// so callers can warn.
func LoadCache(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewCache(), nil
	}
	if err != nil {
		return NewCache(), fmt.Errorf("read geocode cache: %w", err)
	}

	entries := make(map[string]Location)
	if err := json.Unmarshal(data, &entries); err != nil {
		return NewCache(), fmt.Errorf("unmarshal geocode cache: %w", err)
	}
	if entries == nil {
		entries = make(map[string]Location)
	}
	return &Cache{entries: entries}, nil
}

// Save writes the cache as an indented JSON object keyed by coarse key,
// replacing the file atomically.
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal geocode cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write geocode cache: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace geocode cache: %w", err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	return nil
}

func (c *Cache) Get(key string) (Location, bool) {
	if c == nil {
		return Location{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.entries[key]
	return loc, ok
}

func (c *Cache) Set(key string, loc Location) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = loc
	c.dirty = true
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dirty reports whether the cache changed since it was loaded or saved.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Stats summarizes cache contents.
type Stats struct {
	Entries    int
	Resolved   int // both city and country
	Partial    int // exactly one of them
	Unresolved int // neither
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Entries: len(c.entries)}
	for _, loc := range c.entries {
		switch {
		case loc.Resolved():
			s.Resolved++
		case loc.City != nil || loc.Country != nil:
			s.Partial++
		default:
			s.Unresolved++
		}
	}
	return s
}

// Prune drops entries with neither city nor country and returns the removed keys.
func (c *Cache) Prune() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []string
	for key, loc := range c.entries {
		if loc.City == nil && loc.Country == nil {
			delete(c.entries, key)
			removed = append(removed, key)
		}
	}
	if len(removed) > 0 {
		c.dirty = true
	}
	sort.Strings(removed)
	return removed
}
