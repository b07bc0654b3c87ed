package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/electronjoe/photomanifest/internal/geocode"
	"github.com/electronjoe/photomanifest/internal/manifest"
)

// CategorySummary reports what happened to one category.
type CategorySummary struct {
	Category string
	Skipped  bool // source directory missing
	Photos   int  // records written
	Failed   int  // photos dropped after a rendition failure
	Outcomes map[manifest.Outcome]int
}

// Summary reports a whole run.
type Summary struct {
	Categories []CategorySummary
	Geocode    geocode.ResolverStats
}

// Photos returns the number of records written across all categories.
func (s Summary) Photos() int {
	n := 0
	for _, c := range s.Categories {
		n += c.Photos
	}
	return n
}

// Skipped returns the categories whose source directory was missing.
func (s Summary) Skipped() []string {
	var out []string
	for _, c := range s.Categories {
		if c.Skipped {
			out = append(out, c.Category)
		}
	}
	return out
}

func (c CategorySummary) String() string {
	if c.Skipped {
		return c.Category + ": skipped (source folder not found)"
	}
	keys := make([]string, 0, len(c.Outcomes))
	for k := range c.Outcomes {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, c.Outcomes[manifest.Outcome(k)]))
	}
	s := fmt.Sprintf("%s: %d photos", c.Category, c.Photos)
	if c.Failed > 0 {
		s += fmt.Sprintf(", %d failed", c.Failed)
	}
	if len(parts) > 0 {
		s += " (" + strings.Join(parts, ", ") + ")"
	}
	return s
}
