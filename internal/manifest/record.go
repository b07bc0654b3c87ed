// Package manifest holds the per-category photo records written for the
// website, the merge rules that carry captions and locations across runs,
// and the JSON store they are persisted in.
package manifest

import (
	"path"
	"strings"

	"github.com/electronjoe/photomanifest/internal/geocode"
)

// Record is one photo in a category manifest.
type Record struct {
	Stem     string  `json:"-"`
	Src      string  `json:"src,omitempty"` // same as FullSrc, kept for older front ends
	ThumbSrc string  `json:"thumbSrc"`
	FullSrc  string  `json:"fullSrc"`
	Alt      string  `json:"alt"`
	Date     string  `json:"date"` // YYYY-MM-DD
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Caption  string  `json:"caption"`
	City     *string `json:"city"`
	Country  *string `json:"country"`
}

// Location returns the record's city and country.
func (r Record) Location() geocode.Location {
	return geocode.Location{City: r.City, Country: r.Country}
}

// HasLocation reports whether either city or country is set.
func (r Record) HasLocation() bool {
	return r.City != nil || r.Country != nil
}

// Caption derives display text from a stem: dashes and underscores become
// spaces.
func Caption(stem string) string {
	return strings.NewReplacer("-", " ", "_", " ").Replace(stem)
}

// stemOf recovers a record's stem from its rendition paths, which is all a
// persisted manifest carries.
func stemOf(r Record) string {
	if s := trimRendition(r.ThumbSrc, "_thumb"); s != "" {
		return s
	}
	return trimRendition(r.FullSrc, "_full")
}

func trimRendition(p, suffix string) string {
	if p == "" {
		return ""
	}
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.TrimSuffix(base, suffix)
}
