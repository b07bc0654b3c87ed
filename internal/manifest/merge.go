package manifest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/electronjoe/photomanifest/internal/geocode"
	"github.com/electronjoe/photomanifest/internal/photo"
)

// Locator resolves coordinates to a place. *geocode.Resolver implements it.
type Locator interface {
	Resolve(ctx context.Context, lat, lon float64, category string) geocode.Location
}

// MetadataReader extracts capture date and GPS from a source file.
// *photo.Extractor implements it.
type MetadataReader interface {
	Extract(path string) photo.Metadata
}

// Outcome is the location path a photo took through the merge.
type Outcome string

const (
	OutcomeSkippedGPS Outcome = "skipped-gps" // category exempt from GPS work
	OutcomeSticky     Outcome = "sticky"      // prior resolved location reused
	OutcomeNoGPS      Outcome = "no-gps"      // no usable coordinates in the file
	OutcomeResolved   Outcome = "resolved"
	OutcomeUnresolved Outcome = "unresolved"
)

// Scanned is the freshly computed part of a record.
type Scanned struct {
	Stem     string
	Path     string // source file, read for metadata
	ThumbSrc string
	FullSrc  string
	Width    int
	Height   int

	// Meta is the metadata already read from Path. When nil the merger
	// reads it itself, and only on the paths that need it.
	Meta *photo.Metadata
}

// Merger reconciles freshly scanned photos with their prior records.
type Merger struct {
	locator  Locator
	metadata MetadataReader
	force    bool
	skip     map[string]struct{}
	log      *slog.Logger
}

// MergerOptions configures a Merger.
type MergerOptions struct {
	Force          bool     // discard prior locations and resolve again
	SkipCategories []string // categories exempt from all GPS work
	Logger         *slog.Logger
}

func NewMerger(locator Locator, metadata MetadataReader, opts MergerOptions) *Merger {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	skip := make(map[string]struct{}, len(opts.SkipCategories))
	for _, c := range opts.SkipCategories {
		skip[strings.ToLower(c)] = struct{}{}
	}
	return &Merger{locator: locator, metadata: metadata, force: opts.Force, skip: skip, log: log}
}

// SkipsGPS reports whether category is exempt from GPS work.
func (m *Merger) SkipsGPS(category string) bool {
	_, ok := m.skip[strings.ToLower(category)]
	return ok
}

// Merge builds the record for one scanned photo. prior is the record with the
// same stem from the last run, or nil.
//
// A skip-listed category never reaches the locator, even when forced. Outside
// the skip-list a prior record with both city and country is reused as-is
// unless forced.
func (m *Merger) Merge(ctx context.Context, category string, in Scanned, prior *Record) (Record, Outcome) {
	rec := Record{
		Stem:     in.Stem,
		Src:      in.FullSrc,
		ThumbSrc: in.ThumbSrc,
		FullSrc:  in.FullSrc,
		Alt:      Caption(in.Stem),
		Width:    in.Width,
		Height:   in.Height,
		Caption:  Caption(in.Stem),
	}
	if prior != nil && prior.Caption != "" {
		rec.Caption = prior.Caption
	}

	if m.SkipsGPS(category) {
		if prior != nil && prior.HasLocation() {
			rec.City, rec.Country = prior.City, prior.Country
			rec.Date = prior.Date
		}
		if rec.Date == "" {
			rec.Date = m.metadataOf(in).DateString()
		}
		return rec, OutcomeSkippedGPS
	}

	if !m.force && prior != nil && prior.Location().Resolved() && prior.Date != "" {
		rec.City, rec.Country, rec.Date = prior.City, prior.Country, prior.Date
		return rec, OutcomeSticky
	}

	meta := m.metadataOf(in)
	rec.Date = meta.DateString()

	outcome := OutcomeNoGPS
	if meta.GPS != nil {
		loc := m.locator.Resolve(ctx, meta.GPS.Lat, meta.GPS.Lon, category)
		rec.City, rec.Country = loc.City, loc.Country
		outcome = OutcomeUnresolved
		if loc.City != nil || loc.Country != nil {
			outcome = OutcomeResolved
		}
	}

	// Without force, a value set in an earlier run is never replaced by null.
	if !m.force && prior != nil {
		if rec.City == nil {
			rec.City = prior.City
		}
		if rec.Country == nil {
			rec.Country = prior.Country
		}
	}

	m.log.Debug("merged photo", "category", category, "stem", in.Stem, "outcome", outcome, "date", rec.Date)
	return rec, outcome
}

func (m *Merger) metadataOf(in Scanned) photo.Metadata {
	if in.Meta != nil {
		return *in.Meta
	}
	return m.metadata.Extract(in.Path)
}
