package photo

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/electronjoe/photomanifest/internal/gps"
)

func init() {
	// Maker notes let goexif get past vendor blocks in some camera files.
	exif.RegisterParsers(mknote.All...)
}

// TagReader reads the named EXIF tags from a file. Tags that are absent are
// left out of the result.
type TagReader interface {
	ReadTags(path string, names ...exif.FieldName) (map[exif.FieldName]*tiff.Tag, error)
}

// EXIFReader is the goexif-backed TagReader.
type EXIFReader struct{}

func (EXIFReader) ReadTags(path string, names ...exif.FieldName) (map[exif.FieldName]*tiff.Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode exif: %w", err)
	}

	tags := make(map[exif.FieldName]*tiff.Tag, len(names))
	for _, name := range names {
		if tag, err := x.Get(name); err == nil {
			tags[name] = tag
		}
	}
	return tags, nil
}

// DateSource records where a capture date came from.
type DateSource string

const (
	DateFromOriginal  DateSource = "DateTimeOriginal"
	DateFromDigitized DateSource = "DateTimeDigitized"
	DateFromModified  DateSource = "DateTime"
	DateFromFile      DateSource = "file"
	DateFromClock     DateSource = "clock"
)

// Metadata is what we take from a source image.
type Metadata struct {
	Date        time.Time // midnight UTC of the capture date
	DateSource  DateSource
	GPS         *gps.Point // nil when absent or undecodable
	Orientation int        // EXIF orientation 1-8, 0 when unknown
}

// DateString formats the capture date as YYYY-MM-DD.
func (m Metadata) DateString() string {
	return m.Date.Format(time.DateOnly)
}

var metadataTags = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
	exif.GPSLatitude,
	exif.GPSLatitudeRef,
	exif.GPSLongitude,
	exif.GPSLongitudeRef,
	exif.Orientation,
}

// dateChain is the order in which timestamp tags are tried.
var dateChain = []struct {
	tag    exif.FieldName
	source DateSource
}{
	{exif.DateTimeOriginal, DateFromOriginal},
	{exif.DateTimeDigitized, DateFromDigitized},
	{exif.DateTime, DateFromModified},
}

var exifTimeLayouts = []string{
	"2006:01:02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006:01:02",
	"2006-01-02",
}

// Extractor reads capture dates and GPS positions.
type Extractor struct {
	tags TagReader
	stat func(string) (os.FileInfo, error)
	now  func() time.Time
}

// NewExtractor returns an Extractor reading tags through r; a nil r uses goexif.
func NewExtractor(r TagReader) *Extractor {
	if r == nil {
		r = EXIFReader{}
	}
	return &Extractor{tags: r, stat: os.Stat, now: time.Now}
}

// Extract never fails: a missing or unreadable timestamp falls back to the
// file's timestamp, and undecodable GPS leaves GPS nil.
func (e *Extractor) Extract(path string) Metadata {
	// Files without EXIF are routine; an error here just means no tags.
	tags, _ := e.tags.ReadTags(path, metadataTags...)

	var meta Metadata
	meta.Date, meta.DateSource = e.captureDate(path, tags)
	meta.GPS = gpsFromTags(tags)
	meta.Orientation = orientationFromTag(tags[exif.Orientation])
	return meta
}

func orientationFromTag(tag *tiff.Tag) int {
	if tag == nil {
		return 0
	}
	if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
		return v
	}
	return 0
}

func (e *Extractor) captureDate(path string, tags map[exif.FieldName]*tiff.Tag) (time.Time, DateSource) {
	for _, step := range dateChain {
		if t, ok := parseTimeTag(tags[step.tag]); ok {
			return truncateDay(t), step.source
		}
	}
	if info, err := e.stat(path); err == nil {
		return truncateDay(info.ModTime()), DateFromFile
	}
	return truncateDay(e.now()), DateFromClock
}

// parseTimeTag reads an EXIF timestamp as a wall-clock value in UTC, so the
// calendar date never shifts with the host time zone.
func parseTimeTag(tag *tiff.Tag) (time.Time, bool) {
	if tag == nil {
		return time.Time{}, false
	}
	s, err := tag.StringVal()
	if err != nil {
		return time.Time{}, false
	}
	s = strings.Trim(s, "\x00 \t")
	for _, layout := range exifTimeLayouts {
		if len(s) < len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, s[:len(layout)], time.UTC); err == nil && t.Year() > 1 {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func gpsFromTags(tags map[exif.FieldName]*tiff.Tag) *gps.Point {
	if tags == nil {
		return nil
	}
	p, ok := gps.Resolve(
		coordinateFromTag(tags[exif.GPSLatitude]), refFromTag(tags[exif.GPSLatitudeRef]),
		coordinateFromTag(tags[exif.GPSLongitude]), refFromTag(tags[exif.GPSLongitudeRef]),
	)
	if !ok {
		return nil
	}
	return &p
}

// coordinateFromTag maps a raw tag onto the matching gps.Coordinate variant.
func coordinateFromTag(tag *tiff.Tag) gps.Coordinate {
	if tag == nil || tag.Count == 0 {
		return gps.Coordinate{}
	}
	n := int(tag.Count)
	parts := make([]float64, 0, n)

	switch tag.Format() {
	case tiff.RatVal:
		for i := 0; i < n; i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return gps.Coordinate{}
			}
			// A zero denominator yields NaN/Inf, which the normalizer rejects.
			parts = append(parts, float64(num)/float64(den))
		}
	case tiff.IntVal:
		for i := 0; i < n; i++ {
			v, err := tag.Int64(i)
			if err != nil {
				return gps.Coordinate{}
			}
			parts = append(parts, float64(v))
		}
	case tiff.FloatVal:
		for i := 0; i < n; i++ {
			v, err := tag.Float(i)
			if err != nil {
				return gps.Coordinate{}
			}
			parts = append(parts, v)
		}
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return gps.Coordinate{}
		}
		return gps.FromText(strings.Trim(s, "\x00 "))
	default:
		return gps.Coordinate{}
	}

	if len(parts) == 1 {
		return gps.FromDecimal(parts[0])
	}
	return gps.FromDMS(parts...)
}

func refFromTag(tag *tiff.Tag) string {
	if tag == nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.Trim(s, "\x00 ")
}
