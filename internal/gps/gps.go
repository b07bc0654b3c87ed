// Package gps converts the coordinate encodings found in image metadata into
// signed decimal degrees.
package gps

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies which encoding a Coordinate carries.
type Kind int

const (
	Unknown Kind = iota
	Decimal
	DMS
	Text
	LatLon
)

func (k Kind) String() string {
	switch k {
	case Decimal:
		return "decimal"
	case DMS:
		return "dms"
	case Text:
		return "text"
	case LatLon:
		return "latlon"
	default:
		return "unknown"
	}
}

// Point is a resolved latitude/longitude pair.
type Point struct {
	Lat float64
	Lon float64
}

// Coordinate is a raw coordinate as read from metadata. Only the field
// matching Kind is meaningful.
type Coordinate struct {
	Kind  Kind
	Value float64   // Decimal
	Parts []float64 // DMS: degrees, minutes, seconds
	Raw   string    // Text
	Point *Point    // LatLon
}

// FromDecimal wraps an already-decimal value.
func FromDecimal(v float64) Coordinate {
	return Coordinate{Kind: Decimal, Value: v}
}

// FromDMS wraps an ordered [degrees, minutes, seconds] sequence. Missing
// trailing elements are treated as zero.
func FromDMS(parts ...float64) Coordinate {
	return Coordinate{Kind: DMS, Parts: parts}
}

// FromText wraps a delimited string such as "34/1, 3/1, 0/1" or "10 30 0".
func FromText(s string) Coordinate {
	return Coordinate{Kind: Text, Raw: s}
}

// FromPoint wraps a value that already exposes latitude and longitude.
// A nil point yields an Unknown coordinate.
func FromPoint(p *Point) Coordinate {
	if p == nil {
		return Coordinate{Kind: Unknown}
	}
	return Coordinate{Kind: LatLon, Point: p}
}

// Normalize returns the coordinate in signed decimal degrees. The sign is
// flipped when ref is a southern or western indicator. The boolean is false
// when the coordinate cannot be decoded; Normalize never panics.
//
// LatLon coordinates carry two values, so Normalize reports them as
// undecodable; use NormalizePoint for those.
func Normalize(c Coordinate, ref string) (float64, bool) {
	var (
		v  float64
		ok bool
	)
	switch c.Kind {
	case Decimal:
		v, ok = c.Value, true
	case DMS:
		v, ok = fromParts(c.Parts)
	case Text:
		v, ok = parseText(c.Raw)
	default:
		return 0, false
	}
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if isNegativeRef(ref) {
		v = -math.Abs(v)
	}
	return v, true
}

// NormalizePoint returns the latitude/longitude of a LatLon coordinate
// unchanged.
func NormalizePoint(c Coordinate) (Point, bool) {
	if c.Kind != LatLon || c.Point == nil {
		return Point{}, false
	}
	if !finite(c.Point.Lat) || !finite(c.Point.Lon) {
		return Point{}, false
	}
	return *c.Point, true
}

// Resolve turns a latitude/longitude pair of raw coordinates with their
// hemisphere references into a Point. Both halves must decode.
func Resolve(lat Coordinate, latRef string, lon Coordinate, lonRef string) (Point, bool) {
	if lat.Kind == LatLon {
		return NormalizePoint(lat)
	}
	la, ok := Normalize(lat, latRef)
	if !ok {
		return Point{}, false
	}
	lo, ok := Normalize(lon, lonRef)
	if !ok {
		return Point{}, false
	}
	return Point{Lat: la, Lon: lo}, true
}

func fromParts(parts []float64) (float64, bool) {
	if len(parts) == 0 {
		return 0, false
	}
	var dms [3]float64
	for i := 0; i < len(parts) && i < 3; i++ {
		if !finite(parts[i]) {
			return 0, false
		}
		dms[i] = parts[i]
	}
	return dms[0] + dms[1]/60 + dms[2]/3600, true
}

func parseText(s string) (float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return 0, false
	}
	parts := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, ok := parseComponent(f)
		if !ok {
			return 0, false
		}
		parts = append(parts, v)
	}
	return fromParts(parts)
}

// parseComponent parses "12.5" or a rational "num/den".
func parseComponent(s string) (float64, bool) {
	num, den, isRat := strings.Cut(s, "/")
	if !isRat {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil || d == 0 {
		return 0, false
	}
	return n / d, true
}

func isNegativeRef(ref string) bool {
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		return true
	}
	return false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
