// Package phototest builds small images with embedded EXIF for tests.
package phototest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// EXIF describes the tags written into a test JPEG. Zero values are omitted.
type EXIF struct {
	DateTimeOriginal string // "2006:01:02 15:04:05"
	DateTime         string
	Orientation      uint16

	// GPS, as degrees/minutes/seconds rationals.
	Lat    [3][2]uint32
	LatRef string
	Lon    [3][2]uint32
	LonRef string
	GPS    bool
}

// DMS converts a decimal value into whole degrees, whole minutes and
// hundredths of seconds, ignoring the sign.
func DMS(v float64) [3][2]uint32 {
	if v < 0 {
		v = -v
	}
	deg := uint32(v)
	rem := (v - float64(deg)) * 60
	min := uint32(rem)
	sec := uint32((rem-float64(min))*60*100 + 0.5)
	return [3][2]uint32{{deg, 1}, {min, 1}, {sec, 100}}
}

// WithGPS sets the GPS block from decimal coordinates.
func (e EXIF) WithGPS(lat, lon float64) EXIF {
	e.GPS = true
	e.Lat, e.Lon = DMS(lat), DMS(lon)
	e.LatRef, e.LonRef = "N", "E"
	if lat < 0 {
		e.LatRef = "S"
	}
	if lon < 0 {
		e.LonRef = "W"
	}
	return e
}

// Image returns a w x h gradient so scaled output is not uniform.
func Image(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

// JPEG encodes a w x h image and, when x is non-nil, inserts an APP1 EXIF
// segment right after the start-of-image marker.
func JPEG(t testing.TB, w, h int, x *EXIF) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Image(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	data := buf.Bytes()
	if x == nil {
		return data
	}

	payload := append([]byte("Exif\x00\x00"), x.tiff()...)
	segment := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	segment = append(segment, payload...)

	out := make([]byte, 0, len(data)+len(segment))
	out = append(out, data[:2]...)
	out = append(out, segment...)
	out = append(out, data[2:]...)
	return out
}

// PNG encodes a w x h image without metadata.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, Image(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes data to dir/name, creating dir, and optionally sets the
// modification time when mtime is non-zero.
func WriteFile(t testing.TB, dir, name string, data []byte, mtime time.Time) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
	return path
}

const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5

	tagOrientation      = 0x0112
	tagDateTime         = 0x0132
	tagExifPointer      = 0x8769
	tagGPSPointer       = 0x8825
	tagDateTimeOriginal = 0x9003
	tagGPSLatitudeRef   = 0x0001
	tagGPSLatitude      = 0x0002
	tagGPSLongitudeRef  = 0x0003
	tagGPSLongitude     = 0x0004
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var order = binary.LittleEndian

func ascii(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func short(tag uint16, v uint16) entry {
	b := make([]byte, 2)
	order.PutUint16(b, v)
	return entry{tag: tag, typ: typeShort, count: 1, data: b}
}

func rationals(tag uint16, vals [3][2]uint32) entry {
	b := make([]byte, 0, 24)
	for _, v := range vals {
		b = order.AppendUint32(b, v[0])
		b = order.AppendUint32(b, v[1])
	}
	return entry{tag: tag, typ: typeRational, count: 3, data: b}
}

func (x *EXIF) tiff() []byte {
	var root, exifDir, gpsDir []entry
	if x.Orientation != 0 {
		root = append(root, short(tagOrientation, x.Orientation))
	}
	if x.DateTime != "" {
		root = append(root, ascii(tagDateTime, x.DateTime))
	}
	if x.DateTimeOriginal != "" {
		exifDir = append(exifDir, ascii(tagDateTimeOriginal, x.DateTimeOriginal))
	}
	if x.GPS {
		gpsDir = append(gpsDir,
			ascii(tagGPSLatitudeRef, x.LatRef),
			rationals(tagGPSLatitude, x.Lat),
			ascii(tagGPSLongitudeRef, x.LonRef),
			rationals(tagGPSLongitude, x.Lon),
		)
	}
	return buildTIFF(root, exifDir, gpsDir)
}

// buildTIFF lays out IFD0 followed by the optional Exif and GPS IFDs, then a
// data area for values longer than four bytes.
func buildTIFF(root, exifDir, gpsDir []entry) []byte {
	if len(exifDir) > 0 {
		root = append(root, entry{tag: tagExifPointer, typ: typeLong, count: 1})
	}
	if len(gpsDir) > 0 {
		root = append(root, entry{tag: tagGPSPointer, typ: typeLong, count: 1})
	}
	dirs := [][]entry{root}
	if len(exifDir) > 0 {
		dirs = append(dirs, exifDir)
	}
	if len(gpsDir) > 0 {
		dirs = append(dirs, gpsDir)
	}

	offsets := make([]int, len(dirs))
	end := 8
	for i, d := range dirs {
		offsets[i] = end
		end += 2 + 12*len(d) + 4
	}

	next := 1
	for i := range root {
		if root[i].tag == tagExifPointer || root[i].tag == tagGPSPointer {
			root[i].data = order.AppendUint32(nil, uint32(offsets[next]))
			next++
		}
	}

	buf := make([]byte, end)
	copy(buf, "II")
	order.PutUint16(buf[2:], 42)
	order.PutUint32(buf[4:], 8)

	var extra []byte
	for i, d := range dirs {
		p := offsets[i]
		order.PutUint16(buf[p:], uint16(len(d)))
		p += 2
		for _, e := range d {
			order.PutUint16(buf[p:], e.tag)
			order.PutUint16(buf[p+2:], e.typ)
			order.PutUint32(buf[p+4:], e.count)
			if len(e.data) <= 4 {
				copy(buf[p+8:p+12], e.data)
			} else {
				order.PutUint32(buf[p+8:], uint32(end+len(extra)))
				extra = append(extra, e.data...)
				if len(extra)%2 == 1 {
					extra = append(extra, 0)
				}
			}
			p += 12
		}
		order.PutUint32(buf[p:], 0)
	}
	return append(buf, extra...)
}
