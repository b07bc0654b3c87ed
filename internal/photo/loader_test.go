package photo

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/electronjoe/photomanifest/internal/logging"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan_FiltersImagesAndDerivedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"beach.jpg", "Hike.JPEG", "map.png", "notes.txt", "raw.cr2",
		"beach_thumb.webp", "old_full.png", "old_thumb.png",
	} {
		touch(t, dir, name)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	sources, err := Scan(dir, "png", logging.Discard())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	var stems []string
	for _, s := range sources {
		stems = append(stems, s.Stem)
		if s.Path != filepath.Join(dir, s.Name) {
			t.Errorf("path %q does not match name %q", s.Path, s.Name)
		}
	}
	sort.Strings(stems)
	want := []string{"Hike", "beach", "map"}
	if len(stems) != len(want) {
		t.Fatalf("stems = %v, want %v", stems, want)
	}
	for i := range want {
		if stems[i] != want[i] {
			t.Errorf("stems[%d] = %q, want %q", i, stems[i], want[i])
		}
	}
}

func TestScan_DuplicateStemKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "sunset.jpg")
	touch(t, dir, "sunset.png")

	sources, err := Scan(dir, "webp", logging.Discard())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	if sources[0].Stem != "sunset" {
		t.Errorf("unexpected stem %q", sources[0].Stem)
	}
}

func TestScan_KeepsSuffixedNamesInOtherFormats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"beach_full.jpg", "my_thumb.png", "plain.jpg", "plain_thumb.webp"} {
		touch(t, dir, name)
	}

	var logs bytes.Buffer
	sources, err := Scan(dir, "webp", logging.New(&logs, "info", false))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	var stems []string
	for _, s := range sources {
		stems = append(stems, s.Stem)
	}
	sort.Strings(stems)
	want := []string{"beach_full", "my_thumb", "plain"}
	if strings.Join(stems, ",") != strings.Join(want, ",") {
		t.Errorf("stems = %v, want %v", stems, want)
	}
	if !strings.Contains(logs.String(), "plain_thumb.webp") {
		t.Errorf("skipped rendition not logged:\n%s", logs.String())
	}
}

func TestScan_NoRenditionExtKeepsEverything(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "old_full.png")

	sources, err := Scan(dir, "", logging.Discard())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(sources) != 1 || sources[0].Stem != "old_full" {
		t.Errorf("sources = %+v", sources)
	}
}

func TestScan_MissingDirectory(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "nope"), "webp", logging.Discard())
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestStem(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a.jpg", "a"},
		{"dir/b.tar.png", "b.tar"},
		{"no-ext", "no-ext"},
		// "e" followed by a combining acute accent collapses to one rune.
		{"cafe\u0301.jpg", "caf\u00e9"},
	}
	for _, tt := range tests {
		if got := Stem(tt.name); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
