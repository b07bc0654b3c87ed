package photo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrCategoryNotFound is returned by Scan when the source directory is absent.
var ErrCategoryNotFound = errors.New("category source directory not found")

// Source is one scanned source image.
type Source struct {
	Path string // full path to the file
	Name string // base name including extension
	Stem string // base name without extension, NFC-normalized
}

// Scan lists the source images of one category directory in directory order.
// renditionExt is the extension the renderer writes ("webp", "jpg", "png");
// a file carrying it and a _thumb or _full stem is taken for a stray rendition
// and skipped. An empty renditionExt keeps every image. Entries with duplicate
// stems are skipped.
func Scan(dir, renditionExt string, log *slog.Logger) ([]Source, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrCategoryNotFound)
		}
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var sources []Source
	seen := make(map[string]string)
	for _, entry := range entries {
		// Skip directories
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isImageFile(name) {
			continue
		}
		stem := Stem(name)
		if isDerived(name, stem, renditionExt) {
			log.Info("skipping rendition found among sources", "file", name)
			continue
		}
		if prev, dup := seen[stem]; dup {
			log.Warn("duplicate stem, skipping file", "file", name, "kept", prev)
			continue
		}
		seen[stem] = name
		sources = append(sources, Source{
			Path: filepath.Join(dir, name),
			Name: name,
			Stem: stem,
		})
	}
	return sources, nil
}

// Stem strips the extension from a file name and normalizes it to NFC so the
// same name keeps one identity across filesystems.
func Stem(name string) string {
	base := filepath.Base(name)
	return norm.NFC.String(strings.TrimSuffix(base, filepath.Ext(base)))
}

// isImageFile checks for the source image extensions we process.
func isImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func isDerived(name, stem, renditionExt string) bool {
	if renditionExt == "" || !strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), renditionExt) {
		return false
	}
	return strings.HasSuffix(stem, thumbSuffix) || strings.HasSuffix(stem, fullSuffix)
}
