package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/electronjoe/photomanifest/internal/config"
	"github.com/electronjoe/photomanifest/internal/geocode"
	"github.com/electronjoe/photomanifest/internal/logging"
	"github.com/electronjoe/photomanifest/internal/manifest"
	"github.com/electronjoe/photomanifest/internal/photo"
	"github.com/electronjoe/photomanifest/internal/photo/phototest"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Reverse(context.Context, float64, float64) ([]geocode.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []geocode.Address{{Town: "Los Angeles", Country: "United States"}}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig(src, out string) *config.Config {
	cfg := config.Default()
	cfg.SrcDir = src
	cfg.OutDir = out
	cfg.Rendition.ThumbWidth = 8
	cfg.Rendition.FullWidth = 16
	cfg.Rendition.Format = "jpeg"
	cfg.Geocoder.DelayMS = 0
	cfg.Geocoder.SkipCategories = []string{"me"}
	cfg.Workers = 2
	return cfg
}

// newTestPipeline wires a pipeline around provider the same way FromConfig
// does, reloading the cache from disk like a fresh process would.
func newTestPipeline(t *testing.T, cfg *config.Config, provider geocode.Provider) *Pipeline {
	t.Helper()
	return newTestPipelineWithTags(t, cfg, provider, nil)
}

func newTestPipelineWithTags(t *testing.T, cfg *config.Config, provider geocode.Provider, tags photo.TagReader) *Pipeline {
	t.Helper()
	log := logging.Discard()

	renderer, err := photo.NewRenderer(cfg.OutDir, photo.RenditionOptions{
		ThumbWidth:   cfg.Rendition.ThumbWidth,
		FullWidth:    cfg.Rendition.FullWidth,
		ThumbQuality: cfg.Rendition.ThumbQuality,
		FullQuality:  cfg.Rendition.FullQuality,
		Format:       cfg.Rendition.Format,
	})
	if err != nil {
		t.Fatal(err)
	}
	cache, err := geocode.LoadCache(cfg.CachePath())
	if err != nil {
		t.Fatal(err)
	}
	resolver := geocode.NewResolver(geocode.Options{
		Provider:       provider,
		Cache:          cache,
		Delay:          cfg.Geocoder.Delay(),
		Disabled:       cfg.Geocoder.Disabled,
		SkipCategories: cfg.Geocoder.SkipCategories,
		Logger:         log,
	})
	extractor := photo.NewExtractor(tags)
	merger := manifest.NewMerger(resolver, extractor, manifest.MergerOptions{
		Force:          cfg.Geocoder.Force,
		SkipCategories: cfg.Geocoder.SkipCategories,
		Logger:         log,
	})

	p := New(Options{
		SrcDir:               cfg.SrcDir,
		CachePath:            cfg.CachePath(),
		Workers:              cfg.Workers,
		FailOnRenditionError: cfg.Rendition.FailOnError,
		Renderer:             renderer,
		Extractor:            extractor,
		Merger:               merger,
		Store:                manifest.NewStore(cfg.OutDir, log),
		Resolver:             resolver,
		Logger:               log,
	})
	t.Cleanup(p.Close)
	return p
}

func laJPEG(t *testing.T) []byte {
	x := phototest.EXIF{DateTimeOriginal: "2021:06:01 10:00:00"}.WithGPS(34.05, -118.25)
	return phototest.JPEG(t, 32, 24, &x)
}

func readManifest(t *testing.T, path string) []manifest.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var records []manifest.Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	return records
}

func TestRun_EndToEndWithGeocodingDisabled(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	out := filepath.Join(root, "out")
	phototest.WriteFile(t, filepath.Join(src, "photography"), "la_trip.jpg", laJPEG(t), time.Time{})

	cfg := testConfig(src, out)
	cfg.Geocoder.Disabled = true
	p, err := FromConfig(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	defer p.Close()

	summary, err := p.Run(context.Background(), []string{"photography"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Photos() != 1 {
		t.Fatalf("expected 1 photo, got %d", summary.Photos())
	}

	records := readManifest(t, filepath.Join(out, "photography_photos.json"))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Date != "2021-06-01" {
		t.Errorf("date = %q, want 2021-06-01", rec.Date)
	}
	if rec.City != nil || rec.Country != nil {
		t.Errorf("expected null location, got %v/%v", rec.City, rec.Country)
	}
	wantThumb := filepath.ToSlash(filepath.Join(out, "thumbs", "la_trip_thumb.jpg"))
	wantFull := filepath.ToSlash(filepath.Join(out, "full", "la_trip_full.jpg"))
	if rec.ThumbSrc != wantThumb || rec.FullSrc != wantFull {
		t.Errorf("paths = %q, %q; want %q, %q", rec.ThumbSrc, rec.FullSrc, wantThumb, wantFull)
	}
	if rec.Caption != "la trip" || rec.Alt != "la trip" {
		t.Errorf("caption/alt = %q/%q", rec.Caption, rec.Alt)
	}
	if rec.Width != 16 || rec.Height != 12 {
		t.Errorf("size = %dx%d, want 16x12", rec.Width, rec.Height)
	}
	for _, path := range []string{wantThumb, wantFull} {
		if _, err := os.Stat(filepath.FromSlash(path)); err != nil {
			t.Errorf("rendition missing: %v", err)
		}
	}
	if _, err := os.Stat(cfg.CachePath()); !os.IsNotExist(err) {
		t.Errorf("expected no cache file when nothing was resolved, got %v", err)
	}
}

func TestRun_IdempotentAcrossRuns(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	out := filepath.Join(root, "out")
	dir := filepath.Join(src, "photography")
	phototest.WriteFile(t, dir, "la-1.jpg", laJPEG(t), time.Time{})
	phototest.WriteFile(t, dir, "la-2.jpg", laJPEG(t), time.Time{})
	phototest.WriteFile(t, dir, "plain.png", phototest.PNG(t, 20, 10), time.Date(2015, 8, 9, 0, 0, 0, 0, time.UTC))
	cfg := testConfig(src, out)

	provider := &fakeProvider{}
	first, err := newTestPipeline(t, cfg, provider).Run(context.Background(), []string{"photography"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("expected one provider call for one coarse key, got %d", provider.callCount())
	}
	if first.Categories[0].Outcomes[manifest.OutcomeResolved] != 2 || first.Categories[0].Outcomes[manifest.OutcomeNoGPS] != 1 {
		t.Errorf("unexpected outcomes %v", first.Categories[0].Outcomes)
	}
	before := readManifest(t, filepath.Join(out, "photography_photos.json"))

	second, err := newTestPipeline(t, cfg, provider).Run(context.Background(), []string{"photography"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("second run called the provider again: %d calls", provider.callCount())
	}
	if second.Categories[0].Outcomes[manifest.OutcomeSticky] != 2 {
		t.Errorf("expected sticky locations on second run, got %v", second.Categories[0].Outcomes)
	}
	after := readManifest(t, filepath.Join(out, "photography_photos.json"))

	if len(before) != len(after) {
		t.Fatalf("record count changed: %d -> %d", len(before), len(after))
	}
	index := func(rs []manifest.Record) map[string]manifest.Record {
		m := make(map[string]manifest.Record)
		for _, r := range rs {
			m[r.ThumbSrc] = r
		}
		return m
	}
	a, b := index(before), index(after)
	for key, r := range a {
		s := b[key]
		if r.Caption != s.Caption || r.Date != s.Date || str(r.City) != str(s.City) || str(r.Country) != str(s.Country) {
			t.Errorf("%s changed between runs: %+v -> %+v", key, r, s)
		}
	}
	if r := a[filepath.ToSlash(filepath.Join(out, "thumbs", "la-1_thumb.jpg"))]; str(r.City) != "Los Angeles" {
		t.Errorf("expected resolved city, got %q", str(r.City))
	}
	if r := a[filepath.ToSlash(filepath.Join(out, "thumbs", "plain_thumb.jpg"))]; r.Date != "2015-08-09" {
		t.Errorf("expected file-time date, got %q", r.Date)
	}

	cache, err := geocode.LoadCache(cfg.CachePath())
	if err != nil || cache.Len() != 1 {
		t.Errorf("expected one cached key, got %d (%v)", cache.Len(), err)
	}
}

func TestRun_PreservesEditedCaption(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	out := filepath.Join(root, "out")
	phototest.WriteFile(t, filepath.Join(src, "photography"), "pier.jpg", laJPEG(t), time.Time{})
	cfg := testConfig(src, out)
	cfg.Geocoder.Disabled = true

	if _, err := newTestPipeline(t, cfg, nil).Run(context.Background(), []string{"photography"}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(out, "photography_photos.json")
	records := readManifest(t, path)
	records[0].Caption = "Golden hour, Santa Monica"
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := newTestPipeline(t, cfg, nil).Run(context.Background(), []string{"photography"}); err != nil {
		t.Fatal(err)
	}
	if got := readManifest(t, path)[0].Caption; got != "Golden hour, Santa Monica" {
		t.Errorf("caption = %q", got)
	}
}

func TestRun_SkipListedCategoryNeverGeocodes(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	out := filepath.Join(root, "out")
	phototest.WriteFile(t, filepath.Join(src, "me"), "selfie.jpg", laJPEG(t), time.Time{})
	cfg := testConfig(src, out)
	cfg.Geocoder.Force = true

	provider := &fakeProvider{}
	summary, err := newTestPipeline(t, cfg, provider).Run(context.Background(), []string{"me"})
	if err != nil {
		t.Fatal(err)
	}
	if provider.callCount() != 0 {
		t.Errorf("provider called %d times for a skip-listed category", provider.callCount())
	}
	if summary.Categories[0].Outcomes[manifest.OutcomeSkippedGPS] != 1 {
		t.Errorf("unexpected outcomes %v", summary.Categories[0].Outcomes)
	}
	rec := readManifest(t, filepath.Join(out, "me_photos.json"))[0]
	if rec.Date != "2021-06-01" || rec.City != nil || rec.Country != nil {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRun_MissingCategoryIsSkipped(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	out := filepath.Join(root, "out")
	phototest.WriteFile(t, filepath.Join(src, "photography"), "a.png", phototest.PNG(t, 16, 16), time.Time{})
	cfg := testConfig(src, out)
	cfg.Geocoder.Disabled = true

	summary, err := newTestPipeline(t, cfg, nil).Run(context.Background(), []string{"me", "photography"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := summary.Skipped(); len(got) != 1 || got[0] != "me" {
		t.Errorf("skipped = %v, want [me]", got)
	}
	if summary.Photos() != 1 {
		t.Errorf("photos = %d, want 1", summary.Photos())
	}
	if _, err := os.Stat(filepath.Join(out, "me_photos.json")); !os.IsNotExist(err) {
		t.Errorf("expected no manifest for skipped category")
	}
}

func TestRun_RenditionFailurePolicy(t *testing.T) {
	setup := func(t *testing.T) *config.Config {
		root := t.TempDir()
		src := filepath.Join(root, "src")
		dir := filepath.Join(src, "photography")
		phototest.WriteFile(t, dir, "good.png", phototest.PNG(t, 16, 16), time.Time{})
		phototest.WriteFile(t, dir, "broken.jpg", []byte("not a jpeg"), time.Time{})
		cfg := testConfig(src, filepath.Join(root, "out"))
		cfg.Geocoder.Disabled = true
		return cfg
	}

	t.Run("skip photo", func(t *testing.T) {
		cfg := setup(t)
		summary, err := newTestPipeline(t, cfg, nil).Run(context.Background(), []string{"photography"})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		cs := summary.Categories[0]
		if cs.Photos != 1 || cs.Failed != 1 {
			t.Errorf("photos/failed = %d/%d, want 1/1", cs.Photos, cs.Failed)
		}
		if n := len(readManifest(t, filepath.Join(cfg.OutDir, "photography_photos.json"))); n != 1 {
			t.Errorf("expected 1 record, got %d", n)
		}
	})

	t.Run("fail run", func(t *testing.T) {
		cfg := setup(t)
		cfg.Rendition.FailOnError = true
		_, err := newTestPipeline(t, cfg, nil).Run(context.Background(), []string{"photography"})
		var rerr *photo.RenditionError
		if !errors.As(err, &rerr) {
			t.Fatalf("expected *photo.RenditionError, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(cfg.OutDir, "photography_photos.json")); !os.IsNotExist(err) {
			t.Error("manifest must not be written after a fatal rendition error")
		}
	})
}

func TestRun_CancelledContextWritesNothing(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	out := filepath.Join(root, "out")
	phototest.WriteFile(t, filepath.Join(src, "photography"), "a.png", phototest.PNG(t, 16, 16), time.Time{})
	cfg := testConfig(src, out)
	cfg.Geocoder.Disabled = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestPipeline(t, cfg, nil).Run(ctx, []string{"photography"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "photography_photos.json")); !os.IsNotExist(err) {
		t.Error("manifest must not be written after cancellation")
	}
}

type countingTags struct {
	mu    sync.Mutex
	reads map[string]int
}

func (c *countingTags) ReadTags(path string, names ...exif.FieldName) (map[exif.FieldName]*tiff.Tag, error) {
	c.mu.Lock()
	c.reads[filepath.Base(path)]++
	c.mu.Unlock()
	return photo.EXIFReader{}.ReadTags(path, names...)
}

func TestRun_ReadsEXIFOncePerPhoto(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	out := filepath.Join(root, "out")
	phototest.WriteFile(t, filepath.Join(src, "photography"), "la_trip.jpg", laJPEG(t), time.Time{})
	phototest.WriteFile(t, filepath.Join(src, "photography"), "plain.png", phototest.PNG(t, 16, 16), time.Time{})

	tags := &countingTags{reads: make(map[string]int)}
	provider := &fakeProvider{}
	p := newTestPipelineWithTags(t, testConfig(src, out), provider, tags)
	if _, err := p.Run(context.Background(), []string{"photography"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, name := range []string{"la_trip.jpg", "plain.png"} {
		if got := tags.reads[name]; got != 1 {
			t.Errorf("%s: EXIF read %d times, want 1", name, got)
		}
	}
	if provider.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.callCount())
	}
	records := readManifest(t, filepath.Join(out, "photography_photos.json"))
	if len(records) != 2 || records[0].Date != "2021-06-01" {
		t.Errorf("records = %+v", records)
	}
}

func TestCategorySummary_String(t *testing.T) {
	cs := CategorySummary{
		Category: "photography",
		Photos:   3,
		Failed:   1,
		Outcomes: map[manifest.Outcome]int{manifest.OutcomeSticky: 2, manifest.OutcomeNoGPS: 1},
	}
	want := "photography: 3 photos, 1 failed (no-gps=1, sticky=2)"
	if got := cs.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	skipped := CategorySummary{Category: "me", Skipped: true}
	if got := skipped.String(); got != "me: skipped (source folder not found)" {
		t.Errorf("String() = %q", got)
	}
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestNew_ClampsWorkers(t *testing.T) {
	p := New(Options{Workers: 0, Logger: logging.Discard()})
	defer p.Close()
	if p.workers != 1 {
		t.Errorf("workers = %d, want 1", p.workers)
	}
}
