// Package pipeline runs the manifest build: scan each category, render and
// merge its photos, write the category manifest, and persist the shared
// geocode cache once at the end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/electronjoe/photomanifest/internal/config"
	"github.com/electronjoe/photomanifest/internal/geocode"
	"github.com/electronjoe/photomanifest/internal/manifest"
	"github.com/electronjoe/photomanifest/internal/photo"
)

// Options wires a Pipeline's collaborators.
type Options struct {
	SrcDir    string
	CachePath string
	Workers   int
	// FailOnRenditionError makes a rendition failure abort the run instead of
	// dropping the photo from its manifest.
	FailOnRenditionError bool
	// Progress, when set, receives a progress bar per category.
	Progress io.Writer

	Renderer  *photo.Renderer
	Extractor *photo.Extractor
	Merger    *manifest.Merger
	Store     *manifest.Store
	Resolver  *geocode.Resolver
	Logger    *slog.Logger
}

// Pipeline builds category manifests.
type Pipeline struct {
	srcDir      string
	cachePath   string
	workers     int
	failOnError bool
	progress    io.Writer

	renderer  *photo.Renderer
	extractor *photo.Extractor
	merger    *manifest.Merger
	store     *manifest.Store
	resolver  *geocode.Resolver
	log       *slog.Logger
}

func New(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = photo.NewExtractor(nil)
	}
	return &Pipeline{
		srcDir:      opts.SrcDir,
		cachePath:   opts.CachePath,
		workers:     workers,
		failOnError: opts.FailOnRenditionError,
		progress:    opts.Progress,
		renderer:    opts.Renderer,
		extractor:   extractor,
		merger:      opts.Merger,
		store:       opts.Store,
		resolver:    opts.Resolver,
		log:         log,
	}
}

// FromConfig builds a Pipeline and its services from configuration. The
// geocode cache is loaded here; Close releases the resolver.
func FromConfig(cfg *config.Config, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	renderer, err := photo.NewRenderer(cfg.OutDir, photo.RenditionOptions{
		ThumbWidth:   cfg.Rendition.ThumbWidth,
		FullWidth:    cfg.Rendition.FullWidth,
		ThumbQuality: cfg.Rendition.ThumbQuality,
		FullQuality:  cfg.Rendition.FullQuality,
		Format:       cfg.Rendition.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	cache, err := geocode.LoadCache(cfg.CachePath())
	if err != nil {
		log.Warn("geocode cache unreadable, starting empty", "path", cfg.CachePath(), "error", err)
	}

	provider, err := geocode.NewProvider(geocode.ProviderConfig{
		Name:      cfg.Geocoder.Provider,
		APIKey:    cfg.Geocoder.APIKey,
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Email:     cfg.Geocoder.Email,
	}, nil)
	if err != nil {
		log.Warn("geocoding provider unavailable, locations will only come from the cache", "error", err)
	}

	resolver := geocode.NewResolver(geocode.Options{
		Provider:       provider,
		Cache:          cache,
		Delay:          cfg.Geocoder.Delay(),
		Disabled:       cfg.Geocoder.Disabled,
		SkipCategories: cfg.Geocoder.SkipCategories,
		Logger:         log,
	})

	extractor := photo.NewExtractor(nil)
	merger := manifest.NewMerger(resolver, extractor, manifest.MergerOptions{
		Force:          cfg.Geocoder.Force,
		SkipCategories: cfg.Geocoder.SkipCategories,
		Logger:         log,
	})

	return New(Options{
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
	}), nil
}

// SetProgress directs per-category progress bars to w; nil turns them off.
func (p *Pipeline) SetProgress(w io.Writer) {
	p.progress = w
}

// Close stops the geocode resolver.
func (p *Pipeline) Close() {
	if p.resolver != nil {
		p.resolver.Close()
	}
}

// Run processes categories one at a time. A missing category directory is
// logged and skipped. The geocode cache is saved once after the last
// category, and also when the run stops early.
func (p *Pipeline) Run(ctx context.Context, categories []string) (Summary, error) {
	var summary Summary
	var runErr error
	for _, category := range categories {
		cs, err := p.runCategory(ctx, category)
		summary.Categories = append(summary.Categories, cs)
		if err != nil {
			runErr = fmt.Errorf("category %s: %w", category, err)
			break
		}
	}

	if p.resolver != nil {
		summary.Geocode = p.resolver.Stats()
		p.saveCache()
	}
	return summary, runErr
}

func (p *Pipeline) saveCache() {
	cache := p.resolver.Cache()
	if !cache.Dirty() || p.cachePath == "" {
		return
	}
	if err := cache.Save(p.cachePath); err != nil {
		p.log.Error("failed to persist geocode cache", "path", p.cachePath, "error", err)
		return
	}
	p.log.Info("geocode cache saved", "path", p.cachePath, "entries", cache.Len())
}

func (p *Pipeline) runCategory(ctx context.Context, category string) (CategorySummary, error) {
	cs := CategorySummary{Category: category, Outcomes: make(map[manifest.Outcome]int)}
	log := p.log.With("category", category)

	sources, err := photo.Scan(filepath.Join(p.srcDir, category), p.renderer.Ext(), log)
	if err != nil {
		if errors.Is(err, photo.ErrCategoryNotFound) {
			log.Error("source folder not found, skipping category", "error", err)
		} else {
			log.Error("cannot scan source folder, skipping category", "error", err)
		}
		cs.Skipped = true
		return cs, nil
	}

	prior := p.store.Load(category)
	bar := p.newBar(category, len(sources))

	records := make([]*manifest.Record, len(sources))
	outcomes := make([]manifest.Outcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, src := range sources {
		g.Go(func() error {
			defer addBar(bar)
			rec, outcome, err := p.processPhoto(gctx, category, src, prior.Lookup(src.Stem))
			if err != nil {
				var rerr *photo.RenditionError
				if errors.As(err, &rerr) && !p.failOnError && gctx.Err() == nil {
					log.Warn("rendition failed, leaving photo out of manifest", "stem", src.Stem, "error", err)
					return nil
				}
				return err
			}
			records[i] = &rec
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cs, err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if err := ctx.Err(); err != nil {
		return cs, err
	}

	out := make([]manifest.Record, 0, len(records))
	for i, rec := range records {
		if rec == nil {
			cs.Failed++
			continue
		}
		out = append(out, *rec)
		cs.Outcomes[outcomes[i]]++
	}
	cs.Photos = len(out)

	if err := p.store.Save(category, out); err != nil {
		return cs, fmt.Errorf("write manifest: %w", err)
	}
	log.Info("wrote manifest", "path", p.store.Path(category), "photos", cs.Photos, "failed", cs.Failed)
	return cs, nil
}

// processPhoto renders one source and merges its record. Renditions are
// always rewritten. EXIF is read once and shared by the renderer and merger.
func (p *Pipeline) processPhoto(ctx context.Context, category string, src photo.Source, prior *manifest.Record) (manifest.Record, manifest.Outcome, error) {
	meta := p.extractor.Extract(src.Path)
	r, err := p.renderer.Render(ctx, src, meta.Orientation)
	if err != nil {
		return manifest.Record{}, "", err
	}

	rec, outcome := p.merger.Merge(ctx, category, manifest.Scanned{
		Stem:     src.Stem,
		Path:     src.Path,
		ThumbSrc: filepath.ToSlash(r.ThumbPath),
		FullSrc:  filepath.ToSlash(r.FullPath),
		Width:    r.Width,
		Height:   r.Height,
		Meta:     &meta,
	}, prior)
	return rec, outcome, nil
}

func (p *Pipeline) newBar(category string, total int) *progressbar.ProgressBar {
	if p.progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.progress),
		progressbar.OptionSetDescription(category),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func addBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}
