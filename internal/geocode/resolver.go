package geocode

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Options configures a Resolver.
type Options struct {
	Provider Provider // nil disables network lookups
	Cache    *Cache   // nil starts an empty cache
	// Delay is the minimum spacing between provider calls; 0 disables the throttle.
	Delay time.Duration
	// Disabled turns off network lookups while still serving cache hits.
	Disabled       bool
	SkipCategories []string
	Logger         *slog.Logger
}

// Resolver turns coordinates into locations, cache first. Provider calls are
// serialized through a single worker goroutine that owns the rate limiter,
// so the inter-request delay holds no matter how many goroutines call
// Resolve.
type Resolver struct {
	provider Provider
	cache    *Cache
	disabled bool
	skip     map[string]struct{}
	limiter  *rate.Limiter
	log      *slog.Logger

	requests chan request
	quit     chan struct{}
	stop     sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats ResolverStats
}

// ResolverStats counts outcomes since the resolver was created.
type ResolverStats struct {
	CacheHits  int
	Lookups    int // provider calls issued
	Resolved   int
	Unresolved int // provider errors or empty responses
	Skipped    int // misses that were not looked up
}

type request struct {
	ctx   context.Context //nolint:containedctx // carried to the worker for one call
	lat   float64
	lon   float64
	key   string
	reply chan Location
}

// NewResolver starts the resolver's worker. Call Close when done.
func NewResolver(opts Options) *Resolver {
	cache := opts.Cache
	if cache == nil {
		cache = NewCache()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)
	// Spend the initial token so the first provider call also waits.
	limiter.Allow()

	skip := make(map[string]struct{}, len(opts.SkipCategories))
	for _, c := range opts.SkipCategories {
		skip[strings.ToLower(c)] = struct{}{}
	}

	r := &Resolver{
		provider: opts.Provider,
		cache:    cache,
		disabled: opts.Disabled,
		skip:     skip,
		limiter:  limiter,
		log:      log.With("component", "geocode"),
		requests: make(chan request),
		quit:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Close stops the worker. Pending and later Resolve calls that miss the
// cache return an empty Location.
func (r *Resolver) Close() {
	r.stop.Do(func() { close(r.quit) })
	r.wg.Wait()
}

// Cache returns the resolver's cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Stats returns a snapshot of the outcome counters.
func (r *Resolver) Stats() ResolverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Enabled reports whether a cache miss for category would reach the provider.
func (r *Resolver) Enabled(category string) bool {
	if r.provider == nil || r.disabled {
		return false
	}
	_, skipped := r.skip[strings.ToLower(category)]
	return !skipped
}

// Resolve returns the location for a coordinate. It never fails: provider
// errors, disabled lookups and cancellation all yield an empty Location.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64, category string) Location {
	key := Key(lat, lon)
	if loc, ok := r.cache.Get(key); ok {
		r.count(func(s *ResolverStats) { s.CacheHits++ })
		r.log.Debug("geocode cache hit", "key", key, "category", category)
		return loc
	}
	if !r.Enabled(category) {
		r.count(func(s *ResolverStats) { s.Skipped++ })
		return Location{}
	}

	req := request{ctx: ctx, lat: lat, lon: lon, key: key, reply: make(chan Location, 1)}
	select {
	case r.requests <- req:
	case <-ctx.Done():
		return Location{}
	case <-r.quit:
		return Location{}
	}

	select {
	case loc := <-req.reply:
		return loc
	case <-ctx.Done():
		return Location{}
	}
}

func (r *Resolver) run() {
	defer r.wg.Done()
	for {
		select {
		case req := <-r.requests:
			req.reply <- r.lookup(req)
		case <-r.quit:
			return
		}
	}
}

// lookup runs on the worker goroutine only.
func (r *Resolver) lookup(req request) Location {
	// Another request may have filled this key while we were queued.
	if loc, ok := r.cache.Get(req.key); ok {
		r.count(func(s *ResolverStats) { s.CacheHits++ })
		return loc
	}

	if err := r.limiter.Wait(req.ctx); err != nil {
		return Location{}
	}

	r.count(func(s *ResolverStats) { s.Lookups++ })
	results, err := r.provider.Reverse(req.ctx, req.lat, req.lon)
	if err != nil {
		r.count(func(s *ResolverStats) { s.Unresolved++ })
		r.log.Warn("reverse geocoding failed",
			"provider", r.provider.Name(), "key", req.key, "error", err)
		return Location{}
	}
	if len(results) == 0 {
		r.count(func(s *ResolverStats) { s.Unresolved++ })
		r.log.Info("reverse geocoding returned no results", "provider", r.provider.Name(), "key", req.key)
		return Location{}
	}

	loc := results[0].Location()
	r.cache.Set(req.key, loc)
	r.count(func(s *ResolverStats) { s.Resolved++ })
	r.log.Debug("reverse geocoded", "key", req.key, "city", deref(loc.City), "country", deref(loc.Country))
	return loc
}

func (r *Resolver) count(f func(*ResolverStats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
