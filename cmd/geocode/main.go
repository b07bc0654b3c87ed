package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/electronjoe/photomanifest/cmd"
	"github.com/electronjoe/photomanifest/internal/config"
	"github.com/electronjoe/photomanifest/internal/geocode"
	"github.com/electronjoe/photomanifest/internal/logging"
	"github.com/electronjoe/photomanifest/internal/photo"
)

// ImageLocation holds the resolved location for an image.
type ImageLocation struct {
	// FriendlyLocation is "City, Country" or whichever of the two is known.
	FriendlyLocation string  `json:"friendly_location"`
	City             *string `json:"city"`
	Country          *string `json:"country"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}

func main() {
	rootDir := flag.String("root", "", "Root directory containing sub-directories with images")
	write := flag.Bool("write", false, "Write locations.json into each sub-directory")
	flag.Parse()

	if *rootDir == "" {
		log.Fatal("Please provide a root directory using the -root flag")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Geocoder.UserAgent == "" {
		cfg.Geocoder.UserAgent = cmd.UserAgent()
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)

	cache, err := geocode.LoadCache(cfg.CachePath())
	if err != nil {
		logger.Warn("geocode cache unreadable, starting empty", "path", cfg.CachePath(), "error", err)
	}
	provider, err := geocode.NewProvider(geocode.ProviderConfig{
		Name:      cfg.Geocoder.Provider,
		APIKey:    cfg.Geocoder.APIKey,
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Email:     cfg.Geocoder.Email,
	}, nil)
	if err != nil {
		log.Fatalf("Failed to create geocoding provider: %v", err)
	}
	resolver := newResolver(cfg, cache, provider, logger)
	defer resolver.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	entries, err := os.ReadDir(*rootDir)
	if err != nil {
		log.Fatalf("Failed to read root directory: %v", err)
	}

	extractor := photo.NewExtractor(nil)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subDirPath := filepath.Join(*rootDir, entry.Name())
		log.Printf("Processing sub-directory: %s", subDirPath)
		processSubDir(ctx, resolver, extractor, subDirPath, entry.Name(), *write)
		if ctx.Err() != nil {
			break
		}
	}

	if cache.Dirty() {
		if err := cache.Save(cfg.CachePath()); err != nil {
			log.Printf("Failed to save geocode cache: %v", err)
		}
	}
}

// newResolver honours the same skip-list as build, so sub-directories named
// after a skip-listed category never reach the provider.
func newResolver(cfg *config.Config, cache *geocode.Cache, provider geocode.Provider, logger *slog.Logger) *geocode.Resolver {
	return geocode.NewResolver(geocode.Options{
		Provider:       provider,
		Cache:          cache,
		Delay:          cfg.Geocoder.Delay(),
		Disabled:       cfg.Geocoder.Disabled,
		SkipCategories: cfg.Geocoder.SkipCategories,
		Logger:         logger,
	})
}

// processSubDir resolves the GPS position of every image in dir and prints
// one line per image. With write set it also stores the results as
// locations.json next to the images.
func processSubDir(ctx context.Context, resolver *geocode.Resolver, extractor *photo.Extractor, dir, category string, write bool) {
	sources, err := photo.Scan(dir, "", nil)
	if err != nil {
		log.Printf("Failed to scan %s: %v", dir, err)
		return
	}

	locations := make(map[string]ImageLocation)
	for _, src := range sources {
		meta := extractor.Extract(src.Path)
		if meta.GPS == nil {
			log.Printf("%s: no GPS data", src.Name)
			continue
		}
		loc := resolver.Resolve(ctx, meta.GPS.Lat, meta.GPS.Lon, category)
		il := ImageLocation{
			FriendlyLocation: friendly(loc),
			City:             loc.City,
			Country:          loc.Country,
			Latitude:         meta.GPS.Lat,
			Longitude:        meta.GPS.Lon,
		}
		locations[src.Name] = il
		fmt.Printf("%s\t%s\t%.5f,%.5f\n", src.Name, il.FriendlyLocation, il.Latitude, il.Longitude)
	}

	if !write {
		return
	}
	jsonPath := filepath.Join(dir, "locations.json")
	jsonData, err := json.MarshalIndent(locations, "", "  ")
	if err != nil {
		log.Printf("Failed to marshal JSON for directory %s: %v", dir, err)
		return
	}
	if err := os.WriteFile(jsonPath, jsonData, 0644); err != nil {
		log.Printf("Failed to write JSON file %s: %v", jsonPath, err)
		return
	}
	log.Printf("Wrote locations file: %s", jsonPath)
}

func friendly(loc geocode.Location) string {
	switch {
	case loc.City != nil && loc.Country != nil:
		return *loc.City + ", " + *loc.Country
	case loc.City != nil:
		return *loc.City
	case loc.Country != nil:
		return *loc.Country
	}
	return "unknown"
}
