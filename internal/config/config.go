package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "photomanifest.yaml"
	DefaultSrcDir     = "assets/photos"
	CacheFileName     = "geocode-cache.json"
)

// Config represents the manifest build configuration.
type Config struct {
	SrcDir     string          `yaml:"srcDir"`
	OutDir     string          `yaml:"outDir"`
	Categories []string        `yaml:"categories"`
	Rendition  RenditionConfig `yaml:"rendition"`
	Geocoder   GeocoderConfig  `yaml:"geocoder"`
	Workers    int             `yaml:"workers"`
	Log        LogConfig       `yaml:"log"`
}

type RenditionConfig struct {
	ThumbWidth   int    `yaml:"thumbWidth"`
	FullWidth    int    `yaml:"fullWidth"`
	ThumbQuality int    `yaml:"thumbQuality"`
	FullQuality  int    `yaml:"fullQuality"`
	Format       string `yaml:"format"` // webp, jpeg or png
	FailOnError  bool   `yaml:"failOnError"`
}

type GeocoderConfig struct {
	Provider       string   `yaml:"provider"`
	APIKey         string   `yaml:"apiKey"`
	BaseURL        string   `yaml:"baseURL"` // overrides the provider's endpoint
	UserAgent      string   `yaml:"userAgent"`
	Email          string   `yaml:"email"`
	DelayMS        int      `yaml:"delayMs"`
	Disabled       bool     `yaml:"disabled"`
	Force          bool     `yaml:"force"`
	SkipCategories []string `yaml:"skipCategories"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Delay returns the inter-request geocoding delay.
func (g GeocoderConfig) Delay() time.Duration {
	return time.Duration(g.DelayMS) * time.Millisecond
}

// CachePath returns the location of the shared geocode cache.
func (c *Config) CachePath() string {
	return filepath.Join(c.OutDir, CacheFileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SrcDir:     DefaultSrcDir,
		Categories: []string{"me", "photography"},
		Rendition: RenditionConfig{
			ThumbWidth:   400,
			FullWidth:    1600,
			ThumbQuality: 80,
			FullQuality:  90,
			Format:       "webp",
		},
		Geocoder: GeocoderConfig{
			Provider:       "openstreetmap",
			DelayMS:        1000,
			SkipCategories: []string{"me"},
		},
		Workers: runtime.NumCPU(),
		Log:     LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("PHOTOMANIFEST_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if cfg.OutDir == "" {
		cfg.OutDir = cfg.SrcDir
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file at %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// apiKeyVars lists accepted variable names for the provider key, first set wins.
var apiKeyVars = []string{
	"GEOCODER_API_KEY",
	"GEOCODING_API_KEY",
	"OPENCAGE_API_KEY",
	"GOOGLE_MAPS_API_KEY",
	"LOCATIONIQ_API_KEY",
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = truthy(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = SplitList(v)
		}
	}

	str("SRC_BASE_DIR", &c.SrcDir)
	str("OUT_BASE_DIR", &c.OutDir)
	list("PHOTO_CATEGORIES", &c.Categories)

	num("THUMB_WIDTH", &c.Rendition.ThumbWidth)
	num("FULL_WIDTH", &c.Rendition.FullWidth)
	num("THUMB_QUALITY", &c.Rendition.ThumbQuality)
	num("FULL_QUALITY", &c.Rendition.FullQuality)
	str("RENDITION_FORMAT", &c.Rendition.Format)
	flag("FAIL_ON_RENDITION_ERROR", &c.Rendition.FailOnError)

	str("GEOCODER_PROVIDER", &c.Geocoder.Provider)
	for _, key := range apiKeyVars {
		if v, ok := lookup(key); ok && v != "" {
			c.Geocoder.APIKey = v
			break
		}
	}
	str("GEOCODER_URL", &c.Geocoder.BaseURL)
	str("GEOCODER_USER_AGENT", &c.Geocoder.UserAgent)
	str("GEOCODER_EMAIL", &c.Geocoder.Email)
	num("GEOCODE_DELAY_MS", &c.Geocoder.DelayMS)
	flag("DISABLE_GEOCODING", &c.Geocoder.Disabled)
	if v, ok := lookup("CI"); ok && truthy(v) {
		c.Geocoder.Disabled = true
	}
	flag("FORCE_GEOCODE", &c.Geocoder.Force)
	list("SKIP_GPS_CATEGORIES", &c.Geocoder.SkipCategories)

	num("WORKERS", &c.Workers)

	str("LOG_LEVEL", &c.Log.Level)
	if _, ok := lookup("LOG_LEVEL"); !ok {
		if v, ok := lookup("DEBUG"); ok && truthy(v) {
			c.Log.Level = "debug"
		}
	}
	flag("LOG_PRETTY", &c.Log.Pretty)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SrcDir == "" {
		errs = append(errs, errors.New("source directory is empty"))
	}
	if c.Rendition.ThumbWidth <= 0 || c.Rendition.FullWidth <= 0 {
		errs = append(errs, fmt.Errorf("rendition widths must be positive, got %d/%d",
			c.Rendition.ThumbWidth, c.Rendition.FullWidth))
	}
	for _, q := range []int{c.Rendition.ThumbQuality, c.Rendition.FullQuality} {
		if q < 1 || q > 100 {
			errs = append(errs, fmt.Errorf("quality %d out of range 1-100", q))
		}
	}
	switch strings.ToLower(c.Rendition.Format) {
	case "webp", "jpeg", "jpg", "png":
	default:
		errs = append(errs, fmt.Errorf("unknown rendition format %q", c.Rendition.Format))
	}
	switch strings.ToLower(c.Geocoder.Provider) {
	case "", "none", "openstreetmap", "osm", "nominatim", "opencage", "google", "locationiq":
	default:
		errs = append(errs, fmt.Errorf("unknown geocoder provider %q", c.Geocoder.Provider))
	}
	return errors.Join(errs...)
}

// SplitList parses a comma-separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}
