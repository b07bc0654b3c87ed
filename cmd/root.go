// Package cmd holds the photomanifest command tree.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/electronjoe/photomanifest/internal/config"
	"github.com/electronjoe/photomanifest/internal/logging"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photomanifest",
		Short: "Build photo manifests with web renditions and cached reverse geocoding",
		Long: `photomanifest turns category folders of source photos into web-ready
thumbnail and full-size renditions plus one JSON manifest per category.

Capture dates come from EXIF, GPS positions are reverse geocoded through a
rate-limited, cached provider, and captions or locations already present in a
previous manifest are kept across runs.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env file is optional
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig reads configuration and installs the default logger. It runs
// after PersistentPreRun so values from .env are visible.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Geocoder.UserAgent == "" {
		cfg.Geocoder.UserAgent = UserAgent()
	}
	log := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
	slog.SetDefault(log)
	return cfg, log, nil
}
