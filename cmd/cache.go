package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/electronjoe/photomanifest/internal/config"
	"github.com/electronjoe/photomanifest/internal/geocode"
)

func newCacheCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Geocode cache management commands",
		Long:  `Commands for inspecting and cleaning the shared reverse geocoding cache.`,
	}
	cmd.PersistentFlags().StringVar(&outDir, "out", "", "Output root holding geocode-cache.json (default from OUT_BASE_DIR)")

	cachePath := func(cfg *config.Config) string {
		if outDir != "" {
			return filepath.Join(outDir, config.CacheFileName)
		}
		return cfg.CachePath()
	}

	cmd.AddCommand(newCacheStatsCmd(cachePath))
	cmd.AddCommand(newCachePruneCmd(cachePath))
	return cmd
}

func newCacheStatsCmd(cachePath func(*config.Config) string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many cached coordinates resolved to a place",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cachePath(cfg)
			cache, err := geocode.LoadCache(path)
			if err != nil {
				return err
			}

			s := cache.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache: %s\n", path)
			fmt.Fprintf(out, "  Entries:    %d\n", s.Entries)
			fmt.Fprintf(out, "  Resolved:   %d\n", s.Resolved)
			fmt.Fprintf(out, "  Partial:    %d\n", s.Partial)
			fmt.Fprintf(out, "  Unresolved: %d\n", s.Unresolved)
			return nil
		},
	}
}

func newCachePruneCmd(cachePath func(*config.Config) string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop cached coordinates that resolved to neither city nor country",
		Long: `Prune removes cache entries with a null city and a null country so the
next build asks the provider about those coordinates again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cachePath(cfg)
			cache, err := geocode.LoadCache(path)
			if err != nil {
				return err
			}

			removed := cache.Prune()
			out := cmd.OutOrStdout()
			for _, key := range removed {
				fmt.Fprintln(out, key)
			}
			if len(removed) == 0 {
				fmt.Fprintln(out, "Nothing to prune")
				return nil
			}
			if dryRun {
				fmt.Fprintf(out, "%d entries would be removed\n", len(removed))
				return nil
			}
			if err := cache.Save(path); err != nil {
				return fmt.Errorf("save pruned cache: %w", err)
			}
			log.Info("pruned geocode cache", "path", path, "removed", len(removed), "remaining", cache.Len())
			fmt.Fprintf(out, "Removed %d entries, %d remaining\n", len(removed), cache.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List entries without rewriting the cache")
	return cmd
}
