package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/electronjoe/photomanifest/internal/pipeline"
)

func newBuildCmd() *cobra.Command {
	var (
		srcDir    string
		outDir    string
		format    string
		workers   int
		force     bool
		noGeocode bool
		progress  bool
	)

	cmd := &cobra.Command{
		Use:   "build [category...]",
		Short: "Generate renditions and manifests for photo categories",
		Long: `Build scans SRC/<category> for jpg, jpeg and png files, writes a thumbnail
and a full-size rendition of each, and replaces OUT/<category>_photos.json.

Categories default to PHOTO_CATEGORIES. A missing category folder is logged
and skipped. The geocode cache in OUT/geocode-cache.json is loaded once and
saved once at the end of the run.`,
		Example: `  photomanifest build
  photomanifest build photography --force
  photomanifest build --src assets/photos --out public/photos --no-geocode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("src") {
				outFollowsSrc := cfg.OutDir == cfg.SrcDir
				cfg.SrcDir = srcDir
				if outFollowsSrc {
					cfg.OutDir = srcDir
				}
			}
			if flags.Changed("out") {
				cfg.OutDir = outDir
			}
			if flags.Changed("format") {
				cfg.Rendition.Format = format
			}
			if flags.Changed("workers") {
				cfg.Workers = workers
			}
			if force {
				cfg.Geocoder.Force = true
			}
			if noGeocode {
				cfg.Geocoder.Disabled = true
			}

			categories := cfg.Categories
			if len(args) > 0 {
				categories = args
			}

			p, err := pipeline.FromConfig(cfg, log)
			if err != nil {
				return err
			}
			defer p.Close()
			if progress {
				p.SetProgress(cmd.ErrOrStderr())
			}

			log.Info("starting manifest build",
				"src", cfg.SrcDir, "out", cfg.OutDir, "categories", categories,
				"format", cfg.Rendition.Format, "force", cfg.Geocoder.Force, "geocoding", !cfg.Geocoder.Disabled)

			summary, runErr := p.Run(cmd.Context(), categories)

			out := cmd.OutOrStdout()
			for _, cs := range summary.Categories {
				fmt.Fprintln(out, cs)
			}
			g := summary.Geocode
			fmt.Fprintf(out, "geocode: %d cache hits, %d lookups (%d resolved, %d unresolved), %d skipped\n",
				g.CacheHits, g.Lookups, g.Resolved, g.Unresolved, g.Skipped)

			return runErr
		},
	}

	cmd.Flags().StringVar(&srcDir, "src", "", "Source root containing one folder per category (default from SRC_BASE_DIR)")
	cmd.Flags().StringVar(&outDir, "out", "", "Output root for renditions and manifests (default from OUT_BASE_DIR)")
	cmd.Flags().StringVar(&format, "format", "", "Rendition format: webp, jpeg or png (default from RENDITION_FORMAT)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Photos processed in parallel per category (default from WORKERS)")
	cmd.Flags().BoolVar(&force, "force", false, "Discard stored locations and geocode again")
	cmd.Flags().BoolVar(&noGeocode, "no-geocode", false, "Serve locations from the cache only, never call the provider")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show a progress bar per category")

	return cmd
}
