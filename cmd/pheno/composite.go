package main

import (
	"fmt"
	"path/filepath"

	bannercolor "github.com/fatih/color"
	"github.com/imagingearth/phenology/internal/cache"
	"github.com/imagingearth/phenology/internal/composite"
	"github.com/imagingearth/phenology/internal/notification"
	"github.com/imagingearth/phenology/internal/properties"
	"github.com/imagingearth/phenology/internal/raster"
	"github.com/imagingearth/phenology/internal/resample"
	"github.com/imagingearth/phenology/output"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// applyCompositeFlags overrides configuration values given on the command
// line.
func applyCompositeFlags(flags *pflag.FlagSet, cfg *properties.Config) {
	str := map[string]*string{
		"pattern":    &cfg.Pattern,
		"vi":         &cfg.VI,
		"incomplete": &cfg.Incomplete,
		"reduction":  &cfg.Reduction,
		"cache-dir":  &cfg.CacheDir,
	}
	for name, dst := range str {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := map[string]*float64{
		"cell-size":        &cfg.CellSize,
		"source-cell-size": &cfg.SourceCellSize,
		"data-min":         &cfg.DataMin,
		"data-max":         &cfg.DataMax,
	}
	for name, dst := range num {
		if flags.Changed(name) {
			*dst, _ = flags.GetFloat64(name)
		}
	}
	ints := map[string]*int{
		"year-from":     &cfg.YearFrom,
		"year-to":       &cfg.YearTo,
		"workers":       &cfg.Workers,
		"month-workers": &cfg.MonthWorkers,
	}
	for name, dst := range ints {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	if flags.Changed("preview") {
		cfg.Preview, _ = flags.GetBool("preview")
	}
}

func newCompositeCmd(a *app) *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "composite <data_dir> <output_prefix>",
		Short: "Build annual 12-band composites from monthly granules",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			cfg.DataDir, cfg.OutputPrefix = args[0], args[1]
			applyCompositeFlags(cmd.Flags(), &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			product, err := resample.MonthlyCMG(cfg.VI)
			if err != nil {
				return err
			}
			reduction, err := resample.ParseReduction(cfg.Reduction)
			if err != nil {
				return err
			}
			policy, err := composite.ParseIncompletePolicy(cfg.Incomplete)
			if err != nil {
				return err
			}

			gdal := raster.NewGDAL()
			c, err := composite.New(composite.Config{
				DataDir:        cfg.DataDir,
				Pattern:        cfg.Pattern,
				OutputPrefix:   cfg.OutputPrefix,
				YearFrom:       cfg.YearFrom,
				YearTo:         cfg.YearTo,
				CellSize:       cfg.CellSize,
				SourceCellSize: cfg.SourceCellSize,
				Reduction:      reduction,
				DataMin:        cfg.DataMin,
				DataMax:        cfg.DataMax,
				Incomplete:     policy,
				Workers:        cfg.Workers,
				MonthWorkers:   cfg.MonthWorkers,
				Progress:       progress,
			}, resample.NewResampler(gdal, product), gdal, a.log)
			if err != nil {
				return err
			}
			if cfg.CacheDir != "" {
				c.Cache = cache.NewFileCache[*raster.Grid](filepath.Join(cfg.CacheDir, "months"))
			}
			if cfg.Preview {
				c.Preview = output.WritePreview
			}
			c.Notifier = notification.NewDiscord(cfg.DiscordErrorURL, cfg.DiscordSuccessURL)

			report, err := c.Run(cmd.Context())
			if report != nil {
				for _, y := range report.Years {
					switch y.Outcome {
					case composite.Written:
						bannercolor.Green("%d: written %s", y.Year, y.Path)
					case composite.Skipped:
						bannercolor.Yellow("%d: exists, skipped", y.Year)
					case composite.Failed:
						bannercolor.Red("%d: %v", y.Year, y.Err)
					}
				}
				fmt.Println(report.Summary())
			}
			return err
		},
	}

	f := cmd.Flags()
	d := properties.Default()
	f.String("pattern", d.Pattern, "granule file name pattern; use MOD13C2.* or MYD13C2.* when both products share the directory")
	f.String("vi", d.VI, "vegetation index layer (NDVI or EVI)")
	f.String("incomplete", d.Incomplete, "policy for years with missing months (fail or fill)")
	f.String("reduction", d.Reduction, "block reduction method")
	f.String("cache-dir", "", "directory caching resampled months")
	f.Float64("cell-size", d.CellSize, "output cell size in degrees")
	f.Float64("source-cell-size", d.SourceCellSize, "granule cell size in degrees")
	f.Float64("data-min", d.DataMin, "smallest valid raw value")
	f.Float64("data-max", d.DataMax, "largest valid raw value")
	f.Int("year-from", d.YearFrom, "first year processed")
	f.Int("year-to", d.YearTo, "year after the last one processed")
	f.Int("workers", d.Workers, "years processed concurrently")
	f.Int("month-workers", d.MonthWorkers, "granules resampled concurrently")
	f.Bool("preview", false, "write a PNG of the annual maximum next to each composite")
	f.BoolVar(&progress, "progress", true, "show a progress bar")
	return cmd
}
