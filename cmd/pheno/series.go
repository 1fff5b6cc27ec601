package main

import (
	"errors"
	"path/filepath"
	"strings"

	bannercolor "github.com/fatih/color"
	"github.com/imagingearth/phenology/internal/cache"
	"github.com/imagingearth/phenology/internal/raster"
	"github.com/imagingearth/phenology/internal/series"
	"github.com/imagingearth/phenology/internal/weather"
	"github.com/imagingearth/phenology/output"
	"github.com/spf13/cobra"
)

func newSeriesCmd(a *app) *cobra.Command {
	var (
		year int
		base float64
	)
	cmd := &cobra.Command{
		Use:   "series <composite.tif> <points.csv|points.geojson> <samples.csv>",
		Short: "Sample a composite at points and pair it with accumulated GDD",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if year == 0 {
				return errors.New("--year is required")
			}
			readPoints := output.ReadPoints
			if ext := strings.ToLower(filepath.Ext(args[1])); ext == ".geojson" || ext == ".json" {
				readPoints = output.ReadPointsGeoJSON
			}
			points, err := readPoints(args[1])
			if err != nil {
				return err
			}
			stack, err := raster.NewGDAL().ReadStack(args[0], 0, 0)
			if err != nil {
				return err
			}

			var fc *cache.FileCache[weather.DailyData]
			if a.cfg.CacheDir != "" {
				fc = cache.NewFileCache[weather.DailyData](filepath.Join(a.cfg.CacheDir, "weather"))
			}
			b := &series.Builder{
				Weather: weather.NewClient(a.cfg.WeatherURL, fc, a.log),
				Base:    base,
				Log:     a.log,
			}
			samples, err := b.Build(cmd.Context(), stack, year, points)
			if err != nil {
				a.log.WithError(err).Warn("some points were not sampled")
			}
			if len(samples) == 0 {
				return errors.New("no samples")
			}
			if err := output.WriteSamples(args[2], samples); err != nil {
				return err
			}
			bannercolor.Green("%d samples written to %s", len(samples), args[2])
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "calendar year of the composite")
	cmd.Flags().Float64Var(&base, "base", 10, "base temperature in degrees Celsius")
	return cmd
}
