package main

import (
	bannercolor "github.com/fatih/color"
	"github.com/imagingearth/phenology/internal/fit"
	"github.com/imagingearth/phenology/internal/series"
	"github.com/imagingearth/phenology/output"
	"github.com/spf13/cobra"
)

func newFitCmd(a *app) *cobra.Command {
	var (
		model       string
		orientation string
		strict      bool
		geojsonPath string
		workers     int
	)
	cmd := &cobra.Command{
		Use:   "fit <samples.csv> <results.csv>",
		Short: "Fit NDVI against accumulated GDD for every point",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := fit.ParseModel(model)
			if err != nil {
				return err
			}
			o, err := fit.ParseOrientation(orientation)
			if err != nil {
				return err
			}
			samples, err := output.ReadSamples(args[0])
			if err != nil {
				return err
			}

			rows := series.FitSamples(samples, fit.Options{Model: m, Orientation: o, Strict: strict}, workers)
			failed := 0
			for _, r := range rows {
				if r.Error != "" {
					failed++
					a.log.WithField("point", r.ID).Warn(r.Error)
				}
			}
			if err := output.WriteFitResults(args[1], rows); err != nil {
				return err
			}
			if geojsonPath != "" {
				if err := output.WriteFitGeoJSON(geojsonPath, rows); err != nil {
					return err
				}
			}
			bannercolor.Green("%d fits written to %s (%d failed)", len(rows), args[1], failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "quadratic", "curve model (quadratic or double_logistic)")
	cmd.Flags().StringVar(&orientation, "orientation", "auto", "double logistic orientation (auto, rising or falling)")
	cmd.Flags().BoolVar(&strict, "strict", false, "report fits that did not converge as failures")
	cmd.Flags().StringVar(&geojsonPath, "geojson", "", "also write the results as a GeoJSON FeatureCollection")
	cmd.Flags().IntVar(&workers, "workers", 4, "fits run concurrently")
	return cmd
}
