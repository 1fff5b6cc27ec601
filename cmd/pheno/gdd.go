package main

import (
	bannercolor "github.com/fatih/color"
	"github.com/imagingearth/phenology/internal/gdd"
	"github.com/imagingearth/phenology/internal/raster"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newGDDCmd(a *app) *cobra.Command {
	var (
		year int
		base float64
	)
	cmd := &cobra.Command{
		Use:   "gdd <temperature_raster> <output.tif>",
		Short: "Accumulate growing degree days from a daily temperature raster",
		Long: "Reads the 365 daily bands of the given year index (1 is the first year in the file)\n" +
			"and writes one accumulated GDD band per day.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gdal := raster.NewGDAL()
			exists, err := gdal.Exists(args[1])
			if err != nil {
				return err
			}
			if exists {
				bannercolor.Yellow("%s exists, skipping", args[1])
				return nil
			}

			stack, err := gdd.FromRaster(gdal, args[0], year, base, gdd.ERAInterim)
			if err != nil {
				return err
			}
			if stack.Geo == nil {
				geo := raster.Global(360 / float64(stack.Width))
				stack.Geo = &geo
			}
			if err := gdal.Write(args[1], stack); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"file": args[1], "year": year, "base": base}).Info("gdd written")
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 1, "1-based year index within the raster")
	cmd.Flags().Float64Var(&base, "base", 10, "base temperature in degrees Celsius")
	return cmd
}
