// Package series pairs composite values at points with accumulated growing
// degree days and fits curves to the pairs.
package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imagingearth/phenology/internal/gdd"
	"github.com/imagingearth/phenology/internal/raster"
	"github.com/imagingearth/phenology/internal/weather"
	"github.com/imagingearth/phenology/output"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

// TemperatureSource provides daily mean temperatures at a point.
type TemperatureSource interface {
	FetchDailyTemperature(ctx context.Context, latitude, longitude float64, start, end time.Time) (weather.Series, error)
}

type Builder struct {
	Weather TemperatureSource
	// Base is the GDD base temperature in degrees Celsius.
	Base float64
	Log  logrus.FieldLogger
}

// Build samples every band of the annual composite at each point and pairs
// it with the AGDD at the end of the band's month. Points that cannot be
// sampled are left out and reported in the returned error.
func (b *Builder) Build(ctx context.Context, stack *raster.Stack, year int, points []output.Point) ([]output.Sample, error) {
	if stack.Geo == nil {
		return nil, fmt.Errorf("composite has no geocoding")
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	var (
		samples []output.Sample
		errs    []error
	)
	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		x, y, ok := stack.Geo.PixelAt(orb.Point{p.Lon, p.Lat}, stack.Width, stack.Height)
		if !ok {
			errs = append(errs, fmt.Errorf("point %s (%g, %g) is outside the composite", p.ID, p.Lon, p.Lat))
			continue
		}
		temps, err := b.Weather.FetchDailyTemperature(ctx, p.Lat, p.Lon, start, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("point %s: %w", p.ID, err))
			continue
		}
		agdd := gdd.MonthEnds(gdd.Accumulate(temps.Celsius, b.Base), year)
		values := stack.Series(x, y)
		for m, v := range values {
			a := agdd[min(m, len(agdd)-1)]
			samples = append(samples, output.Sample{
				ID:    p.ID,
				Lon:   p.Lon,
				Lat:   p.Lat,
				Month: m + 1,
				AGDD:  a,
				NDVI:  v,
			})
		}
		b.Log.WithFields(logrus.Fields{"point": p.ID, "x": x, "y": y}).Debug("sampled point")
	}
	return samples, errors.Join(errs...)
}
