// Package gdd computes growing degree day accumulations from daily mean
// temperatures.
package gdd

import (
	"fmt"
	"math"
	"time"

	"github.com/imagingearth/phenology/internal/raster"
)

// DaysPerYear is the band count of one year in a daily temperature raster.
const DaysPerYear = 365

// Scaling converts packed raster samples to degrees Celsius.
type Scaling struct {
	Scale  float64
	Offset float64
	NoData float64
}

// ERAInterim is the packing of the daily 2 m temperature product.
var ERAInterim = Scaling{
	Scale:  0.0020151192442093,
	Offset: 258.72093867714 - 273.15,
	NoData: -32767,
}

// Celsius unpacks a raw sample. No-data and NaN become NaN.
func (s Scaling) Celsius(raw float64) float64 {
	if math.IsNaN(raw) || raw == s.NoData {
		return math.NaN()
	}
	return raw*s.Scale + s.Offset
}

// Accumulate returns the running sum of max(t-base, 0). Missing days add
// nothing.
func Accumulate(celsius []float64, base float64) []float64 {
	out := make([]float64, len(celsius))
	var sum float64
	for i, t := range celsius {
		if !math.IsNaN(t) && t > base {
			sum += t - base
		}
		out[i] = sum
	}
	return out
}

// FromRaster reads the daily bands of the 1-based year index from a
// multi-year temperature raster and returns one AGDD band per day.
func FromRaster(reader raster.Reader, path string, year int, base float64, scaling Scaling) (*raster.Stack, error) {
	if year < 1 {
		return nil, fmt.Errorf("year index must be at least 1, got %d", year)
	}
	daily, err := reader.ReadStack(path, (year-1)*DaysPerYear, DaysPerYear)
	if err != nil {
		return nil, fmt.Errorf("failed to read year %d of %s: %w", year, path, err)
	}

	days, height, width := daily.Shape()
	out := raster.NewStack(width, height)
	out.Geo = daily.Geo
	for d := 0; d < days; d++ {
		out.Bands = append(out.Bands, raster.NewGrid(width, height))
	}

	temps := make([]float64, days)
	for i := 0; i < width*height; i++ {
		for d, band := range daily.Bands {
			temps[d] = scaling.Celsius(band.Data[i])
		}
		for d, v := range Accumulate(temps, base) {
			out.Bands[d].Data[i] = v
		}
	}
	return out, nil
}

// MonthEnds samples an AGDD series on the last day of each month of year.
// A series shorter than the year is read at its last day.
func MonthEnds(daily []float64, year int) []float64 {
	out := make([]float64, 12)
	if len(daily) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for m := 0; m < 12; m++ {
		last := time.Date(year, time.Month(m+2), 0, 0, 0, 0, 0, time.UTC).YearDay() - 1
		out[m] = daily[min(last, len(daily)-1)]
	}
	return out
}
