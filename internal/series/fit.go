package series

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/imagingearth/phenology/internal/fit"
	"github.com/imagingearth/phenology/output"
)

// FitSamples groups samples by point id, drops pairs with a missing value
// and fits each group. Rows come back in the order ids first appear. A
// failed fit is reported in the row rather than as an error.
func FitSamples(samples []output.Sample, opts fit.Options, workers int) []output.FitRow {
	type group struct {
		row        output.FitRow
		ndvi, agdd []float64
	}
	var groups []*group
	byID := make(map[string]*group)
	for _, s := range samples {
		g, ok := byID[s.ID]
		if !ok {
			g = &group{row: output.FitRow{ID: s.ID, Lon: s.Lon, Lat: s.Lat}}
			byID[s.ID] = g
			groups = append(groups, g)
		}
		if math.IsNaN(s.NDVI) || math.IsNaN(s.AGDD) {
			continue
		}
		g.ndvi = append(g.ndvi, s.NDVI)
		g.agdd = append(g.agdd, s.AGDD)
	}

	rows := make([]output.FitRow, len(groups))
	var mu sync.Mutex
	wp := workerpool.New(max(workers, 1))
	for i, g := range groups {
		wp.Submit(func() {
			row := g.row
			row.Model = opts.Model.String()
			row.Samples = len(g.ndvi)
			row.RMSE = math.NaN()

			res, err := fit.Fit(g.ndvi, g.agdd, opts)
			if res != nil {
				row.Orientation = res.Orientation.String()
				row.Status = res.Status.String()
				row.RMSE = res.RMSE
				row.Params = formatParams(res.Params)
			}
			if err != nil {
				row.Error = err.Error()
			}

			mu.Lock()
			rows[i] = row
			mu.Unlock()
		})
	}
	wp.StopWait()
	return rows
}

func formatParams(p []float64) string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ";")
}
