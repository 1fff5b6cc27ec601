package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FitFeatures turns fit rows into point features. Non-finite numbers are
// written as null.
func FitFeatures(rows []FitRow) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		f := geojson.NewFeature(orb.Point{row.Lon, row.Lat})
		f.Properties["id"] = row.ID
		f.Properties["model"] = row.Model
		f.Properties["orientation"] = row.Orientation
		f.Properties["status"] = row.Status
		f.Properties["samples"] = row.Samples
		f.Properties["params"] = row.Params
		if math.IsNaN(row.RMSE) || math.IsInf(row.RMSE, 0) {
			f.Properties["rmse"] = nil
		} else {
			f.Properties["rmse"] = row.RMSE
		}
		if row.Error != "" {
			f.Properties["error"] = row.Error
		}
		fc.Append(f)
	}
	return fc
}

func WriteFitGeoJSON(path string, rows []FitRow) error {
	b, err := FitFeatures(rows).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
