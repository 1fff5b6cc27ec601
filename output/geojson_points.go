package output

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ReadPointsGeoJSON reads sampling locations from a FeatureCollection.
// Points are used as is, polygons by their centroid. The id comes from the
// "id" or "plot_id" property, falling back to the feature index.
func ReadPointsGeoJSON(path string) ([]Point, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	points := make([]Point, 0, len(fc.Features))
	for i, f := range fc.Features {
		c, err := centroid(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d of %s: %w", i, path, err)
		}
		id := fmt.Sprint(i)
		for _, key := range []string{"id", "plot_id"} {
			if v, ok := f.Properties[key]; ok && v != nil {
				id = fmt.Sprint(v)
				break
			}
		}
		points = append(points, Point{ID: id, Lon: c.Lon(), Lat: c.Lat()})
	}
	return points, nil
}

func centroid(g orb.Geometry) (orb.Point, error) {
	switch g := g.(type) {
	case orb.Point:
		return g, nil
	case nil:
		return orb.Point{}, errors.New("missing geometry")
	}
	c, area := planar.CentroidArea(g)
	if area <= 0 {
		return orb.Point{}, errors.New("error getting centroid")
	}
	return c, nil
}
