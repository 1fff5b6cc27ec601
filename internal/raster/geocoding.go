package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const EPSGWGS84 = 4326

// Geocoding describes a north-up grid with square cells.
type Geocoding struct {
	OriginX  float64
	OriginY  float64
	CellSize float64
	EPSG     int
}

// Global is the geographic grid anchored at (-180, 90) used for composites.
func Global(cellSize float64) Geocoding {
	return Geocoding{OriginX: -180, OriginY: 90, CellSize: cellSize, EPSG: EPSGWGS84}
}

// FromGeoTransform accepts only north-up, square-pixel geotransforms.
func FromGeoTransform(gt [6]float64) (Geocoding, error) {
	if gt[2] != 0 || gt[4] != 0 || gt[1] <= 0 || math.Abs(gt[1]+gt[5]) > 1e-12*gt[1] {
		return Geocoding{}, fmt.Errorf("unsupported geotransform %v", gt)
	}
	return Geocoding{OriginX: gt[0], OriginY: gt[3], CellSize: gt[1], EPSG: EPSGWGS84}, nil
}

func (g Geocoding) GeoTransform() [6]float64 {
	return [6]float64{g.OriginX, g.CellSize, 0, g.OriginY, 0, -g.CellSize}
}

// Bound is the geographic extent of a width x height grid.
func (g Geocoding) Bound(width, height int) orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.OriginX, g.OriginY - float64(height)*g.CellSize},
		Max: orb.Point{g.OriginX + float64(width)*g.CellSize, g.OriginY},
	}
}

// PixelAt returns the pixel containing p, ok is false outside the grid.
func (g Geocoding) PixelAt(p orb.Point, width, height int) (int, int, bool) {
	if !g.Bound(width, height).Contains(p) {
		return 0, 0, false
	}
	x := int(math.Floor((p.Lon() - g.OriginX) / g.CellSize))
	y := int(math.Floor((g.OriginY - p.Lat()) / g.CellSize))
	// points on the far edges belong to the last row/column
	x = min(x, width-1)
	y = min(y, height-1)
	return x, y, true
}

// Center returns the coordinate of the centre of pixel (x, y).
func (g Geocoding) Center(x, y int) orb.Point {
	return orb.Point{
		g.OriginX + (float64(x)+0.5)*g.CellSize,
		g.OriginY - (float64(y)+0.5)*g.CellSize,
	}
}
