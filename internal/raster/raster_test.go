package raster

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridJSONKeepsMissingSamples(t *testing.T) {
	g, err := GridFromRows([][]float64{{1, math.NaN()}, {3, 4}})
	require.NoError(t, err)

	b, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(b), "null")

	var back Grid
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 2, back.Width)
	assert.Equal(t, 2, back.Height)
	assert.True(t, math.IsNaN(back.At(1, 0)))
	assert.Equal(t, 4.0, back.At(1, 1))
	assert.Equal(t, 3, back.Valid())
}

func TestGridFromRowsRejectsRaggedRows(t *testing.T) {
	_, err := GridFromRows([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStackAppendAndMax(t *testing.T) {
	s := NewStack(2, 1)
	a, _ := GridFromRows([][]float64{{1, math.NaN()}})
	b, _ := GridFromRows([][]float64{{0.5, 2}})
	require.NoError(t, s.Append(a))
	require.NoError(t, s.Append(b))

	assert.ErrorIs(t, s.Append(NewGrid(3, 1)), ErrDimensionMismatch)

	n, h, w := s.Shape()
	assert.Equal(t, []int{2, 1, 2}, []int{n, h, w})
	assert.Equal(t, []float64{1, 0.5}, s.Series(0, 0))
	assert.Equal(t, []float64{1, 2}, s.Max().Data)
}

func TestGeocoding(t *testing.T) {
	geo := Global(1.5)
	assert.Equal(t, [6]float64{-180, 1.5, 0, 90, 0, -1.5}, geo.GeoTransform())

	bound := geo.Bound(240, 120)
	assert.Equal(t, orb.Point{-180, -90}, bound.Min)
	assert.Equal(t, orb.Point{180, 90}, bound.Max)

	tests := []struct {
		name string
		p    orb.Point
		x, y int
		ok   bool
	}{
		{"origin", orb.Point{-180, 90}, 0, 0, true},
		{"inside", orb.Point{-0.1, 0.1}, 119, 59, true},
		{"far corner", orb.Point{180, -90}, 239, 119, true},
		{"outside", orb.Point{181, 0}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, ok := geo.PixelAt(tt.p, 240, 120)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.x, x)
				assert.Equal(t, tt.y, y)
			}
		})
	}

	back, err := FromGeoTransform(geo.GeoTransform())
	require.NoError(t, err)
	assert.Equal(t, geo, back)
	_, err = FromGeoTransform([6]float64{0, 1, 0.2, 0, 0, -1})
	assert.Error(t, err)
}

func TestMemoryReaderWriter(t *testing.T) {
	m := NewMemory()
	_, err := m.Read("missing")
	assert.ErrorIs(t, err, ErrInputNotFound)

	g, _ := GridFromRows([][]float64{{1, 2}})
	m.Put("a", g)
	g.Set(0, 0, 99)

	got, err := m.Read("a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got.Data)
	assert.Equal(t, 1, m.Reads("a"))

	s := NewStack(2, 1)
	require.NoError(t, s.Append(g))
	assert.Error(t, m.Write("out.tif", s))

	geo := Global(1)
	s.Geo = &geo
	require.NoError(t, m.Write("out.tif", s))
	ok, err := m.Exists("out.tif")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGDALWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NDVI_2005.tif")

	s := NewStack(3, 2)
	geo := Global(60)
	s.Geo = &geo
	a, _ := GridFromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	b, _ := GridFromRows([][]float64{{math.NaN(), 0.5, 0.25}, {-1, -2, -3}})
	require.NoError(t, s.Append(a))
	require.NoError(t, s.Append(b))

	gdal := NewGDAL()
	ok, err := gdal.Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, gdal.Write(path, s))

	_, err = os.Stat(partialName(path))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(worldFile(path))
	assert.NoError(t, err)

	back, err := gdal.ReadStack(path, 0, 0)
	require.NoError(t, err)
	n, h, w := back.Shape()
	assert.Equal(t, []int{2, 2, 3}, []int{n, h, w})
	assert.Equal(t, a.Data, back.Bands[0].Data)
	assert.True(t, math.IsNaN(back.Bands[1].At(0, 0)))
	assert.Equal(t, 0.25, back.Bands[1].At(2, 0))
	require.NotNil(t, back.Geo)
	assert.Equal(t, geo.GeoTransform(), back.Geo.GeoTransform())

	_, err = gdal.Read(filepath.Join(dir, "nope.tif"))
	assert.ErrorIs(t, err, ErrInputNotFound)
}
