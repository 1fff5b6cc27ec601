package output

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/imagingearth/phenology/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePreview(t *testing.T) {
	g, err := raster.GridFromRows([][]float64{{0, 500}, {1000, math.NaN()}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "previews", "ndvi_2005_max.png")
	require.NoError(t, WritePreview(path, g))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())

	r, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), a)
	r, _, _, _ = img.At(0, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	_, _, _, a = img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0), a, "missing pixels are transparent")
}

func TestSamplesCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	rows := []Sample{
		{ID: "p1", Lon: -0.1, Lat: 51.5, Month: 1, AGDD: 12.5, NDVI: 0.31},
		{ID: "p1", Lon: -0.1, Lat: 51.5, Month: 2, AGDD: 30, NDVI: math.NaN()},
	}
	require.NoError(t, WriteSamples(path, rows))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "id,lon,lat,month,agdd,ndvi")

	got, err := ReadSamples(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows[0], got[0])
	assert.True(t, math.IsNaN(got[1].NDVI))
}

func TestReadPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,lon,lat\nlondon,-0.1,51.5\nquito,-78.5,-0.2\n"), 0644))
	points, err := ReadPoints(path)
	require.NoError(t, err)
	assert.Equal(t, []Point{{"london", -0.1, 51.5}, {"quito", -78.5, -0.2}}, points)

	_, err = ReadPoints(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestWriteFitGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.geojson")
	rows := []FitRow{
		{ID: "p1", Lon: -0.1, Lat: 51.5, Model: "quadratic", Status: "converged-cost", Samples: 12, RMSE: 0.02, Params: "-0.01;0.12;0.2"},
		{ID: "p2", Lon: 10, Lat: 45, Model: "double-logistic", Samples: 3, RMSE: math.NaN(), Error: "too few samples"},
	}
	require.NoError(t, WriteFitGeoJSON(path, rows))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(b)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{-0.1, 51.5}, fc.Features[0].Geometry)
	assert.Equal(t, "p1", fc.Features[0].Properties.MustString("id"))
	assert.Equal(t, 0.02, fc.Features[0].Properties.MustFloat64("rmse"))
	assert.Nil(t, fc.Features[1].Properties["rmse"])
	assert.Equal(t, "too few samples", fc.Features[1].Properties.MustString("error"))
}

func TestReadPointsGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.geojson")
	body := `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"plot_id":"a"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
{"type":"Feature","properties":{"id":7},"geometry":{"type":"Point","coordinates":[-0.1,51.5]}},
{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[10,20]}}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	points, err := ReadPointsGeoJSON(path)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "a", points[0].ID)
	assert.InDelta(t, 1, points[0].Lon, 1e-12)
	assert.InDelta(t, 1, points[0].Lat, 1e-12)
	assert.Equal(t, Point{"7", -0.1, 51.5}, points[1])
	assert.Equal(t, "2", points[2].ID)

	line := filepath.Join(t.TempDir(), "line.geojson")
	require.NoError(t, os.WriteFile(line, []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}]}`), 0644))
	_, err = ReadPointsGeoJSON(line)
	assert.Error(t, err)
}
