package raster

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
)

var (
	registerOnce sync.Once
	gdalMu       sync.Mutex
)

// executeWithMutex serialises GDAL dataset access; the HDF4 driver is not
// thread safe.
func executeWithMutex(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}

// GDAL reads and writes rasters through godal.
type GDAL struct {
	// CreationOptions are passed to the GeoTIFF driver on Write.
	CreationOptions []string
}

func NewGDAL() *GDAL {
	registerOnce.Do(godal.RegisterAll)
	return &GDAL{CreationOptions: []string{"TILED=YES", "COMPRESS=LZW", "TFW=YES"}}
}

func openDataset(name string) (*godal.Dataset, error) {
	ds, err := godal.Open(name, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return errors.New(msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInputNotFound, name, err)
	}
	return ds, nil
}

func readBand(band godal.Band, width, height int) (*Grid, error) {
	g := NewGrid(width, height)
	if err := band.Read(0, 0, g.Data, width, height); err != nil {
		return nil, err
	}
	if nodata, ok := band.NoData(); ok {
		for i, v := range g.Data {
			if v == nodata {
				g.Data[i] = math.NaN()
			}
		}
	}
	return g, nil
}

func (r *GDAL) Read(name string) (*Grid, error) {
	stack, err := r.ReadStack(name, 0, 1)
	if err != nil {
		return nil, err
	}
	return stack.Bands[0], nil
}

func (r *GDAL) ReadStack(name string, first, count int) (*Stack, error) {
	var (
		stack *Stack
		err   error
	)
	executeWithMutex(func() {
		stack, err = r.readStack(name, first, count)
	})
	return stack, err
}

func (r *GDAL) readStack(name string, first, count int) (*Stack, error) {
	ds, err := openDataset(name)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	structure := ds.Structure()
	bands := ds.Bands()
	if count <= 0 {
		count = len(bands) - first
	}
	if first < 0 || count <= 0 || first+count > len(bands) {
		return nil, fmt.Errorf("%w: bands [%d, %d) requested from %s with %d bands", ErrDimensionMismatch, first, first+count, name, len(bands))
	}

	stack := NewStack(structure.SizeX, structure.SizeY)
	if gt, err := ds.GeoTransform(); err == nil {
		if geo, err := FromGeoTransform(gt); err == nil {
			stack.Geo = &geo
		}
	}
	for _, band := range bands[first : first+count] {
		g, err := readBand(band, structure.SizeX, structure.SizeY)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := stack.Append(g); err != nil {
			return nil, err
		}
	}
	return stack, nil
}

func (r *GDAL) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Write creates a float32 GeoTIFF under a temporary name and renames it
// (and its world file) into place once GDAL has flushed it.
func (r *GDAL) Write(path string, stack *Stack) error {
	if stack.Geo == nil {
		return fmt.Errorf("stack for %s has no geocoding", path)
	}
	if len(stack.Bands) == 0 {
		return fmt.Errorf("stack for %s has no bands", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := partialName(path)
	var err error
	executeWithMutex(func() {
		err = r.create(tmp, stack)
	})
	if err != nil {
		removeWithWorldFile(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		removeWithWorldFile(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	if _, err := os.Stat(worldFile(tmp)); err == nil {
		if err := os.Rename(worldFile(tmp), worldFile(path)); err != nil {
			return fmt.Errorf("failed to rename world file: %w", err)
		}
	}
	return nil
}

func (r *GDAL) create(name string, stack *Stack) (err error) {
	ds, err := godal.Create(godal.GTiff, name, len(stack.Bands), godal.Float32, stack.Width, stack.Height,
		godal.CreationOption(r.CreationOptions...))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", name, cerr)
		}
	}()

	if err := ds.SetGeoTransform(stack.Geo.GeoTransform()); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(stack.Geo.EPSG)
	if err != nil {
		return fmt.Errorf("failed to build spatial reference: %w", err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}

	buf := make([]float32, stack.Width*stack.Height)
	for i, band := range ds.Bands() {
		for j, v := range stack.Bands[i].Data {
			buf[j] = float32(v)
		}
		if err := band.SetNoData(math.NaN()); err != nil {
			return fmt.Errorf("failed to set nodata on band %d: %w", i+1, err)
		}
		if err := band.Write(0, 0, buf, stack.Width, stack.Height); err != nil {
			return fmt.Errorf("failed to write band %d: %w", i+1, err)
		}
	}
	return nil
}

func partialName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".partial" + ext
}

func worldFile(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".tfw"
}

func removeWithWorldFile(path string) {
	os.Remove(path)
	os.Remove(worldFile(path))
}
