// Package raster holds the in-memory raster types and the accessors used to
// read product granules and write composites.
package raster

import "errors"

var (
	ErrInputNotFound     = errors.New("input not found")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Reader opens named datasets (file paths or GDAL subdataset names).
type Reader interface {
	// Read returns the first band of the dataset.
	Read(name string) (*Grid, error)
	// ReadStack returns count bands starting at the zero-based band first.
	// A count <= 0 reads every band from first on.
	ReadStack(name string, first, count int) (*Stack, error)
}

// Writer persists stacks. Implementations must never leave a partial file
// at path.
type Writer interface {
	Write(path string, stack *Stack) error
	Exists(path string) (bool, error)
}
