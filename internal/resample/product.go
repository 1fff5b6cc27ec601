package resample

import (
	"fmt"
	"strings"

	"github.com/imagingearth/phenology/internal/raster"
)

// Product names the HDF4-EOS subdatasets of a vegetation index granule.
type Product struct {
	Grid string
	// Layer holds Token, e.g. "CMG 0.05 Deg Monthly NDVI".
	Layer        string
	Token        string
	QualityToken string
}

// MonthlyCMG is the MOD13C2/MYD13C2 0.05 degree monthly product for the
// given index ("NDVI" or "EVI").
func MonthlyCMG(vi string) (Product, error) {
	switch vi {
	case "NDVI", "EVI":
	default:
		return Product{}, fmt.Errorf("unknown vegetation index %q", vi)
	}
	return Product{
		Grid:         "MOD_Grid_monthly_CMG_VI",
		Layer:        "CMG 0.05 Deg Monthly " + vi,
		Token:        vi,
		QualityToken: "VI Quality",
	}, nil
}

func (p Product) subdataset(path, layer string) string {
	return fmt.Sprintf(`HDF4_EOS:EOS_GRID:"%s":%s:%s`, path, p.Grid, layer)
}

func (p Product) DatasetName(path string) string {
	return p.subdataset(path, p.Layer)
}

// QualityName substitutes the quality token in the layer name only, so a
// granule stored under e.g. /data/NDVI/ keeps its path.
func (p Product) QualityName(path string) string {
	return p.subdataset(path, strings.Replace(p.Layer, p.Token, p.QualityToken, 1))
}

// Resampler reads granule pairs through a raster.Reader.
type Resampler struct {
	reader  raster.Reader
	product Product
}

func NewResampler(reader raster.Reader, product Product) *Resampler {
	return &Resampler{reader: reader, product: product}
}

func (r *Resampler) Product() Product {
	return r.product
}

// Resample reads the vegetation index and quality layers of the granule at
// path and reduces them with Reduce.
func (r *Resampler) Resample(path string, opts Options) (*raster.Grid, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	data, err := r.reader.Read(r.product.DatasetName(path))
	if err != nil {
		return nil, err
	}
	quality, err := r.reader.Read(r.product.QualityName(path))
	if err != nil {
		return nil, err
	}
	out, err := Reduce(data, quality, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to resample %s: %w", path, err)
	}
	return out, nil
}
