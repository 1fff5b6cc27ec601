// Package composite stacks monthly vegetation index granules into annual
// 12-band composites on a coarser global grid.
package composite

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/imagingearth/phenology/internal/cache"
	"github.com/imagingearth/phenology/internal/raster"
	"github.com/imagingearth/phenology/internal/resample"
	"github.com/sirupsen/logrus"
)

var ErrIncompleteYear = errors.New("incomplete year")

const monthsPerYear = 12

// IncompletePolicy decides what happens to a year with fewer than 12
// monthly granules.
type IncompletePolicy int

const (
	IncompleteFail IncompletePolicy = iota
	// IncompleteFill writes the year with the missing months set to NaN.
	IncompleteFill
)

func (p IncompletePolicy) String() string {
	switch p {
	case IncompleteFail:
		return "fail"
	case IncompleteFill:
		return "fill"
	default:
		return fmt.Sprintf("IncompletePolicy(%d)", int(p))
	}
}

func ParseIncompletePolicy(s string) (IncompletePolicy, error) {
	switch s {
	case "", "fail":
		return IncompleteFail, nil
	case "fill":
		return IncompleteFill, nil
	default:
		return 0, fmt.Errorf("unknown incomplete year policy %q", s)
	}
}

// Factor returns the integer block size turning sourceCell pixels into cell
// pixels.
func Factor(cell, sourceCell float64) (int, error) {
	if cell <= 0 || sourceCell <= 0 {
		return 0, fmt.Errorf("%w: cell sizes must be positive, got %g and %g", raster.ErrDimensionMismatch, cell, sourceCell)
	}
	ratio := cell / sourceCell
	f := math.Round(ratio)
	if f < 1 || math.Abs(ratio-f) > 1e-9*f {
		return 0, fmt.Errorf("%w: cell size %g is not a multiple of %g", raster.ErrDimensionMismatch, cell, sourceCell)
	}
	return int(f), nil
}

type Config struct {
	DataDir      string
	Pattern      string
	OutputPrefix string
	// Years in [YearFrom, YearTo) are processed.
	YearFrom       int
	YearTo         int
	CellSize       float64
	SourceCellSize float64
	Reduction      resample.Reduction
	DataMin        float64
	DataMax        float64
	Quality        resample.QualitySet
	Incomplete     IncompletePolicy
	Workers        int
	MonthWorkers   int
	Progress       bool
}

// Notifier receives the batch summary.
type Notifier interface {
	SendError(ctx context.Context, message string) error
	SendWarning(ctx context.Context, message string) error
	SendSuccess(ctx context.Context, message string) error
}

type Compositor struct {
	cfg       Config
	resampler *resample.Resampler
	writer    raster.Writer
	log       logrus.FieldLogger
	opts      resample.Options

	// Cache, when set, keeps monthly resample results between runs.
	Cache *cache.FileCache[*raster.Grid]
	// Preview, when set, is called with the per-pixel maximum of every
	// written year.
	Preview  func(path string, g *raster.Grid) error
	Notifier Notifier
}

func New(cfg Config, resampler *resample.Resampler, writer raster.Writer, log logrus.FieldLogger) (*Compositor, error) {
	factor, err := Factor(cfg.CellSize, cfg.SourceCellSize)
	if err != nil {
		return nil, err
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	cfg.Workers = max(cfg.Workers, 1)
	cfg.MonthWorkers = max(cfg.MonthWorkers, 1)
	quality := cfg.Quality
	if quality == nil {
		quality = resample.DefaultQuality
	}
	return &Compositor{
		cfg:       cfg,
		resampler: resampler,
		writer:    writer,
		log:       log,
		opts: resample.Options{
			XFactor:   factor,
			YFactor:   factor,
			Reduction: cfg.Reduction,
			DataMin:   cfg.DataMin,
			DataMax:   cfg.DataMax,
			Quality:   quality,
		},
	}, nil
}

// OutputPath is the composite file written for year.
func (c *Compositor) OutputPath(year int) string {
	return fmt.Sprintf("%s_%d.tif", c.cfg.OutputPrefix, year)
}

// ComposeYear resamples the granules of one year and stacks them in month
// order.
func (c *Compositor) ComposeYear(ctx context.Context, year int, files []Scene) (*raster.Stack, error) {
	pool := workerpool.New(c.cfg.MonthWorkers)
	defer pool.StopWait()
	stack, _, err := c.composeYear(ctx, pool, year, files)
	return stack, err
}

func (c *Compositor) composeYear(ctx context.Context, pool *workerpool.WorkerPool, year int, files []Scene) (*raster.Stack, []time.Month, error) {
	files = append([]Scene(nil), files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	if len(files) > monthsPerYear {
		return nil, nil, fmt.Errorf("%w: %d has %d granules", ErrIncompleteYear, year, len(files))
	}
	slots := make([]*Scene, monthsPerYear)
	for i := range files {
		if files[i].Month < time.January || files[i].Month > time.December {
			return nil, nil, fmt.Errorf("%w: %d has granule %s with no month", ErrIncompleteYear, year, files[i].Path)
		}
		m := int(files[i].Month) - 1
		if slots[m] != nil {
			return nil, nil, fmt.Errorf("%w: %d has two granules for %s (%s, %s); narrow the file pattern to a single product",
				ErrIncompleteYear, year, files[i].Month, slots[m].Path, files[i].Path)
		}
		slots[m] = &files[i]
	}
	var missing []time.Month
	for m, s := range slots {
		if s == nil {
			missing = append(missing, time.Month(m+1))
		}
	}
	if len(missing) > 0 && c.cfg.Incomplete == IncompleteFail {
		return nil, missing, fmt.Errorf("%w: %d has %d granules, missing %s", ErrIncompleteYear, year, len(files), monthList(missing))
	}

	grids := make([]*raster.Grid, monthsPerYear)
	errs := make([]error, monthsPerYear)
	var wg sync.WaitGroup
	for m, s := range slots {
		if s == nil {
			continue
		}
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[m] = err
				return
			}
			grids[m], errs[m] = c.resampleMonth(s.Path)
			if errs[m] != nil {
				c.log.WithFields(logrus.Fields{
					"year":  year,
					"month": s.Month,
					"file":  s.Path,
					"error": errs[m],
				}).Error("failed to resample granule")
			}
		})
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, missing, err
	}

	var shape *raster.Grid
	for _, g := range grids {
		if g != nil {
			shape = g
			break
		}
	}
	if shape == nil {
		return nil, missing, fmt.Errorf("%w: %d has no granules", ErrIncompleteYear, year)
	}

	stack := raster.NewStack(shape.Width, shape.Height)
	geo := raster.Global(c.cfg.CellSize)
	stack.Geo = &geo
	for m, g := range grids {
		if g == nil {
			g = raster.NewGridFilled(shape.Width, shape.Height, math.NaN())
		}
		if err := stack.Append(g); err != nil {
			return nil, missing, fmt.Errorf("month %d of %d: %w", m+1, year, err)
		}
	}
	if len(missing) > 0 {
		c.log.WithFields(logrus.Fields{
			"year":    year,
			"missing": monthList(missing),
		}).Warn("filled missing months with no-data")
	}
	return stack, missing, nil
}

func (c *Compositor) resampleMonth(path string) (*raster.Grid, error) {
	var key string
	if c.Cache != nil {
		if info, err := os.Stat(path); err == nil {
			key = c.Cache.GenerateKey(path, info.Size(), info.ModTime().UnixNano(), c.resampler.Product().Layer,
				c.opts.XFactor, c.opts.YFactor, c.opts.Reduction, c.opts.DataMin, c.opts.DataMax, c.opts.Quality)
			if g, ok := c.Cache.Get(key); ok {
				return g, nil
			}
		}
	}
	g, err := c.resampler.Resample(path, c.opts)
	if err != nil {
		return nil, err
	}
	if key != "" {
		if err := c.Cache.Set(key, g); err != nil {
			c.log.WithError(err).WithField("file", path).Warn("failed to cache resampled granule")
		}
	}
	return g, nil
}

func monthList(months []time.Month) string {
	names := make([]string, len(months))
	for i, m := range months {
		names[i] = m.String()[:3]
	}
	return strings.Join(names, ",")
}
