package composite

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/imagingearth/phenology/internal/cache"
	"github.com/imagingearth/phenology/internal/raster"
	"github.com/imagingearth/phenology/internal/resample"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir     string
	mem     *raster.Memory
	product resample.Product
	hook    *test.Hook
	c       *Compositor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	product, err := resample.MonthlyCMG("NDVI")
	require.NoError(t, err)

	dir := t.TempDir()
	mem := raster.NewMemory()
	log, hook := test.NewNullLogger()
	c, err := New(Config{
		DataDir:        dir,
		OutputPrefix:   filepath.Join(dir, "out", "ndvi"),
		YearFrom:       2001,
		YearTo:         2012,
		CellSize:       0.1,
		SourceCellSize: 0.05,
		DataMin:        -1000,
		DataMax:        10000,
		Workers:        2,
		MonthWorkers:   3,
	}, resample.NewResampler(mem, product), mem, log)
	require.NoError(t, err)
	return &fixture{dir: dir, mem: mem, product: product, hook: hook, c: c}
}

// granules creates 4x4 monthly granules for year whose valid pixels all
// hold month*100.
func (f *fixture) granules(t *testing.T, year int, months ...int) []Scene {
	t.Helper()
	var scenes []Scene
	for _, m := range months {
		doy := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC).YearDay()
		path := filepath.Join(f.dir, fmt.Sprintf("MOD13C2.A%d%03d.061.hdf", year, doy))
		require.NoError(t, os.WriteFile(path, nil, 0644))
		f.mem.Put(f.product.DatasetName(path), raster.NewGridFilled(4, 4, float64(m*100)))
		f.mem.Put(f.product.QualityName(path), raster.NewGridFilled(4, 4, 0))
		s, err := ParseScene(path)
		require.NoError(t, err)
		scenes = append(scenes, s)
	}
	return scenes
}

func allMonths() []int {
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
}

func TestRunWritesAnnualCompositeAndSkipsOnRerun(t *testing.T) {
	f := newFixture(t)
	scenes := f.granules(t, 2005, allMonths()...)

	report, err := f.c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Years, 1)
	assert.Equal(t, Written, report.Years[0].Outcome)

	out := f.c.OutputPath(2005)
	assert.Equal(t, filepath.Join(f.dir, "out", "ndvi_2005.tif"), out)
	stack, ok := f.mem.Written(out)
	require.True(t, ok)
	bands, h, w := stack.Shape()
	assert.Equal(t, []int{12, 2, 2}, []int{bands, h, w})
	for m, band := range stack.Bands {
		assert.Equal(t, float64((m+1)*100), band.At(1, 1))
	}
	require.NotNil(t, stack.Geo)
	assert.Equal(t, [6]float64{-180, 0.1, 0, 90, 0, -0.1}, stack.Geo.GeoTransform())

	reads := f.mem.Reads(f.product.DatasetName(scenes[0].Path))
	report, err = f.c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, report.Years[0].Outcome)
	assert.Equal(t, reads, f.mem.Reads(f.product.DatasetName(scenes[0].Path)), "skipped years must not read granules")

	again, _ := f.mem.Written(out)
	assert.Equal(t, stack, again)
}

func TestComposeYearRejectsIncompleteYear(t *testing.T) {
	f := newFixture(t)
	scenes := f.granules(t, 2005, 1, 2, 3, 4, 5, 6, 8, 9, 10, 11, 12)

	_, err := f.c.ComposeYear(context.Background(), 2005, scenes)
	require.ErrorIs(t, err, ErrIncompleteYear)
	assert.Contains(t, err.Error(), "Jul")
}

func TestComposeYearFillsMissingMonthsWithNaN(t *testing.T) {
	f := newFixture(t)
	f.c.cfg.Incomplete = IncompleteFill
	scenes := f.granules(t, 2005, 1, 2, 3, 4, 5, 6, 8, 9, 10, 11, 12)

	stack, err := f.c.ComposeYear(context.Background(), 2005, scenes)
	require.NoError(t, err)
	require.Len(t, stack.Bands, 12)
	assert.Equal(t, 0, stack.Bands[6].Valid())
	assert.True(t, math.IsNaN(stack.Bands[6].At(0, 0)))
	assert.Equal(t, 800.0, stack.Bands[7].At(0, 0))

	entry := f.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Jul", entry.Data["missing"])
	assert.Equal(t, 2005, entry.Data["year"])
}

func TestComposeYearRejectsDuplicateAndExtraGranules(t *testing.T) {
	f := newFixture(t)
	scenes := f.granules(t, 2005, allMonths()...)

	dup := scenes[0]
	dup.Path = strings.Replace(dup.Path, "MOD13C2", "MYD13C2", 1)
	_, err := f.c.ComposeYear(context.Background(), 2005, append(scenes[:11:11], dup))
	require.ErrorIs(t, err, ErrIncompleteYear)
	assert.Contains(t, err.Error(), "narrow the file pattern")

	_, err = f.c.ComposeYear(context.Background(), 2005, append(scenes, dup))
	assert.ErrorIs(t, err, ErrIncompleteYear)
}

func TestComposeYearRejectsScenesWithoutMonth(t *testing.T) {
	f := newFixture(t)
	scenes := f.granules(t, 2005, allMonths()...)

	for _, month := range []time.Month{0, 13} {
		bad := append([]Scene(nil), scenes...)
		bad[4] = Scene{Path: scenes[4].Path, Month: month}
		var err error
		require.NotPanics(t, func() {
			_, err = f.c.ComposeYear(context.Background(), 2005, bad)
		})
		assert.ErrorIs(t, err, ErrIncompleteYear)
		assert.Contains(t, err.Error(), "no month")
	}
	assert.Equal(t, 0, f.mem.Reads(f.product.DatasetName(scenes[0].Path)))
}

func TestRunContinuesPastFailedYears(t *testing.T) {
	f := newFixture(t)
	f.granules(t, 2005, allMonths()...)
	f.granules(t, 2006, 1, 2, 3)
	f.granules(t, 2012, allMonths()...)

	notifier := &recordingNotifier{}
	f.c.Notifier = notifier

	report, err := f.c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Years, 2, "years outside the range are not selected")
	assert.Equal(t, 2005, report.Years[0].Year)
	assert.Equal(t, Written, report.Years[0].Outcome)
	assert.Equal(t, Failed, report.Years[1].Outcome)
	assert.ErrorIs(t, report.Years[1].Err, ErrIncompleteYear)

	_, ok := f.mem.Written(f.c.OutputPath(2006))
	assert.False(t, ok)
	require.Len(t, notifier.warnings, 1)
	assert.Contains(t, notifier.warnings[0], "1 written, 0 skipped, 1 failed")
	assert.Empty(t, notifier.errors)
}

func TestRunFailsWhenEveryYearFails(t *testing.T) {
	f := newFixture(t)
	f.granules(t, 2006, 1, 2, 3)

	report, err := f.c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteYear)
	assert.Equal(t, 1, report.Count(Failed))

	_, err = New(Config{CellSize: 0.07, SourceCellSize: 0.05}, nil, nil, nil)
	assert.ErrorIs(t, err, raster.ErrDimensionMismatch)
}

func TestRunMissingDataDir(t *testing.T) {
	f := newFixture(t)
	f.c.cfg.DataDir = filepath.Join(f.dir, "missing")
	_, err := f.c.Run(context.Background())
	assert.Error(t, err)
}

func TestComposeYearUsesCache(t *testing.T) {
	f := newFixture(t)
	f.c.Cache = cache.NewFileCache[*raster.Grid](filepath.Join(f.dir, "cache"))
	scenes := f.granules(t, 2005, allMonths()...)

	first, err := f.c.ComposeYear(context.Background(), 2005, scenes)
	require.NoError(t, err)
	name := f.product.DatasetName(scenes[3].Path)
	assert.Equal(t, 1, f.mem.Reads(name))

	second, err := f.c.ComposeYear(context.Background(), 2005, scenes)
	require.NoError(t, err)
	assert.Equal(t, 1, f.mem.Reads(name))
	assert.Equal(t, first.Bands[3].Data, second.Bands[3].Data)
}

func TestRunWritesPreview(t *testing.T) {
	f := newFixture(t)
	f.granules(t, 2005, allMonths()...)

	var gotPath string
	var gotMax float64
	f.c.Preview = func(path string, g *raster.Grid) error {
		gotPath, gotMax = path, g.At(0, 0)
		return nil
	}
	_, err := f.c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "out", "ndvi_2005_max.png"), gotPath)
	assert.Equal(t, 1200.0, gotMax)
}

func TestFactor(t *testing.T) {
	tests := []struct {
		cell, source float64
		expect       int
		ok           bool
	}{
		{1.5, 0.05, 30, true},
		{0.1, 0.05, 2, true},
		{0.05, 0.05, 1, true},
		{0.07, 0.05, 0, false},
		{0.025, 0.05, 0, false},
		{0, 0.05, 0, false},
	}
	for _, tt := range tests {
		got, err := Factor(tt.cell, tt.source)
		if !tt.ok {
			assert.ErrorIs(t, err, raster.ErrDimensionMismatch, "%g/%g", tt.cell, tt.source)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expect, got)
	}
}

func TestParseIncompletePolicy(t *testing.T) {
	p, err := ParseIncompletePolicy("fill")
	require.NoError(t, err)
	assert.Equal(t, IncompleteFill, p)
	p, err = ParseIncompletePolicy("")
	require.NoError(t, err)
	assert.Equal(t, IncompleteFail, p)
	_, err = ParseIncompletePolicy("zero")
	assert.Error(t, err)
}

type recordingNotifier struct {
	mu        sync.Mutex
	errors    []string
	warnings  []string
	successes []string
}

func (n *recordingNotifier) SendError(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
	return nil
}

func (n *recordingNotifier) SendWarning(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, message)
	return nil
}

func (n *recordingNotifier) SendSuccess(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
	return nil
}
