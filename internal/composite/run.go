package composite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/imagingearth/phenology/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Outcome int

const (
	Written Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

type YearResult struct {
	Year    int
	Path    string
	Outcome Outcome
	// Missing lists the months filled with no-data.
	Missing []time.Month
	Err     error
}

type Report struct {
	Years []YearResult
	// Unparsed holds the granules whose names carry no readable date.
	Unparsed []error
}

func (r *Report) Count(o Outcome) int {
	n := 0
	for _, y := range r.Years {
		if y.Outcome == o {
			n++
		}
	}
	return n
}

func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d written, %d skipped, %d failed", r.Count(Written), r.Count(Skipped), r.Count(Failed))
	for _, y := range r.Years {
		if y.Outcome == Failed {
			fmt.Fprintf(&b, "\n%d: %v", y.Year, y.Err)
		}
	}
	if len(r.Unparsed) > 0 {
		fmt.Fprintf(&b, "\n%d granules with unreadable names", len(r.Unparsed))
	}
	return b.String()
}

// Run composites every year of the configured range found in the data
// directory. Failures are recorded per year; an error is returned only when
// discovery fails or no selected year succeeded.
func (c *Compositor) Run(ctx context.Context) (*Report, error) {
	scenes, unparsed, err := Discover(c.cfg.DataDir, c.cfg.Pattern)
	if err != nil {
		return nil, err
	}
	report := &Report{Unparsed: unparsed}
	for _, err := range unparsed {
		c.log.WithError(err).Warn("skipping granule")
	}

	byYear := ByYear(scenes)
	var years []int
	for _, y := range utils.GetSortedKeys(byYear, true) {
		if y >= c.cfg.YearFrom && y < c.cfg.YearTo {
			years = append(years, y)
		}
	}
	if len(years) == 0 {
		c.log.WithFields(logrus.Fields{
			"dir":     c.cfg.DataDir,
			"pattern": c.cfg.Pattern,
		}).Warn("no granules in the year range")
		return report, nil
	}

	var bar *progressbar.ProgressBar
	if c.cfg.Progress {
		bar = progressbar.Default(int64(len(years)), "Compositing years")
	} else {
		bar = progressbar.DefaultSilent(int64(len(years)))
	}

	pool := workerpool.New(c.cfg.MonthWorkers)
	defer pool.StopWait()

	report.Years = make([]YearResult, len(years))
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i, year := range years {
		g.Go(func() error {
			report.Years[i] = c.processYear(ctx, pool, year, byYear[year])
			bar.Add(1)
			return nil
		})
	}
	g.Wait()

	c.notify(ctx, report)

	if report.Count(Failed) == len(report.Years) {
		errs := make([]error, len(report.Years))
		for i, y := range report.Years {
			errs[i] = fmt.Errorf("%d: %w", y.Year, y.Err)
		}
		return report, fmt.Errorf("all %d years failed: %w", len(years), errors.Join(errs...))
	}
	return report, nil
}

func (c *Compositor) processYear(ctx context.Context, pool *workerpool.WorkerPool, year int, files []Scene) YearResult {
	res := YearResult{Year: year, Path: c.OutputPath(year)}
	log := c.log.WithFields(logrus.Fields{"year": year, "file": res.Path})

	fail := func(err error) YearResult {
		res.Outcome = Failed
		res.Err = err
		log.WithError(err).Error("year failed")
		return res
	}

	exists, err := c.writer.Exists(res.Path)
	if err != nil {
		return fail(err)
	}
	if exists {
		res.Outcome = Skipped
		log.Info("composite exists, skipping")
		return res
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	stack, missing, err := c.composeYear(ctx, pool, year, files)
	res.Missing = missing
	if err != nil {
		return fail(err)
	}
	if err := c.writer.Write(res.Path, stack); err != nil {
		return fail(fmt.Errorf("failed to write composite: %w", err))
	}

	if c.Preview != nil {
		preview := strings.TrimSuffix(res.Path, ".tif") + "_max.png"
		if err := c.Preview(preview, stack.Max()); err != nil {
			log.WithError(err).Warn("failed to write preview")
		}
	}
	res.Outcome = Written
	log.Info("composite written")
	return res
}

func (c *Compositor) notify(ctx context.Context, report *Report) {
	if c.Notifier == nil {
		return
	}
	var err error
	switch failed := report.Count(Failed); {
	case failed == len(report.Years):
		err = c.Notifier.SendError(ctx, report.Summary())
	case failed > 0:
		err = c.Notifier.SendWarning(ctx, report.Summary())
	default:
		err = c.Notifier.SendSuccess(ctx, report.Summary())
	}
	if err != nil {
		c.log.WithError(err).Warn("failed to send notification")
	}
}
