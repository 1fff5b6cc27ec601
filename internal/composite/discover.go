package composite

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultPattern matches MODIS Terra and Aqua monthly CMG granules. A
// directory holding both products needs a narrower pattern, otherwise every
// month has two granules.
const DefaultPattern = "M*D13C2.*.hdf"

// Scene is one monthly granule.
type Scene struct {
	Path  string
	Year  int
	DOY   int
	Month time.Month
}

// ParseScene reads the acquisition date from the second dot separated token
// of the file name, e.g. MOD13C2.A2005032.061.2015.hdf.
func ParseScene(path string) (Scene, error) {
	parts := strings.Split(filepath.Base(path), ".")
	if len(parts) < 2 {
		return Scene{}, fmt.Errorf("no date token in %s", path)
	}
	token := parts[1]
	if len(token) != 8 || token[0] != 'A' {
		return Scene{}, fmt.Errorf("malformed date token %q in %s", token, path)
	}
	year, err := strconv.Atoi(token[1:5])
	if err != nil {
		return Scene{}, fmt.Errorf("malformed year in %s: %w", path, err)
	}
	doy, err := strconv.Atoi(token[5:8])
	if err != nil {
		return Scene{}, fmt.Errorf("malformed day of year in %s: %w", path, err)
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if doy < 1 || doy > start.AddDate(1, 0, -1).YearDay() {
		return Scene{}, fmt.Errorf("day of year %d out of range in %s", doy, path)
	}
	return Scene{
		Path:  path,
		Year:  year,
		DOY:   doy,
		Month: start.AddDate(0, 0, doy-1).Month(),
	}, nil
}

// Discover lists the granules in dir matching pattern in lexicographic
// order. Names without a readable date are returned in skipped.
func Discover(dir, pattern string) (scenes []Scene, skipped []error, err error) {
	if info, err := os.Stat(dir); err != nil {
		return nil, nil, fmt.Errorf("failed to read data directory: %w", err)
	} else if !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a directory", dir)
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	sort.Strings(paths)
	for _, p := range paths {
		s, err := ParseScene(p)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		scenes = append(scenes, s)
	}
	return scenes, skipped, nil
}

// ByYear groups scenes by year, keeping their order.
func ByYear(scenes []Scene) map[int][]Scene {
	out := make(map[int][]Scene)
	for _, s := range scenes {
		out[s.Year] = append(out[s.Year], s)
	}
	return out
}
