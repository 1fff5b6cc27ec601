package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// Point is a location to sample composites at.
type Point struct {
	ID  string  `csv:"id"`
	Lon float64 `csv:"lon"`
	Lat float64 `csv:"lat"`
}

// Sample is one month of one point: the composite value and the
// accumulated growing degree days at the end of that month.
type Sample struct {
	ID    string  `csv:"id"`
	Lon   float64 `csv:"lon"`
	Lat   float64 `csv:"lat"`
	Month int     `csv:"month"`
	AGDD  float64 `csv:"agdd"`
	NDVI  float64 `csv:"ndvi"`
}

// FitRow is the fit of one point's samples.
type FitRow struct {
	ID          string  `csv:"id"`
	Lon         float64 `csv:"lon"`
	Lat         float64 `csv:"lat"`
	Model       string  `csv:"model"`
	Orientation string  `csv:"orientation"`
	Status      string  `csv:"status"`
	Samples     int     `csv:"samples"`
	RMSE        float64 `csv:"rmse"`
	Params      string  `csv:"params"`
	Error       string  `csv:"error"`
}

func ReadPoints(path string) ([]Point, error) {
	var rows []Point
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func ReadSamples(path string) ([]Sample, error) {
	var rows []Sample
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func WriteSamples(path string, rows []Sample) error {
	return writeCSV(path, &rows)
}

func WriteFitResults(path string, rows []FitRow) error {
	return writeCSV(path, &rows)
}

func readCSV(path string, out interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := gocsv.UnmarshalFile(file, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeCSV(path string, in interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.partial")
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(in, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
