package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/imagingearth/phenology/internal/cache"
	"github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

type DailyData struct {
	Time        []string   `json:"time"`
	Temperature []*float64 `json:"temperature_2m_mean"`
}

type WeatherResponse struct {
	Daily DailyData `json:"daily"`
}

// Series is a daily mean temperature series in degrees Celsius. Days the
// archive has no value for are NaN.
type Series struct {
	Dates   []time.Time
	Celsius []float64
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Cache   *cache.FileCache[DailyData]
	Retries int
	Backoff time.Duration
	Log     logrus.FieldLogger
}

func NewClient(baseURL string, fc *cache.FileCache[DailyData], log logrus.FieldLogger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: time.Minute},
		Cache:   fc,
		Retries: 3,
		Backoff: 10 * time.Second,
		Log:     log,
	}
}

// FetchDailyTemperature returns the daily mean 2 m temperature at a point
// for the inclusive date range.
func (c *Client) FetchDailyTemperature(ctx context.Context, latitude, longitude float64, start, end time.Time) (Series, error) {
	var key string
	if c.Cache != nil {
		key = c.Cache.GenerateKey("temperature", latitude, longitude, start.Format(dateLayout), end.Format(dateLayout))
		if daily, ok := c.Cache.Get(key); ok {
			return toSeries(daily)
		}
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(latitude, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(longitude, 'f', 6, 64))
	params.Set("start_date", start.Format(dateLayout))
	params.Set("end_date", end.Format(dateLayout))
	params.Set("daily", "temperature_2m_mean")
	params.Set("timezone", "UTC")
	reqURL := c.BaseURL + "?" + params.Encode()

	retries := max(c.Retries, 1)
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			c.Log.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"error":   lastErr,
			}).Warn("retrying weather request")
			select {
			case <-ctx.Done():
				return Series{}, ctx.Err()
			case <-time.After(c.Backoff * time.Duration(attempt)):
			}
		}

		daily, retry, err := c.get(ctx, reqURL)
		if err == nil {
			if c.Cache != nil {
				if err := c.Cache.Set(key, daily); err != nil {
					c.Log.WithError(err).Warn("failed to cache weather response")
				}
			}
			return toSeries(daily)
		}
		if !retry {
			return Series{}, err
		}
		lastErr = err
	}
	return Series{}, fmt.Errorf("failed to retrieve weather after %d attempts: %w", retries, lastErr)
}

func (c *Client) get(ctx context.Context, reqURL string) (DailyData, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return DailyData{}, false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return DailyData{}, ctx.Err() == nil, fmt.Errorf("failed to retrieve weather: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return DailyData{}, true, fmt.Errorf("weather archive returned status %d", resp.StatusCode)
	default:
		return DailyData{}, false, fmt.Errorf("weather archive returned status %d", resp.StatusCode)
	}

	var weatherData WeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&weatherData); err != nil {
		return DailyData{}, false, fmt.Errorf("failed to parse weather response: %w", err)
	}
	return weatherData.Daily, false, nil
}

func toSeries(daily DailyData) (Series, error) {
	if len(daily.Time) != len(daily.Temperature) {
		return Series{}, fmt.Errorf("weather response has %d dates and %d temperatures", len(daily.Time), len(daily.Temperature))
	}
	s := Series{
		Dates:   make([]time.Time, len(daily.Time)),
		Celsius: make([]float64, len(daily.Time)),
	}
	for i, date := range daily.Time {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return Series{}, fmt.Errorf("failed to parse date: %w", err)
		}
		s.Dates[i] = parsed
		if t := daily.Temperature[i]; t != nil {
			s.Celsius[i] = *t
		} else {
			s.Celsius[i] = math.NaN()
		}
	}
	return s, nil
}
