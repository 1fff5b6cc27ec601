// Package fetch downloads product granules into the data directory.
package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// NewTokenClient returns an HTTP client sending token as a bearer token on
// every request, redirects included.
func NewTokenClient(ctx context.Context, token string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

// ReadURLs returns the non-empty, non-comment lines of r.
func ReadURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

type Fetcher struct {
	Client  *http.Client
	Dir     string
	Workers int
	Retries int
	Backoff time.Duration
	Log     logrus.FieldLogger
}

type Report struct {
	Downloaded []string
	Skipped    []string
}

// Fetch downloads every URL whose file is not yet in Dir. A failed URL does
// not stop the others; all failures are returned joined.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) (*Report, error) {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var (
		mu     sync.Mutex
		report = &Report{}
		errs   []error
		g      errgroup.Group
	)
	g.SetLimit(max(f.Workers, 1))
	for _, raw := range urls {
		g.Go(func() error {
			dest, skipped, err := f.fetchOne(ctx, raw)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("%s: %w", raw, err))
				f.Log.WithError(err).WithField("url", raw).Error("download failed")
			case skipped:
				report.Skipped = append(report.Skipped, dest)
			default:
				report.Downloaded = append(report.Downloaded, dest)
				f.Log.WithField("file", dest).Info("downloaded")
			}
			return nil
		})
	}
	g.Wait()
	return report, errors.Join(errs...)
}

func (f *Fetcher) fetchOne(ctx context.Context, raw string) (string, bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", false, fmt.Errorf("no file name in url")
	}
	dest := filepath.Join(f.Dir, name)
	if _, err := os.Stat(dest); err == nil {
		return dest, true, nil
	}

	retries := max(f.Retries, 1)
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(f.Backoff * time.Duration(attempt)):
			}
		}
		retry, err := f.download(ctx, raw, dest)
		if err == nil {
			return dest, false, nil
		}
		if !retry {
			return "", false, err
		}
		lastErr = err
		f.Log.WithFields(logrus.Fields{"url": raw, "attempt": attempt + 1}).WithError(err).Warn("retrying download")
	}
	return "", false, fmt.Errorf("failed after %d attempts: %w", retries, lastErr)
}

func (f *Fetcher) download(ctx context.Context, raw, dest string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return false, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.partial")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return true, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	return false, nil
}
