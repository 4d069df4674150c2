package modelload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Fetcher materializes a model's weight file under dir, reporting progress
// in [0,1] as it goes.
type Fetcher interface {
	Fetch(ctx context.Context, model Model, dir string, progress func(float64)) error
}

// HTTPFetcher downloads weights over HTTP with transient-failure retries.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher with no transport timeout; downloads are
// long-running and bounded by ctx instead.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 0}}
}

// Fetch implements Fetcher. A weight file already on disk short-circuits to
// success with full progress.
func (f *HTTPFetcher) Fetch(ctx context.Context, model Model, dir string, progress func(float64)) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}
	dest := filepath.Join(dir, model.FileName)
	if info, err := os.Stat(dest); err == nil && !info.IsDir() && info.Size() > 0 {
		progress(1)
		return nil
	}

	attempt := func() error {
		return f.download(ctx, model, dest, progress)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(attempt, b); err != nil {
		return fmt.Errorf("download %s: %w", model.ID, err)
	}
	return nil
}

func (f *HTTPFetcher) download(ctx context.Context, model Model, dest string, progress func(float64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, model.URL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d fetching %s", resp.StatusCode, model.URL)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	// Download into a temp file and rename so a partial download never looks
	// like an installed model.
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	total := resp.ContentLength
	if total <= 0 {
		total = model.ParamBytes
	}
	var written int64
	buf := make([]byte, 1<<20)
	lastReport := time.Now()
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return backoff.Permanent(werr)
			}
			written += int64(n)
			if total > 0 && time.Since(lastReport) > 200*time.Millisecond {
				progress(float64(written) / float64(total))
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			return readErr
		}
	}
	if err := tmp.Close(); err != nil {
		return backoff.Permanent(err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return backoff.Permanent(err)
	}
	progress(1)
	return nil
}
