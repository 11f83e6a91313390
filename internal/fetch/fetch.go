// Package fetch retrieves an artifact from an HTTP(S) URL into a local
// destination directory, with an exponential backoff retry policy (1s,
// 2s, 4s, ... capped at 60s) and a temp-then-rename download shape so a
// failed transfer never leaves a partial file at the final path.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pgspin/internal/fsutil"
	"pgspin/internal/logger"
)

// retryableStatus mirrors the set of transient HTTP failures worth
// retrying: request timeout, too many requests, and the 5xx family most
// load balancers emit during a rolling deploy.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusLocked:              true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryPolicy configures Downloader's backoff behavior.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OnRetry, if set, is called before each retry sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns the standard 6-attempt, 1s-to-60s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   1 * time.Second,
		MaxDelay:    60 * time.Second,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Downloader retrieves artifacts over HTTP(S).
type Downloader struct {
	client *http.Client
	fs     *fsutil.OS
	log    logger.Logger
	retry  RetryPolicy
}

// New constructs a Downloader. client may be nil to use http.DefaultClient.
func New(client *http.Client, log logger.Logger, retry RetryPolicy) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client, fs: fsutil.New(), log: log, retry: retry}
}

// Result describes a completed download.
type Result struct {
	LocalPath string
	Size      int64
}

// Download fetches sourceURL into destDir, using destFilename if given or
// the URL's basename otherwise. If force is false and the destination
// already exists, the download is skipped.
func (d *Downloader) Download(ctx context.Context, sourceURL, destDir, destFilename string, force bool) (Result, error) {
	if destFilename == "" {
		destFilename = filepath.Base(sourceURL)
	}
	destFilename = fsutil.ConvertToValidFilename(destFilename)
	destPath := filepath.Join(destDir, destFilename)

	if !force {
		if info, err := os.Stat(destPath); err == nil {
			return Result{LocalPath: destPath, Size: info.Size()}, nil
		}
	}

	if err := d.fs.EnsureDirectory(destDir); err != nil {
		return Result{}, fmt.Errorf("fetch: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		size, err := d.attempt(ctx, sourceURL, destPath)
		if err == nil {
			return Result{LocalPath: destPath, Size: size}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if !isRetryable(err) || attempt == d.retry.MaxAttempts {
			break
		}

		delay := d.retry.delay(attempt)
		if d.retry.OnRetry != nil {
			d.retry.OnRetry(attempt, delay, err)
		}
		if d.log != nil {
			d.log.Warn("download attempt failed, retrying", "url", sourceURL, "attempt", attempt, "delay", delay, "error", err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return Result{}, fmt.Errorf("fetch: %s: %w", sourceURL, lastErr)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

func isRetryable(err error) bool {
	se, ok := err.(*statusError)
	if !ok {
		// Network-level errors (timeouts, connection resets) are always
		// worth a retry.
		return true
	}
	return retryableStatus[se.code]
}

func (d *Downloader) attempt(ctx context.Context, sourceURL, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch: build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &statusError{code: resp.StatusCode}
	}

	tmpPath := destPath + ".part"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("fetch: create temp file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("fetch: write body: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("fetch: close temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("fetch: rename to %s: %w", destPath, err)
	}
	return written, nil
}
