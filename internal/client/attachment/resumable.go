package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ozolins/attachup/internal/common"
	"github.com/ozolins/attachup/internal/logging"
)

const (
	// maxSessionOpenAttempts bounds connectivity retries of the
	// session-open step (total attempts, no inter-attempt delay).
	maxSessionOpenAttempts = 4

	// maxUploadAttempts bounds connectivity retries of the PUT step.
	maxUploadAttempts = 16

	// uploadRetryDelay is the fixed wait before re-attempting a failed PUT.
	// It gives the origin time to durably persist partially received bytes
	// before a progress probe is trusted.
	uploadRetryDelay = 3 * time.Second

	// TotalLengthHeader declares the full payload size at session open.
	// Go's transport owns the Content-Length of the request itself, so the
	// declared total rides a dedicated header.
	TotalLengthHeader = "X-Upload-Content-Length"
)

// sleepCtx is a seam for testing the inter-retry delay.
var sleepCtx = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ResultV3 is the outcome of a successful resumable upload.
type ResultV3 struct {
	StorageKey  string
	CDN         int
	CompletedAt time.Time
}

// ResumableUploader implements the v3 protocol: open a signed resumable
// session, PUT the payload (resuming from a probed byte offset after an
// interruption), and retry connectivity failures with a fixed delay up to a
// bounded number of attempts.
type ResumableUploader struct {
	client *http.Client
	log    logging.Logger

	retryDelay time.Duration
}

func NewResumableUploader(client *http.Client, log logging.Logger) *ResumableUploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &ResumableUploader{client: client, log: log, retryDelay: uploadRetryDelay}
}

// openSession opens the resumable session named by the form. Success is
// exactly HTTP 201 with a parseable Location header; connectivity failures
// are retried up to maxSessionOpenAttempts with no delay.
func (u *ResumableUploader) openSession(ctx context.Context, form *FormV3, total int64) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= maxSessionOpenAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, form.SignedUploadLocation, nil)
		if err != nil {
			return "", err
		}
		for k, v := range form.Headers {
			req.Header.Set(k, v)
		}
		req.Header.Set(TotalLengthHeader, strconv.FormatInt(total, 10))
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := u.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %w", common.ErrConnectivity, err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			return "", fmt.Errorf("%w: session open returned %s", common.ErrInvalidSessionResponse, resp.Status)
		}
		location := resp.Header.Get("Location")
		if _, err := url.ParseRequestURI(location); err != nil || location == "" {
			return "", fmt.Errorf("%w: bad session location %q", common.ErrInvalidSessionResponse, location)
		}
		return location, nil
	}

	return "", lastErr
}

// ResolveProgress probes an open resumable session for how many bytes the
// origin has durably received. Any response other than a well-formed 308 with
// "Range: bytes=0-N" resolves to zero: resuming from scratch is always safe,
// whereas guessing wrong would corrupt the transfer. The error return is
// reserved for transport failures where no response was received at all.
func (u *ResumableUploader) ResolveProgress(ctx context.Context, sessionURL string, total int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrConnectivity, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusPermanentRedirect {
		return 0, nil
	}
	return parseRangeProgress(resp.Header.Get("Range")), nil
}

// parseRangeProgress extracts the received byte count from a 308 Range
// header of the exact form "bytes=0-N". N is the inclusive index of the last
// byte received, so the count is N+1. Any deviation falls back to zero.
func parseRangeProgress(header string) int64 {
	rest, ok := strings.CutPrefix(header, "bytes=0-")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n + 1
}

// Upload transfers the ciphertext through the form's resumable session.
// Progress callbacks report fractions of the bytes sent in the current
// attempt only.
func (u *ResumableUploader) Upload(ctx context.Context, ciphertext []byte, form *FormV3, progress ProgressFunc) (*ResultV3, error) {
	total := int64(len(ciphertext))

	sessionURL, err := u.openSession(ctx, form, total)
	if err != nil {
		return nil, err
	}

	var lastErr error

	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var alreadySent int64
		if attempt > 1 {
			alreadySent, err = u.ResolveProgress(ctx, sessionURL, total)
			if err != nil {
				// The probe never reached the origin; count it as this
				// attempt's connectivity failure.
				lastErr = err
				if werr := u.waitRetry(ctx, attempt); werr != nil {
					return nil, werr
				}
				continue
			}
		}

		if alreadySent > total {
			return nil, fmt.Errorf("%w: origin reports %d bytes received of %d total",
				common.ErrProtocolViolation, alreadySent, total)
		}
		if alreadySent == total {
			return u.finish(ctx, form)
		}

		err = u.putRange(ctx, sessionURL, ciphertext, alreadySent, progress)
		if err == nil {
			return u.finish(ctx, form)
		}
		if !isConnectivity(err) {
			return nil, err
		}

		lastErr = err
		if u.log != nil {
			u.log.Warn(ctx, "resumable upload attempt failed", "attempt", attempt, "error", err)
		}
		if werr := u.waitRetry(ctx, attempt); werr != nil {
			return nil, werr
		}
	}

	return nil, fmt.Errorf("%w: %w", common.ErrExhaustedRetries, lastErr)
}

// waitRetry sleeps the fixed inter-retry delay unless the budget is already
// spent (the final attempt's failure surfaces without a trailing wait).
func (u *ResumableUploader) waitRetry(ctx context.Context, attempt int) error {
	if attempt >= maxUploadAttempts {
		return nil
	}
	return sleepCtx(ctx, u.retryDelay)
}

// putRange sends the byte suffix [alreadySent, total) to the session URL.
func (u *ResumableUploader) putRange(ctx context.Context, sessionURL string, ciphertext []byte, alreadySent int64, progress ProgressFunc) error {
	total := int64(len(ciphertext))
	remaining := total - alreadySent

	body := newProgressReader(bytes.NewReader(ciphertext[alreadySent:]), remaining, progress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, body)
	if err != nil {
		return err
	}
	req.ContentLength = remaining
	if alreadySent > 0 {
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", alreadySent, total-1, total))
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: put returned %s: %s", common.ErrInvalidSessionResponse, resp.Status, string(data))
	}
	return nil
}

func (u *ResumableUploader) finish(ctx context.Context, form *FormV3) (*ResultV3, error) {
	res := &ResultV3{StorageKey: form.Key, CDN: form.CDN, CompletedAt: time.Now().Truncate(time.Millisecond)}
	if u.log != nil {
		u.log.Info(ctx, "resumable upload complete", "key", res.StorageKey, "cdn", res.CDN)
	}
	return res, nil
}
