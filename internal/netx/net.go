// Package netx fetches media published by the blob store.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrTooLarge = errors.New("response too large")

// newBackOff is a test seam for the retry schedule.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// Download GETs url and returns the body and its Content-Type. Network
// failures and 5xx responses are retried; other statuses fail at once.
// Bodies larger than max bytes fail with ErrTooLarge.
func Download(ctx context.Context, url string, max int64) ([]byte, string, error) {
	var (
		body        []byte
		contentType string
	)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("download failed: %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("download failed: %s", resp.Status))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, max+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > max {
			return backoff.Permanent(fmt.Errorf("%w (limit %d bytes)", ErrTooLarge, max))
		}
		body, contentType = data, resp.Header.Get("Content-Type")
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(newBackOff(), ctx)); err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}
