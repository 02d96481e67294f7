package source

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// defaultHTTPTimeout bounds a single request.
	defaultHTTPTimeout = 30 * time.Second

	// defaultHTTPRetries is the HTTP-layer retry count, independent of and
	// uncoordinated with the pack-level retry in the manager.
	defaultHTTPRetries = 2

	// maxDownloadSize caps a fetched archive or API response.
	maxDownloadSize = 50 << 20 // 50 MiB

	userAgent = "agentpack/1.0"
)

// httpClient wraps net/http with bounded timeouts and a small retry count
// with exponential backoff. 404 maps to NOT_FOUND; other non-2xx statuses
// come back as NETWORK errors carrying the status code.
type httpClient struct {
	client  *http.Client
	retries uint64
	headers map[string]string
	logger  zerolog.Logger
}

func newHTTPClient(headers map[string]string) *httpClient {
	return &httpClient{
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		retries: defaultHTTPRetries,
		headers: headers,
		logger:  logging.GetLogger("source.http"),
	}
}

func (c *httpClient) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrapf(err, errors.ErrInvalidInput, "invalid request URL %s", url))
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

// get fetches a URL, retrying transient failures.
func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	op := func() error {
		resp, err := c.do(ctx, http.MethodGet, url)
		if err != nil {
			return errors.Wrapf(err, errors.ErrNetwork, "request to %s failed", url)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(errors.Newf(errors.ErrNotFound, "resource not found: %s", url).
				WithDetail("status", resp.StatusCode))
		case resp.StatusCode >= 500:
			c.logger.Debug().Int("status", resp.StatusCode).Str("url", url).Msg("Server error, will retry")
			return errors.Newf(errors.ErrNetwork, "request to %s failed with status %d", url, resp.StatusCode).
				WithDetail("status", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(errors.Newf(errors.ErrNetwork, "request to %s failed with status %d", url, resp.StatusCode).
				WithDetail("status", resp.StatusCode))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
		if err != nil {
			return errors.Wrapf(err, errors.ErrNetwork, "failed to read response from %s", url)
		}
		if len(body) > maxDownloadSize {
			return backoff.Permanent(errors.Newf(errors.ErrInvalidInput, "response from %s exceeds download size limit", url))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return body, nil
}

// head issues a HEAD request, returning the status code without retrying.
func (c *httpClient) head(ctx context.Context, url string) (int, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrNetwork, "request to %s failed", url)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
