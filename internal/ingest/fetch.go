package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/planmatter/heritage-cli/internal/resilience"
)

const defaultUserAgent = "heritage-cli/1.0"

// Fetcher downloads dataset documents with rate limiting and retry. The
// upstream open-data portals throttle aggressively, so every request
// waits on the limiter first.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	userAgent string
}

// NewFetcher creates a Fetcher allowing ratePerSec requests per second.
func NewFetcher(ratePerSec float64) *Fetcher {
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 4
	retry.InitialBackoff = time.Second
	retry.MaxBackoff = 30 * time.Second
	retry.OnRetry = resilience.RetryLogger("ingest", "fetch")
	return &Fetcher{
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), 1),
		retry:     retry,
		userAgent: defaultUserAgent,
	}
}

// FetchJSON downloads url and decodes the body into v. Throttling (429)
// and server errors are retried with backoff; client errors are not.
func (f *Fetcher) FetchJSON(ctx context.Context, url string, v any) error {
	body, err := f.fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return eris.Wrapf(err, "ingest: decode %s", url)
	}
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) ([]byte, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ingest: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: build request %s", url)
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "ingest: fetch %s", url), 0)
		}
		defer func() { _ = resp.Body.Close() }()

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("ingest: http %d from %s", resp.StatusCode, url),
				resp.StatusCode,
			)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("ingest: http %d from %s", resp.StatusCode, url)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "ingest: read body %s", url), 0)
		}
		return body, nil
	})
}
