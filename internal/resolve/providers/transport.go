// Package providers holds the concrete metadata provider clients. Each
// variant keeps its own lookup strategy (index-then-detail, slug
// document, page scrape) behind the one resolve.Client contract.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/web3-frozen/chainsync/internal/resolve"
)

const maxResponseBytes = 4 << 20

type httpResult struct {
	status int
	body   []byte
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// fetchBytes performs one rate-limited GET through the provider's
// circuit breaker and maps every failure onto the typed taxonomy. A 404
// is a valid upstream answer (not found), so it neither trips the
// breaker nor counts as transport trouble.
func fetchBytes(ctx context.Context, provider string, client *http.Client, rl ratelimit.Limiter, cb *gobreaker.CircuitBreaker, url string) ([]byte, error) {
	if rl != nil {
		rl.Take()
	}

	do := func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
			return nil, fmt.Errorf("status %d from %s", resp.StatusCode, url)
		}
		return &httpResult{status: resp.StatusCode, body: body}, nil
	}

	var (
		out interface{}
		err error
	)
	if cb != nil {
		out, err = cb.Execute(do)
	} else {
		out, err = do()
	}
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, resolve.WrapError(provider, resolve.ErrTransport, err)
		}
		if ctx.Err() != nil {
			return nil, resolve.WrapError(provider, resolve.ErrTimeout, err)
		}
		return nil, resolve.Classify(provider, err)
	}

	res := out.(*httpResult)
	if res.status == http.StatusNotFound {
		return nil, resolve.NewError(provider, resolve.ErrNotFound, "no entry at "+url)
	}
	return res.body, nil
}

// fetchJSON is fetchBytes plus decode; an undecodable 200 is Malformed.
func fetchJSON(ctx context.Context, provider string, client *http.Client, rl ratelimit.Limiter, cb *gobreaker.CircuitBreaker, url string, v any) error {
	body, err := fetchBytes(ctx, provider, client, rl, cb, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return resolve.WrapError(provider, resolve.ErrMalformed, err)
	}
	return nil
}
