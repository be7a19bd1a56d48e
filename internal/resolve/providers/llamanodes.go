package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/probe"
)

const (
	llamanodesAPI       = "https://config.llamanodes.com"
	llamanodesRateLimit = 10 // requests per second
)

// EndpointProber health-checks one RPC endpoint. Satisfied by
// probe.HTTPProber and probe.WSProber.
type EndpointProber interface {
	Check(ctx context.Context, url string) (probe.Result, error)
}

type llamanodesDoc struct {
	ChainID *int64   `json:"chain_id"`
	RPCURLs []string `json:"rpc_urls"`
	WSSURLs []string `json:"wss_urls"`
}

// Llamanodes resolves via a per-chain document addressed directly by
// the name's slug, no index step. When a prober is configured it also
// exercises the first websocket endpoint and reports its health and
// latency.
type Llamanodes struct {
	client  *http.Client
	baseURL string
	limiter ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	prober  EndpointProber
}

func NewLlamanodes(baseURL string, prober EndpointProber) *Llamanodes {
	if baseURL == "" {
		baseURL = llamanodesAPI
	}
	return &Llamanodes{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		limiter: ratelimit.New(llamanodesRateLimit),
		breaker: newBreaker("llamanodes"),
		prober:  prober,
	}
}

func (l *Llamanodes) Name() string { return "llamanodes" }

func (l *Llamanodes) Resolve(ctx context.Context, name chain.Name) (*chain.Partial, error) {
	var doc llamanodesDoc
	u := l.baseURL + "/chains/" + name.Slug() + ".json"
	if err := fetchJSON(ctx, l.Name(), l.client, l.limiter, l.breaker, u, &doc); err != nil {
		return nil, err
	}

	p := &chain.Partial{
		Provider:  l.Name(),
		FetchedAt: time.Now().UTC(),
		ChainID:   doc.ChainID,
		RPCURLs:   doc.RPCURLs,
		WSSURLs:   doc.WSSURLs,
	}

	if l.prober != nil && len(doc.WSSURLs) > 0 {
		if res, err := l.prober.Check(ctx, doc.WSSURLs[0]); err == nil {
			p.RPCHealthy = chain.Bool(res.Healthy)
			p.RPCLatencyMS = chain.Int64(res.LatencyMS)
		} else {
			p.RPCHealthy = chain.Bool(false)
		}
	}

	return p, nil
}
