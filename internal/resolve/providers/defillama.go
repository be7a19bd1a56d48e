package providers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/web3-frozen/chainsync/internal/cache"
	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/resolve"
)

const (
	defillamaAPI       = "https://api.llama.fi"
	defillamaRateLimit = 5 // requests per second
	defillamaIndexKey  = "defillama:chains:index"

	// Daily volume is approximated from the TVL movement between the
	// two most recent history points.
	volumeTVLFactor = 0.1
)

type llamaChain struct {
	Name        string   `json:"name"`
	ChainID     *int64   `json:"chainId"`
	GeckoID     string   `json:"gecko_id"`
	TokenSymbol *string  `json:"tokenSymbol"`
	TVL         *float64 `json:"tvl"`
}

type llamaTVLPoint struct {
	Date int64   `json:"date"`
	TVL  float64 `json:"tvl"`
}

// DefiLlama resolves via the two-step index lookup: fetch the full
// chain index, match the requested name against it, then fetch the
// matched entry's TVL history under the provider's own key.
type DefiLlama struct {
	client  *http.Client
	baseURL string
	limiter ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	index   *cache.Cache
}

// NewDefiLlama builds the client. baseURL overrides the public API
// host (staging, tests); idx may be nil to disable index caching.
func NewDefiLlama(baseURL string, idx *cache.Cache) *DefiLlama {
	if baseURL == "" {
		baseURL = defillamaAPI
	}
	return &DefiLlama{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		limiter: ratelimit.New(defillamaRateLimit),
		breaker: newBreaker("defillama"),
		index:   idx,
	}
}

func (d *DefiLlama) Name() string { return "defillama" }

func (d *DefiLlama) Resolve(ctx context.Context, name chain.Name) (*chain.Partial, error) {
	index, err := d.chainIndex(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := matchChain(index, name)
	if !ok {
		return nil, resolve.NewError(d.Name(), resolve.ErrNotFound, "no index entry matches "+name.String())
	}

	p := &chain.Partial{
		Provider:  d.Name(),
		FetchedAt: time.Now().UTC(),
		ChainID:   entry.ChainID,
		Symbol:    entry.TokenSymbol,
		TVL:       entry.TVL,
	}

	// Volume is optional enrichment; a failed history fetch does not
	// fail the resolution.
	if points, err := d.history(ctx, entry.Name); err == nil && len(points) >= 2 {
		prev, last := points[len(points)-2].TVL, points[len(points)-1].TVL
		p.DailyVolume = chain.Float64(math.Abs(last-prev) * volumeTVLFactor)
	}

	return p, nil
}

// chainIndex returns the provider's chain list, served from Redis when
// a fresh copy is cached.
func (d *DefiLlama) chainIndex(ctx context.Context) ([]llamaChain, error) {
	var index []llamaChain

	if d.index != nil {
		if body, ok := d.index.Get(ctx, defillamaIndexKey); ok {
			if err := json.Unmarshal(body, &index); err == nil {
				return index, nil
			}
			// Unusable cache entry: fall through to a live fetch.
		}
	}

	body, err := fetchBytes(ctx, d.Name(), d.client, d.limiter, d.breaker, d.baseURL+"/v2/chains")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, resolve.WrapError(d.Name(), resolve.ErrMalformed, err)
	}

	if d.index != nil {
		d.index.Set(ctx, defillamaIndexKey, body)
	}
	return index, nil
}

func (d *DefiLlama) history(ctx context.Context, providerKey string) ([]llamaTVLPoint, error) {
	var points []llamaTVLPoint
	u := d.baseURL + "/v2/historicalChainTvl/" + url.PathEscape(providerKey)
	if err := fetchJSON(ctx, d.Name(), d.client, d.limiter, d.breaker, u, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// matchChain resolves a human name against the index: an exact
// case-insensitive match on name, coin id, or numeric chain id wins;
// otherwise the first entry in index order whose name contains the
// query.
func matchChain(index []llamaChain, name chain.Name) (llamaChain, bool) {
	q := name.String()

	for _, c := range index {
		if strings.ToLower(c.Name) == q || strings.ToLower(c.GeckoID) == q {
			return c, true
		}
		if c.ChainID != nil && strconv.FormatInt(*c.ChainID, 10) == q {
			return c, true
		}
	}
	for _, c := range index {
		if strings.Contains(strings.ToLower(c.Name), q) {
			return c, true
		}
	}
	return llamaChain{}, false
}
