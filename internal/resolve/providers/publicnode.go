package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/web3-frozen/chainsync/internal/chain"
)

const (
	publicnodeAPI       = "https://chains.publicnode.com"
	publicnodeRateLimit = 10 // requests per second
)

type publicnodeGas struct {
	GasPriceGwei   *float64 `json:"gas_price_gwei"`
	MinGasPrice    *float64 `json:"min_gas_price"`
	MaxGasPrice    *float64 `json:"max_gas_price"`
	BlockTimeMS    *int64   `json:"block_time_ms"`
	FinalityBlocks *int64   `json:"finality_blocks"`
	EIP1559        *bool    `json:"eip1559_supported"`
}

type publicnodeDoc struct {
	ChainID     *int64         `json:"chain_id"`
	NativeToken *string        `json:"native_token"`
	RPCURLs     []string       `json:"rpc_urls"`
	WSSURLs     []string       `json:"wss_urls"`
	Explorer    *string        `json:"explorer"`
	Gas         *publicnodeGas `json:"gas"`
}

// Publicnode resolves via a slug-addressed per-chain document carrying
// the endpoint inventory and the gas/technical block. With a prober
// configured it verifies the first HTTP RPC endpoint and reports
// health and latency alongside the document fields.
type Publicnode struct {
	client  *http.Client
	baseURL string
	limiter ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	prober  EndpointProber
}

func NewPublicnode(baseURL string, prober EndpointProber) *Publicnode {
	if baseURL == "" {
		baseURL = publicnodeAPI
	}
	return &Publicnode{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		limiter: ratelimit.New(publicnodeRateLimit),
		breaker: newBreaker("publicnode"),
		prober:  prober,
	}
}

func (p *Publicnode) Name() string { return "publicnode" }

func (p *Publicnode) Resolve(ctx context.Context, name chain.Name) (*chain.Partial, error) {
	var doc publicnodeDoc
	u := p.baseURL + "/configs/" + name.Slug() + ".json"
	if err := fetchJSON(ctx, p.Name(), p.client, p.limiter, p.breaker, u, &doc); err != nil {
		return nil, err
	}

	rec := &chain.Partial{
		Provider:    p.Name(),
		FetchedAt:   time.Now().UTC(),
		ChainID:     doc.ChainID,
		NativeToken: doc.NativeToken,
		RPCURLs:     doc.RPCURLs,
		WSSURLs:     doc.WSSURLs,
		ExplorerURL: doc.Explorer,
	}
	if g := doc.Gas; g != nil {
		rec.GasPriceGwei = g.GasPriceGwei
		rec.MinGasPrice = g.MinGasPrice
		rec.MaxGasPrice = g.MaxGasPrice
		rec.BlockTimeMS = g.BlockTimeMS
		rec.FinalityBlocks = g.FinalityBlocks
		rec.EIP1559 = g.EIP1559
	}

	if p.prober != nil && len(doc.RPCURLs) > 0 {
		if res, err := p.prober.Check(ctx, doc.RPCURLs[0]); err == nil {
			rec.RPCHealthy = chain.Bool(res.Healthy)
			rec.RPCLatencyMS = chain.Int64(res.LatencyMS)
		} else {
			rec.RPCHealthy = chain.Bool(false)
		}
	}

	return rec, nil
}
