package chain

import (
	"strings"
	"time"
)

// Name is the normalized chain identifier used as the dedup and lookup
// key across the whole pipeline. Build one with Normalize, never by
// casting raw input.
type Name string

// Normalize folds a raw trigger value into a Name: trimmed, lowercased,
// inner whitespace collapsed to single spaces.
func Normalize(raw string) Name {
	return Name(strings.Join(strings.Fields(strings.ToLower(raw)), " "))
}

func (n Name) String() string { return string(n) }

func (n Name) Empty() bool { return n == "" }

// Slug is the URL-path form of a Name used by slug-addressed providers.
func (n Name) Slug() string {
	return strings.ReplaceAll(string(n), " ", "-")
}

// Output field keys. These double as the sheet column names and as the
// keys of Canonical.Sources.
const (
	FieldChainID        = "chain_id"
	FieldSymbol         = "symbol"
	FieldNativeToken    = "native_token"
	FieldTVL            = "tvl_usd"
	FieldDailyVolume    = "daily_volume_usd"
	FieldGasPriceGwei   = "gas_price_gwei"
	FieldMinGasPrice    = "min_gas_price"
	FieldMaxGasPrice    = "max_gas_price"
	FieldBlockTimeMS    = "block_time_ms"
	FieldFinalityBlocks = "finality_blocks"
	FieldEIP1559        = "eip1559_supported"
	FieldRPCURLs        = "rpc_urls"
	FieldWSSURLs        = "wss_urls"
	FieldExplorerURL    = "explorer_url"
	FieldRPCHealthy     = "rpc_healthy"
	FieldRPCLatencyMS   = "rpc_latency_ms"
	FieldHealthStatus   = "health_status"
	FieldIsActive       = "is_active"
)

// Synthetic source tags for fields no provider supplied directly.
const (
	SourceFallback = "fallback"
	SourceDerived  = "derived"
)

// Health status values derived at merge time.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)

// Partial is the output of a single provider for one Name. Fields a
// provider did not supply are nil (or nil slices), so a present zero is
// distinguishable from absent.
type Partial struct {
	Provider  string
	FetchedAt time.Time

	ChainID        *int64
	Symbol         *string
	NativeToken    *string
	TVL            *float64
	DailyVolume    *float64
	GasPriceGwei   *float64
	MinGasPrice    *float64
	MaxGasPrice    *float64
	BlockTimeMS    *int64
	FinalityBlocks *int64
	EIP1559        *bool
	RPCURLs        []string
	WSSURLs        []string
	ExplorerURL    *string
	RPCHealthy     *bool
	RPCLatencyMS   *int64
}

// Canonical is the merged record for one Name. Sources tags every
// present field with the provider it came from; Completeness is the
// fraction of configured providers that contributed successfully.
type Canonical struct {
	Name Name `json:"name"`

	ChainID        *int64   `json:"chainId,omitempty"`
	Symbol         *string  `json:"symbol,omitempty"`
	NativeToken    *string  `json:"nativeToken,omitempty"`
	TVL            *float64 `json:"tvlUsd,omitempty"`
	DailyVolume    *float64 `json:"dailyVolumeUsd,omitempty"`
	GasPriceGwei   *float64 `json:"gasPriceGwei,omitempty"`
	MinGasPrice    *float64 `json:"minGasPrice,omitempty"`
	MaxGasPrice    *float64 `json:"maxGasPrice,omitempty"`
	BlockTimeMS    *int64   `json:"blockTimeMs,omitempty"`
	FinalityBlocks *int64   `json:"finalityBlocks,omitempty"`
	EIP1559        *bool    `json:"eip1559Supported,omitempty"`
	RPCURLs        []string `json:"rpcUrls,omitempty"`
	WSSURLs        []string `json:"wssUrls,omitempty"`
	ExplorerURL    *string  `json:"explorerUrl,omitempty"`
	RPCHealthy     *bool    `json:"rpcHealthy,omitempty"`
	RPCLatencyMS   *int64   `json:"rpcLatencyMs,omitempty"`
	HealthStatus   string   `json:"healthStatus,omitempty"`
	IsActive       *bool    `json:"isActive,omitempty"`

	Completeness   float64           `json:"completeness"`
	Sources        map[string]string `json:"sources"`
	LastResolvedAt time.Time         `json:"lastResolvedAt"`
}

// Pointer helpers for building records.
func Int64(v int64) *int64       { return &v }
func Float64(v float64) *float64 { return &v }
func String(v string) *string    { return &v }
func Bool(v bool) *bool          { return &v }

// chainIDFallback and nativeTokenFallback cover the well-known chains
// the sheet ships seeded with, applied when no provider supplied the
// field.
var chainIDFallback = map[Name]int64{
	"ethereum":  1,
	"polygon":   137,
	"bsc":       56,
	"arbitrum":  42161,
	"optimism":  10,
	"avalanche": 43114,
	"fantom":    250,
	"base":      8453,
	"gnosis":    100,
	"celo":      42220,
}

var nativeTokenFallback = map[Name]string{
	"ethereum":  "ETH",
	"polygon":   "MATIC",
	"bsc":       "BNB",
	"arbitrum":  "ETH",
	"optimism":  "ETH",
	"avalanche": "AVAX",
	"fantom":    "FTM",
	"base":      "ETH",
	"gnosis":    "xDAI",
	"celo":      "CELO",
}
