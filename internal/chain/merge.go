package chain

import (
	"sort"
	"time"
)

// Attempt is one provider's terminal outcome within a resolution round.
// Exactly one of Record/Err is meaningful: Err nil means Record holds
// the provider's partial result.
type Attempt struct {
	Provider string
	Record   *Partial
	Err      error
}

func (a Attempt) ok() bool { return a.Err == nil && a.Record != nil }

// Merge combines the attempts of one resolution round into a Canonical
// record. Precedence is field-level: the provider with the highest rank
// wins, ties go to the most recent FetchedAt. Fields nobody supplied
// are omitted, never zero-filled. Deterministic for a fixed input set:
// resolvedAt is an input, not a clock read.
//
// A round with zero successes yields a record carrying only
// Completeness and LastResolvedAt, so committing it can never disturb
// previously good output fields.
func Merge(name Name, attempts []Attempt, ranks map[string]int, resolvedAt time.Time) *Canonical {
	c := &Canonical{
		Name:           name,
		Sources:        make(map[string]string),
		LastResolvedAt: resolvedAt,
	}

	var ok []*Partial
	for _, a := range attempts {
		if a.ok() {
			ok = append(ok, a.Record)
		}
	}
	if len(attempts) > 0 {
		c.Completeness = float64(len(ok)) / float64(len(attempts))
	}
	if len(ok) == 0 {
		return c
	}

	// Apply lowest rank first so each later partial overwrites the
	// fields it carries; the final writer per field is the highest
	// ranked, newest, contributor.
	sort.SliceStable(ok, func(i, j int) bool {
		ri, rj := ranks[ok[i].Provider], ranks[ok[j].Provider]
		if ri != rj {
			return ri < rj
		}
		if !ok[i].FetchedAt.Equal(ok[j].FetchedAt) {
			return ok[i].FetchedAt.Before(ok[j].FetchedAt)
		}
		return ok[i].Provider < ok[j].Provider
	})
	for _, p := range ok {
		apply(c, p)
	}

	fillFallbacks(c)
	derive(c)
	return c
}

func apply(c *Canonical, p *Partial) {
	if p.ChainID != nil {
		c.ChainID = p.ChainID
		c.Sources[FieldChainID] = p.Provider
	}
	if p.Symbol != nil {
		c.Symbol = p.Symbol
		c.Sources[FieldSymbol] = p.Provider
	}
	if p.NativeToken != nil {
		c.NativeToken = p.NativeToken
		c.Sources[FieldNativeToken] = p.Provider
	}
	if p.TVL != nil {
		c.TVL = p.TVL
		c.Sources[FieldTVL] = p.Provider
	}
	if p.DailyVolume != nil {
		c.DailyVolume = p.DailyVolume
		c.Sources[FieldDailyVolume] = p.Provider
	}
	if p.GasPriceGwei != nil {
		c.GasPriceGwei = p.GasPriceGwei
		c.Sources[FieldGasPriceGwei] = p.Provider
	}
	if p.MinGasPrice != nil {
		c.MinGasPrice = p.MinGasPrice
		c.Sources[FieldMinGasPrice] = p.Provider
	}
	if p.MaxGasPrice != nil {
		c.MaxGasPrice = p.MaxGasPrice
		c.Sources[FieldMaxGasPrice] = p.Provider
	}
	if p.BlockTimeMS != nil {
		c.BlockTimeMS = p.BlockTimeMS
		c.Sources[FieldBlockTimeMS] = p.Provider
	}
	if p.FinalityBlocks != nil {
		c.FinalityBlocks = p.FinalityBlocks
		c.Sources[FieldFinalityBlocks] = p.Provider
	}
	if p.EIP1559 != nil {
		c.EIP1559 = p.EIP1559
		c.Sources[FieldEIP1559] = p.Provider
	}
	if p.RPCURLs != nil {
		c.RPCURLs = p.RPCURLs
		c.Sources[FieldRPCURLs] = p.Provider
	}
	if p.WSSURLs != nil {
		c.WSSURLs = p.WSSURLs
		c.Sources[FieldWSSURLs] = p.Provider
	}
	if p.ExplorerURL != nil {
		c.ExplorerURL = p.ExplorerURL
		c.Sources[FieldExplorerURL] = p.Provider
	}
	if p.RPCHealthy != nil {
		c.RPCHealthy = p.RPCHealthy
		c.Sources[FieldRPCHealthy] = p.Provider
	}
	if p.RPCLatencyMS != nil {
		c.RPCLatencyMS = p.RPCLatencyMS
		c.Sources[FieldRPCLatencyMS] = p.Provider
	}
}

func fillFallbacks(c *Canonical) {
	if c.ChainID == nil {
		if id, okk := chainIDFallback[c.Name]; okk {
			c.ChainID = Int64(id)
			c.Sources[FieldChainID] = SourceFallback
		}
	}
	if c.NativeToken == nil {
		if tok, okk := nativeTokenFallback[c.Name]; okk {
			c.NativeToken = String(tok)
			c.Sources[FieldNativeToken] = SourceFallback
		}
	}
}

// derive computes the two synthesized fields. Probe results take
// precedence over mere URL presence.
func derive(c *Canonical) {
	switch {
	case c.RPCHealthy != nil && *c.RPCHealthy:
		c.HealthStatus = HealthHealthy
	case c.RPCHealthy != nil:
		c.HealthStatus = HealthUnhealthy
	case len(c.RPCURLs) > 0 && len(c.WSSURLs) > 0:
		c.HealthStatus = HealthHealthy
	case len(c.RPCURLs) > 0 || len(c.WSSURLs) > 0:
		c.HealthStatus = HealthDegraded
	default:
		c.HealthStatus = HealthUnknown
	}
	c.Sources[FieldHealthStatus] = SourceDerived

	active := (c.TVL != nil && *c.TVL > 0) || len(c.RPCURLs) > 0
	c.IsActive = Bool(active)
	c.Sources[FieldIsActive] = SourceDerived
}
