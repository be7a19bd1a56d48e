package sheet

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/web3-frozen/chainsync/internal/chain"
)

var commitTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryTriggers(t *testing.T) {
	m := NewMemory("ethereum", "", "polygon")

	rows, err := m.Triggers(context.Background())
	if err != nil {
		t.Fatalf("Triggers error: %v", err)
	}
	want := []Row{{ID: 1, Name: "ethereum"}, {ID: 2, Name: ""}, {ID: 3, Name: "polygon"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Triggers = %v, want %v", rows, want)
	}
}

func TestMemorySetTrigger(t *testing.T) {
	m := NewMemory("", "")
	m.SetTrigger(2, "Polygon")

	got, err := m.ReadTrigger(context.Background(), 2)
	if err != nil {
		t.Fatalf("ReadTrigger error: %v", err)
	}
	if got != "Polygon" {
		t.Errorf("ReadTrigger = %q, want Polygon", got)
	}
}

func TestMemoryRowByName(t *testing.T) {
	m := NewMemory("Ethereum", "  POLYGON  ")

	id, ok, err := m.RowByName(context.Background(), "polygon")
	if err != nil {
		t.Fatalf("RowByName error: %v", err)
	}
	if !ok || id != 2 {
		t.Errorf("RowByName(polygon) = (%d, %v), want (2, true)", id, ok)
	}

	_, ok, _ = m.RowByName(context.Background(), "solana")
	if ok {
		t.Error("RowByName(solana) = true, want false")
	}
}

// Committing then reading back returns exactly the committed fields.
func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory("polygon")
	ctx := context.Background()

	rec := &chain.Canonical{
		Name:         "polygon",
		ChainID:      chain.Int64(137),
		Symbol:       chain.String("MATIC"),
		TVL:          chain.Float64(500000000),
		RPCURLs:      []string{"https://rpc.example"},
		EIP1559:      chain.Bool(true),
		HealthStatus: chain.HealthDegraded,
		IsActive:     chain.Bool(true),
		Completeness: 1.0,
		Sources: map[string]string{
			chain.FieldChainID: "publicnode",
			chain.FieldSymbol:  "defillama",
			chain.FieldTVL:     "defillama",
			chain.FieldRPCURLs: "publicnode",
			chain.FieldEIP1559: "publicnode",
		},
		LastResolvedAt: commitTime,
	}
	if err := m.WriteOutputs(ctx, 1, rec); err != nil {
		t.Fatalf("WriteOutputs error: %v", err)
	}

	got, err := m.ReadOutputs(ctx, 1)
	if err != nil {
		t.Fatalf("ReadOutputs error: %v", err)
	}
	if got.ChainID == nil || *got.ChainID != 137 {
		t.Errorf("ChainID = %v, want 137", got.ChainID)
	}
	if got.Symbol == nil || *got.Symbol != "MATIC" {
		t.Errorf("Symbol = %v, want MATIC", got.Symbol)
	}
	if !reflect.DeepEqual(got.RPCURLs, rec.RPCURLs) {
		t.Errorf("RPCURLs = %v, want %v", got.RPCURLs, rec.RPCURLs)
	}
	if !reflect.DeepEqual(got.Sources, rec.Sources) {
		t.Errorf("Sources = %v, want %v", got.Sources, rec.Sources)
	}
	if got.Completeness != 1.0 {
		t.Errorf("Completeness = %v, want 1.0", got.Completeness)
	}
	if !got.LastResolvedAt.Equal(commitTime) {
		t.Errorf("LastResolvedAt = %v, want %v", got.LastResolvedAt, commitTime)
	}
	// Fields never committed stay absent.
	if got.GasPriceGwei != nil || got.ExplorerURL != nil {
		t.Errorf("uncommitted fields present: %+v", got)
	}
}

// A later sparse commit must not blank out fields a previous commit
// wrote.
func TestMemoryPartialCommitPreservesFields(t *testing.T) {
	m := NewMemory("polygon")
	ctx := context.Background()

	full := &chain.Canonical{
		Name: "polygon", TVL: chain.Float64(500000000), Symbol: chain.String("MATIC"),
		Completeness: 1.0,
		Sources:      map[string]string{chain.FieldTVL: "defillama", chain.FieldSymbol: "defillama"},
		LastResolvedAt: commitTime,
	}
	if err := m.WriteOutputs(ctx, 1, full); err != nil {
		t.Fatalf("first WriteOutputs error: %v", err)
	}

	sparse := &chain.Canonical{
		Name: "polygon", Symbol: chain.String("POL"),
		Completeness: 0.5,
		Sources:      map[string]string{chain.FieldSymbol: "publicnode"},
		LastResolvedAt: commitTime.Add(time.Hour),
	}
	if err := m.WriteOutputs(ctx, 1, sparse); err != nil {
		t.Fatalf("second WriteOutputs error: %v", err)
	}

	got, err := m.ReadOutputs(ctx, 1)
	if err != nil {
		t.Fatalf("ReadOutputs error: %v", err)
	}
	if got.TVL == nil || *got.TVL != 500000000 {
		t.Errorf("TVL after sparse commit = %v, want preserved 500000000", got.TVL)
	}
	if got.Symbol == nil || *got.Symbol != "POL" {
		t.Errorf("Symbol = %v, want updated POL", got.Symbol)
	}
	if got.Sources[chain.FieldTVL] != "defillama" {
		t.Errorf("Sources[tvl_usd] = %q, want preserved defillama", got.Sources[chain.FieldTVL])
	}
	if got.Sources[chain.FieldSymbol] != "publicnode" {
		t.Errorf("Sources[symbol] = %q, want publicnode", got.Sources[chain.FieldSymbol])
	}
	if got.Completeness != 0.5 {
		t.Errorf("Completeness = %v, want 0.5 from latest commit", got.Completeness)
	}
}

// The empty record an all-provider-failure round produces only moves
// the completeness and timestamp.
func TestMemoryEmptyCommitLeavesDataAlone(t *testing.T) {
	m := NewMemory("polygon")
	ctx := context.Background()

	if err := m.WriteOutputs(ctx, 1, &chain.Canonical{
		Name: "polygon", TVL: chain.Float64(123),
		Completeness:   1.0,
		Sources:        map[string]string{chain.FieldTVL: "defillama"},
		LastResolvedAt: commitTime,
	}); err != nil {
		t.Fatalf("WriteOutputs error: %v", err)
	}

	empty := &chain.Canonical{
		Name:           "polygon",
		Completeness:   0,
		Sources:        map[string]string{},
		LastResolvedAt: commitTime.Add(time.Hour),
	}
	if err := m.WriteOutputs(ctx, 1, empty); err != nil {
		t.Fatalf("empty WriteOutputs error: %v", err)
	}

	got, _ := m.ReadOutputs(ctx, 1)
	if got.TVL == nil || *got.TVL != 123 {
		t.Errorf("TVL after empty commit = %v, want preserved 123", got.TVL)
	}
	if got.Completeness != 0 {
		t.Errorf("Completeness = %v, want 0", got.Completeness)
	}
	if !got.LastResolvedAt.Equal(commitTime.Add(time.Hour)) {
		t.Errorf("LastResolvedAt = %v, want refreshed", got.LastResolvedAt)
	}
}

func TestMemoryUnknownRow(t *testing.T) {
	m := NewMemory("polygon")
	ctx := context.Background()

	if err := m.WriteOutputs(ctx, 99, &chain.Canonical{Name: "x"}); err == nil {
		t.Error("WriteOutputs(99) error = nil, want row not found")
	}
	if _, err := m.ReadOutputs(ctx, 99); err == nil {
		t.Error("ReadOutputs(99) error = nil, want row not found")
	}
	if _, err := m.ReadTrigger(ctx, 99); err == nil {
		t.Error("ReadTrigger(99) error = nil, want row not found")
	}
}

func TestMemoryReadOutputsBeforeAnyCommit(t *testing.T) {
	m := NewMemory("polygon")
	rec, err := m.ReadOutputs(context.Background(), 1)
	if err != nil {
		t.Fatalf("ReadOutputs error: %v", err)
	}
	if rec != nil {
		t.Errorf("ReadOutputs before commit = %+v, want nil", rec)
	}
}
