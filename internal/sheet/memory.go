package sheet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/web3-frozen/chainsync/internal/chain"
)

// Memory is the in-process backend: development mode and the test
// double share it. Commit semantics match the postgres backend exactly.
type Memory struct {
	mu   sync.RWMutex
	rows map[int64]*memoryRow
}

type memoryRow struct {
	trigger string
	rec     *chain.Canonical
}

// NewMemory seeds one row per name, row ids starting at 1. Empty names
// are allowed (blank rows the operator has not filled in yet).
func NewMemory(names ...string) *Memory {
	m := &Memory{rows: make(map[int64]*memoryRow)}
	for i, name := range names {
		m.rows[int64(i+1)] = &memoryRow{trigger: name}
	}
	return m
}

// SetTrigger simulates the operator typing into a trigger cell.
func (m *Memory) SetTrigger(rowID int64, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[rowID]
	if !ok {
		row = &memoryRow{}
		m.rows[rowID] = row
	}
	row.trigger = value
}

func (m *Memory) Triggers(ctx context.Context) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, Row{ID: id, Name: m.rows[id].trigger})
	}
	return out, nil
}

func (m *Memory) ReadTrigger(ctx context.Context, rowID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[rowID]
	if !ok {
		return "", fmt.Errorf("row %d not found", rowID)
	}
	return row.trigger, nil
}

func (m *Memory) RowByName(ctx context.Context, name chain.Name) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if chain.Normalize(m.rows[id].trigger) == name {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (m *Memory) ReadOutputs(ctx context.Context, rowID int64) (*chain.Canonical, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[rowID]
	if !ok {
		return nil, fmt.Errorf("row %d not found", rowID)
	}
	if row.rec == nil {
		return nil, nil
	}
	return cloneCanonical(row.rec), nil
}

func (m *Memory) WriteOutputs(ctx context.Context, rowID int64, rec *chain.Canonical) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[rowID]
	if !ok {
		return fmt.Errorf("row %d not found", rowID)
	}
	if row.rec == nil {
		row.rec = &chain.Canonical{Sources: make(map[string]string)}
	}
	applyOutputs(row.rec, rec)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// applyOutputs is the memory backend's commit: copy present fields,
// merge source tags, always refresh completeness and timestamps.
func applyOutputs(dst, src *chain.Canonical) {
	dst.Name = src.Name
	if src.ChainID != nil {
		dst.ChainID = src.ChainID
	}
	if src.Symbol != nil {
		dst.Symbol = src.Symbol
	}
	if src.NativeToken != nil {
		dst.NativeToken = src.NativeToken
	}
	if src.TVL != nil {
		dst.TVL = src.TVL
	}
	if src.DailyVolume != nil {
		dst.DailyVolume = src.DailyVolume
	}
	if src.GasPriceGwei != nil {
		dst.GasPriceGwei = src.GasPriceGwei
	}
	if src.MinGasPrice != nil {
		dst.MinGasPrice = src.MinGasPrice
	}
	if src.MaxGasPrice != nil {
		dst.MaxGasPrice = src.MaxGasPrice
	}
	if src.BlockTimeMS != nil {
		dst.BlockTimeMS = src.BlockTimeMS
	}
	if src.FinalityBlocks != nil {
		dst.FinalityBlocks = src.FinalityBlocks
	}
	if src.EIP1559 != nil {
		dst.EIP1559 = src.EIP1559
	}
	if src.RPCURLs != nil {
		dst.RPCURLs = src.RPCURLs
	}
	if src.WSSURLs != nil {
		dst.WSSURLs = src.WSSURLs
	}
	if src.ExplorerURL != nil {
		dst.ExplorerURL = src.ExplorerURL
	}
	if src.RPCHealthy != nil {
		dst.RPCHealthy = src.RPCHealthy
	}
	if src.RPCLatencyMS != nil {
		dst.RPCLatencyMS = src.RPCLatencyMS
	}
	if src.HealthStatus != "" {
		dst.HealthStatus = src.HealthStatus
	}
	if src.IsActive != nil {
		dst.IsActive = src.IsActive
	}
	for field, provider := range src.Sources {
		dst.Sources[field] = provider
	}
	dst.Completeness = src.Completeness
	dst.LastResolvedAt = src.LastResolvedAt
}

func cloneCanonical(rec *chain.Canonical) *chain.Canonical {
	out := *rec
	out.Sources = make(map[string]string, len(rec.Sources))
	for k, v := range rec.Sources {
		out.Sources[k] = v
	}
	if rec.RPCURLs != nil {
		out.RPCURLs = append([]string(nil), rec.RPCURLs...)
	}
	if rec.WSSURLs != nil {
		out.WSSURLs = append([]string(nil), rec.WSSURLs...)
	}
	return &out
}
