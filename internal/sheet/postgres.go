package sheet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/chainsync/internal/chain"
)

// Postgres backs the sheet with one chains table; a single-row UPDATE
// per commit gives the atomicity WriteOutputs promises.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Postgres) Triggers(ctx context.Context) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM chains ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) ReadTrigger(ctx context.Context, rowID int64) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM chains WHERE id = $1`, rowID).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("read trigger %d: %w", rowID, err)
	}
	return name, nil
}

// RowByName matches in Go rather than SQL so the comparison uses the
// exact trigger normalization rules.
func (s *Postgres) RowByName(ctx context.Context, name chain.Name) (int64, bool, error) {
	rows, err := s.Triggers(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, r := range rows {
		if chain.Normalize(r.Name) == name {
			return r.ID, true, nil
		}
	}
	return 0, false, nil
}

func (s *Postgres) ReadOutputs(ctx context.Context, rowID int64) (*chain.Canonical, error) {
	var (
		name           string
		rec            chain.Canonical
		sourcesRaw     []byte
		healthStatus   *string
		lastResolvedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT name, chain_id, symbol, native_token, tvl_usd, daily_volume_usd,
		       gas_price_gwei, min_gas_price, max_gas_price, block_time_ms,
		       finality_blocks, eip1559_supported, rpc_urls, wss_urls,
		       explorer_url, rpc_healthy, rpc_latency_ms, health_status,
		       is_active, completeness, field_sources, last_resolved_at
		FROM chains WHERE id = $1`, rowID).Scan(
		&name, &rec.ChainID, &rec.Symbol, &rec.NativeToken, &rec.TVL, &rec.DailyVolume,
		&rec.GasPriceGwei, &rec.MinGasPrice, &rec.MaxGasPrice, &rec.BlockTimeMS,
		&rec.FinalityBlocks, &rec.EIP1559, &rec.RPCURLs, &rec.WSSURLs,
		&rec.ExplorerURL, &rec.RPCHealthy, &rec.RPCLatencyMS, &healthStatus,
		&rec.IsActive, &rec.Completeness, &sourcesRaw, &lastResolvedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("read outputs %d: %w", rowID, err)
	}

	rec.Name = chain.Normalize(name)
	if healthStatus != nil {
		rec.HealthStatus = *healthStatus
	}
	if lastResolvedAt != nil {
		rec.LastResolvedAt = *lastResolvedAt
	}
	rec.Sources = make(map[string]string)
	if len(sourcesRaw) > 0 {
		if err := json.Unmarshal(sourcesRaw, &rec.Sources); err != nil {
			return nil, fmt.Errorf("decode field sources %d: %w", rowID, err)
		}
	}
	return &rec, nil
}

func (s *Postgres) WriteOutputs(ctx context.Context, rowID int64, rec *chain.Canonical) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if rec.ChainID != nil {
		add("chain_id", *rec.ChainID)
	}
	if rec.Symbol != nil {
		add("symbol", *rec.Symbol)
	}
	if rec.NativeToken != nil {
		add("native_token", *rec.NativeToken)
	}
	if rec.TVL != nil {
		add("tvl_usd", *rec.TVL)
	}
	if rec.DailyVolume != nil {
		add("daily_volume_usd", *rec.DailyVolume)
	}
	if rec.GasPriceGwei != nil {
		add("gas_price_gwei", *rec.GasPriceGwei)
	}
	if rec.MinGasPrice != nil {
		add("min_gas_price", *rec.MinGasPrice)
	}
	if rec.MaxGasPrice != nil {
		add("max_gas_price", *rec.MaxGasPrice)
	}
	if rec.BlockTimeMS != nil {
		add("block_time_ms", *rec.BlockTimeMS)
	}
	if rec.FinalityBlocks != nil {
		add("finality_blocks", *rec.FinalityBlocks)
	}
	if rec.EIP1559 != nil {
		add("eip1559_supported", *rec.EIP1559)
	}
	if rec.RPCURLs != nil {
		add("rpc_urls", rec.RPCURLs)
	}
	if rec.WSSURLs != nil {
		add("wss_urls", rec.WSSURLs)
	}
	if rec.ExplorerURL != nil {
		add("explorer_url", *rec.ExplorerURL)
	}
	if rec.RPCHealthy != nil {
		add("rpc_healthy", *rec.RPCHealthy)
	}
	if rec.RPCLatencyMS != nil {
		add("rpc_latency_ms", *rec.RPCLatencyMS)
	}
	if rec.HealthStatus != "" {
		add("health_status", rec.HealthStatus)
	}
	if rec.IsActive != nil {
		add("is_active", *rec.IsActive)
	}

	add("completeness", rec.Completeness)
	add("last_resolved_at", rec.LastResolvedAt)

	if len(rec.Sources) > 0 {
		b, err := json.Marshal(rec.Sources)
		if err != nil {
			return fmt.Errorf("encode field sources: %w", err)
		}
		args = append(args, string(b))
		sets = append(sets, fmt.Sprintf("field_sources = field_sources || $%d::jsonb", len(args)))
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, rowID)
	query := fmt.Sprintf("UPDATE chains SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write outputs %d: %w", rowID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("row %d not found", rowID)
	}
	return nil
}
