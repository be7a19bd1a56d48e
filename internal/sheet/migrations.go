package sheet

import "context"

// SeedChains are the rows both backends start with on first boot.
var SeedChains = []string{
	"ethereum", "polygon", "bsc", "arbitrum", "optimism",
	"avalanche", "fantom", "base", "gnosis", "celo",
}

const migrationSQL = `
CREATE TABLE IF NOT EXISTS chains (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    chain_id BIGINT,
    symbol TEXT,
    native_token TEXT,
    tvl_usd DOUBLE PRECISION,
    daily_volume_usd DOUBLE PRECISION,
    gas_price_gwei DOUBLE PRECISION,
    min_gas_price DOUBLE PRECISION,
    max_gas_price DOUBLE PRECISION,
    block_time_ms BIGINT,
    finality_blocks BIGINT,
    eip1559_supported BOOLEAN,
    rpc_urls TEXT[],
    wss_urls TEXT[],
    explorer_url TEXT,
    rpc_healthy BOOLEAN,
    rpc_latency_ms BIGINT,
    health_status TEXT,
    is_active BOOLEAN,
    completeness DOUBLE PRECISION NOT NULL DEFAULT 0,
    field_sources JSONB NOT NULL DEFAULT '{}'::jsonb,
    last_resolved_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Seed the tracked rows on first boot only; operators rename them from
-- the sheet afterwards.
INSERT INTO chains (name)
SELECT unnest(ARRAY[
    'ethereum','polygon','bsc','arbitrum','optimism',
    'avalanche','fantom','base','gnosis','celo'
])
WHERE NOT EXISTS (SELECT 1 FROM chains);
`

func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
