package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	DatabaseURL    string
	SheetBackend   string
	RedisURL       string
	RedisPassword  string
	TelegramToken  string
	TelegramChatID int64
	FrontendOrigin string

	// Provider API hosts; empty uses each provider's public default.
	DefillamaAPI  string
	LlamanodesAPI string
	PublicnodeAPI string

	PollInterval   time.Duration
	DebounceWindow time.Duration
	ResolveTimeout time.Duration
	RetryBackoff   time.Duration
	ShutdownGrace  time.Duration
	IndexCacheTTL  time.Duration

	// ProviderTrust lists providers from most to least trusted.
	ProviderTrust []string

	StartupRefresh  bool
	RPCProbe        bool
	ChainlistScrape bool
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SheetBackend:   envOr("SHEET_BACKEND", "postgres"),
		RedisURL:       envOr("REDIS_URL", "redis://redis-master.redis.svc.cluster.local:6379/0"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: int64Or("TELEGRAM_CHAT_ID", 0),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),

		DefillamaAPI:  os.Getenv("DEFILLAMA_API"),
		LlamanodesAPI: os.Getenv("LLAMANODES_API"),
		PublicnodeAPI: os.Getenv("PUBLICNODE_API"),

		PollInterval:   durationOr("POLL_INTERVAL", time.Second),
		DebounceWindow: durationOr("DEBOUNCE_WINDOW", 500*time.Millisecond),
		ResolveTimeout: durationOr("RESOLVE_TIMEOUT", 4*time.Second),
		RetryBackoff:   durationOr("RETRY_BACKOFF", 3*time.Second),
		ShutdownGrace:  durationOr("SHUTDOWN_GRACE", 10*time.Second),
		IndexCacheTTL:  durationOr("INDEX_CACHE_TTL", 5*time.Minute),

		ProviderTrust: csvOr("PROVIDER_TRUST", "publicnode,llamanodes,defillama,chainlist"),

		StartupRefresh:  boolOr("STARTUP_REFRESH", false),
		RPCProbe:        boolOr("RPC_PROBE", true),
		ChainlistScrape: boolOr("CHAINLIST_SCRAPE", false),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &cfg.TelegramToken,
		"REDIS_PASSWORD":     &cfg.RedisPassword,
		"DATABASE_URL":       &cfg.DatabaseURL,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func boolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid bool, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}

func int64Or(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func csvOr(key, fallback string) []string {
	v := envOr(key, fallback)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
