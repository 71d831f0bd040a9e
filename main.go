// go_autoapply — Auto-application matching and approval engine.
//
// Scans eligible users on a schedule, matches fresh job postings against
// their profiles, generates application materials, and drives each
// application through an approval and submission lifecycle with daily
// quotas, a 30-day duplicate window, and 7-day expiry. Exposes the admin
// surface as MCP tools.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_autoapply/internal/adminserver"
	"github.com/anatolykoptev/go_autoapply/internal/engine"
	"github.com/anatolykoptev/go_autoapply/internal/engine/autoapply"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8893")
)

func main() {
	c := engine.Config{
		DatabaseURL:        env.Str("DATABASE_URL", ""),
		JournalPath:        env.Str("JOURNAL_PATH", "data/autoapply_journal.db"),
		RedisURL:           env.Str("REDIS_URL", ""),
		LLMAPIKey:          env.Str("LLM_API_KEY", ""),
		LLMAPIKeyFallbacks: env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:         env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:           env.Str("LLM_MODEL", "gemini-2.5-flash"),
		LLMTemperature:     env.Float("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:       env.Int("LLM_MAX_TOKENS", 2048),

		EmbeddingsURL:    env.Str("EMBEDDINGS_URL", ""),
		EmbeddingsSecret: env.Str("INTERNAL_SERVICE_SECRET", ""),
		RelayURL:         env.Str("RELAY_URL", ""),
		RelaySecret:      env.Str("RELAY_SECRET", ""),

		ScanInterval:   env.Duration("SCAN_INTERVAL", engine.DefaultScanInterval),
		ErrorBackoff:   env.Duration("ERROR_BACKOFF", engine.DefaultErrorBackoff),
		SweepInterval:  env.Duration("SWEEP_INTERVAL", engine.DefaultSweepInterval),
		ScanCooldown:   env.Duration("SCAN_COOLDOWN", engine.DefaultScanCooldown),
		MaxBatchUsers:  env.Int("MAX_BATCH_USERS", engine.DefaultMaxBatchUsers),
		MaxJobsPerScan: env.Int("MAX_JOBS_PER_SCAN", engine.DefaultMaxJobsPerScan),
		IngestInterval: env.Duration("INGEST_INTERVAL", engine.DefaultIngestInterval),
		FetchTimeout:   env.Duration("FETCH_TIMEOUT", 10*time.Second),

		CacheTTL:             env.Duration("CACHE_TTL", 10*time.Minute),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),

		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	slog.Info("starting go_autoapply",
		slog.String("port", mcpPort),
		slog.Duration("scan_interval", c.ScanInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := autoapply.Connect(ctx, c.DatabaseURL)
	if err != nil {
		slog.Error("store init failed", slog.Any("error", err))
		os.Exit(1)
	}

	journal, err := autoapply.OpenJournal(c.JournalPath)
	if err != nil {
		slog.Error("journal init failed", slog.Any("error", err))
		os.Exit(1)
	}

	llmClient := llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
		llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
		llm.WithMaxTokens(c.LLMMaxTokens),
		llm.WithTemperature(c.LLMTemperature),
		llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)

	cache := engine.NewCache(c.RedisURL, c.CacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)

	eng := autoapply.New(c, store, journal, llmClient, cache)
	go eng.Run(ctx)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_autoapply",
		Version: version,
	}, nil)
	adminserver.RegisterTools(server, eng)
	slog.Info("tools registered", slog.Int("count", 12))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_autoapply",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}

	cancel()
	if err := eng.Close(); err != nil {
		slog.Warn("shutdown cleanup failed", slog.Any("error", err))
	}
}
