package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
// Components receive it (or the slice of it they need) through their
// constructors; there is no package-level configuration state.
type Config struct {
	DatabaseURL        string
	JournalPath        string
	RedisURL           string
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int

	EmbeddingsURL    string // empty = lexical scorer only
	EmbeddingsSecret string

	RelayURL    string // submission relay endpoint; empty = log-only channel
	RelaySecret string

	ScanInterval   time.Duration // delay between successful cycles
	ErrorBackoff   time.Duration // delay after a failed cycle
	SweepInterval  time.Duration // expiry sweeper period
	ScanCooldown   time.Duration // per-user rescan cooldown
	MaxBatchUsers  int           // concurrent users per batch
	MaxJobsPerScan int           // postings considered per user per cycle

	IngestInterval time.Duration // minimum gap between feed refreshes
	FetchTimeout   time.Duration // per external HTTP call

	CacheTTL             time.Duration
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	HTTPClient *http.Client
}

// Defaults for knobs that are rarely tuned. Scan pacing mirrors the
// production scheduler: hourly cycles, 5 minute backoff after a failed
// cycle, 12 hour per-user cooldown, at most 10 users in flight.
const (
	DefaultScanInterval   = 60 * time.Minute
	DefaultErrorBackoff   = 300 * time.Second
	DefaultSweepInterval  = 30 * time.Minute
	DefaultScanCooldown   = 12 * time.Hour
	DefaultMaxBatchUsers  = 10
	DefaultMaxJobsPerScan = 100
	DefaultIngestInterval = 30 * time.Minute
)

// WithDefaults fills zero-valued pacing fields so a partially populated
// Config (common in tests) behaves like the production one.
func (c Config) WithDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.ScanCooldown <= 0 {
		c.ScanCooldown = DefaultScanCooldown
	}
	if c.MaxBatchUsers <= 0 {
		c.MaxBatchUsers = DefaultMaxBatchUsers
	}
	if c.MaxJobsPerScan <= 0 {
		c.MaxJobsPerScan = DefaultMaxJobsPerScan
	}
	if c.IngestInterval <= 0 {
		c.IngestInterval = DefaultIngestInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = NewHTTPClient(15 * time.Second)
	}
	return c
}
