package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	CyclesRun             atomic.Int64
	CycleErrors           atomic.Int64
	UsersScanned          atomic.Int64
	UserErrors            atomic.Int64
	MatchesFound          atomic.Int64
	ApplicationsCreated   atomic.Int64
	ApplicationsSubmitted atomic.Int64
	SubmissionErrors      atomic.Int64
	ApplicationsExpired   atomic.Int64
	NotificationsCreated  atomic.Int64
	LLMCalls              atomic.Int64
	LLMErrors             atomic.Int64
	IngestRequests        atomic.Int64
	IngestErrors          atomic.Int64
	EmbedRequests         atomic.Int64
	RelayRequests         atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"cycles_run":             metrics.CyclesRun.Load(),
		"cycle_errors":           metrics.CycleErrors.Load(),
		"users_scanned":          metrics.UsersScanned.Load(),
		"user_errors":            metrics.UserErrors.Load(),
		"matches_found":          metrics.MatchesFound.Load(),
		"applications_created":   metrics.ApplicationsCreated.Load(),
		"applications_submitted": metrics.ApplicationsSubmitted.Load(),
		"submission_errors":      metrics.SubmissionErrors.Load(),
		"applications_expired":   metrics.ApplicationsExpired.Load(),
		"notifications_created":  metrics.NotificationsCreated.Load(),
		"llm_calls":              metrics.LLMCalls.Load(),
		"llm_errors":             metrics.LLMErrors.Load(),
		"ingest_requests":        metrics.IngestRequests.Load(),
		"ingest_errors":          metrics.IngestErrors.Load(),
		"embed_requests":         metrics.EmbedRequests.Load(),
		"relay_requests":         metrics.RelayRequests.Load(),
		"cache_hits":             hits,
		"cache_misses":           misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"cycles_run", "cycle_errors",
		"users_scanned", "user_errors",
		"matches_found", "applications_created",
		"applications_submitted", "submission_errors", "applications_expired",
		"notifications_created",
		"llm_calls", "llm_errors",
		"ingest_requests", "ingest_errors",
		"embed_requests", "relay_requests",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the autoapply sub-package.
func IncrCyclesRun()                { metrics.CyclesRun.Add(1) }
func IncrCycleErrors()              { metrics.CycleErrors.Add(1) }
func IncrUsersScanned()             { metrics.UsersScanned.Add(1) }
func IncrUserErrors()               { metrics.UserErrors.Add(1) }
func IncrMatchesFound(n int)        { metrics.MatchesFound.Add(int64(n)) }
func IncrApplicationsCreated()      { metrics.ApplicationsCreated.Add(1) }
func IncrApplicationsSubmitted()    { metrics.ApplicationsSubmitted.Add(1) }
func IncrSubmissionErrors()         { metrics.SubmissionErrors.Add(1) }
func IncrApplicationsExpired(n int) { metrics.ApplicationsExpired.Add(int64(n)) }
func IncrNotificationsCreated()     { metrics.NotificationsCreated.Add(1) }
func IncrLLMCalls()                 { metrics.LLMCalls.Add(1) }
func IncrLLMErrors()                { metrics.LLMErrors.Add(1) }
func IncrIngestRequests()           { metrics.IngestRequests.Add(1) }
func IncrIngestErrors()             { metrics.IngestErrors.Add(1) }
func IncrEmbedRequests()            { metrics.EmbedRequests.Add(1) }
func IncrRelayRequests()            { metrics.RelayRequests.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
