package autoapply

import (
	"context"
	"sync"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// Engine is the assembled auto-apply system: the matching orchestrator,
// the expiry sweeper, the posting ingestor, and the operations the outer
// API layer calls. Construction wires every component explicitly; there
// is no package-level state to initialize.
type Engine struct {
	cfg       engine.Config
	store     *Store
	journal   *Journal
	approvals *Approvals
	orch      *Orchestrator
	sweeper   *Sweeper
	ingestor  *Ingestor
}

// New assembles the engine. The store, journal, and LLM client are built
// by the caller (they own external connections); cache may be nil to
// skip posting-fetch caching.
func New(cfg engine.Config, store *Store, journal *Journal, llmClient Completer, cache *engine.Cache) *Engine {
	cfg = cfg.WithDefaults()

	lexical := NewLexicalScorer()
	var scorer, fallback SimilarityScorer = lexical, nil
	if cfg.EmbeddingsURL != "" {
		scorer = NewEmbeddingScorer(cfg.EmbeddingsURL, cfg.EmbeddingsSecret, "", cfg.HTTPClient)
		fallback = lexical
	}
	matcher := NewMatchEngine(scorer, fallback)

	source := NewStoreJobSource(store, cache, 0, cfg.MaxJobsPerScan)
	materials := NewLLMGenerator(llmClient)
	guard := NewDedupGuard(store)

	var channel SubmissionChannel = DryRunChannel{}
	var mailer EmailSender
	if cfg.RelayURL != "" {
		relay := NewEmailRelayChannel(cfg.RelayURL, cfg.RelaySecret, cfg.HTTPClient)
		channel = relay
		mailer = relay
	}
	dispatcher := NewStoreDispatcher(store, mailer)
	executor := NewSubmissionExecutor(store, channel, journal, dispatcher)

	return &Engine{
		cfg:       cfg,
		store:     store,
		journal:   journal,
		approvals: NewApprovals(store, executor),
		orch: NewOrchestrator(cfg, store, store, source, matcher, materials,
			guard, executor, dispatcher),
		sweeper:  NewSweeper(store, cfg.SweepInterval),
		ingestor: NewIngestor(store, cfg.HTTPClient, cfg.FetchTimeout, cfg.IngestInterval),
	}
}

// Run starts the background loops and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		e.ingestor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = e.sweeper.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = e.orch.Run(ctx)
	}()
	wg.Wait()
}

// Close releases the store pool and the journal handle.
func (e *Engine) Close() error {
	e.store.Close()
	return e.journal.Close()
}

// SchedulerState reports the orchestrator's current cycle phase.
func (e *Engine) SchedulerState() string { return e.orch.State() }

// ListApplications returns a user's applications, optionally narrowed to
// one lifecycle state.
func (e *Engine) ListApplications(ctx context.Context, userID, status string, includeExpired bool, limit int) ([]PendingApplication, error) {
	return e.approvals.List(ctx, userID, status, includeExpired, limit)
}

// GetApplication loads one application scoped to its owner.
func (e *Engine) GetApplication(ctx context.Context, userID, pendingID string) (*PendingApplication, error) {
	return e.approvals.Get(ctx, userID, pendingID)
}

// ApproveApplication approves and submits a pending application.
func (e *Engine) ApproveApplication(ctx context.Context, userID, pendingID, coverLetter string) (*PendingApplication, error) {
	return e.approvals.Approve(ctx, userID, pendingID, coverLetter)
}

// RejectApplication declines a pending application.
func (e *Engine) RejectApplication(ctx context.Context, userID, pendingID, reason string) (*PendingApplication, error) {
	return e.approvals.Reject(ctx, userID, pendingID, reason)
}

// TriggerManualScan runs the matching pipeline for one user immediately.
func (e *Engine) TriggerManualScan(ctx context.Context, userID string) (int, error) {
	return e.orch.TriggerManualScan(ctx, userID)
}

// GetSettings returns the user's auto-apply configuration, defaults when
// none is stored.
func (e *Engine) GetSettings(ctx context.Context, userID string) (Settings, error) {
	return e.store.GetSettings(ctx, userID)
}

// SaveSettings persists the user's auto-apply configuration.
func (e *Engine) SaveSettings(ctx context.Context, s Settings) error {
	return e.store.SaveSettings(ctx, s)
}

// ListNotifications returns a user's notifications, newest first.
func (e *Engine) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	return e.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkNotificationRead acknowledges one notification.
func (e *Engine) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	return e.store.MarkNotificationRead(ctx, userID, notificationID)
}

// GetAnalytics aggregates a user's application outcomes over the
// trailing window.
func (e *Engine) GetAnalytics(ctx context.Context, userID string, days int) (*Analytics, error) {
	return e.store.GetAnalytics(ctx, userID, days)
}

// ListJournal returns recent delivery attempts from the local journal.
func (e *Engine) ListJournal(ctx context.Context, userID, status string, limit int) ([]JournalEntry, error) {
	return e.journal.ListAttempts(ctx, userID, status, limit)
}

// SweepNow runs one expiry sweep immediately.
func (e *Engine) SweepNow(ctx context.Context) (int, error) {
	return e.sweeper.SweepOnce(ctx)
}
