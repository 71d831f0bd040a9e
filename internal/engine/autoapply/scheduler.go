package autoapply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// Cycle-level scheduler states, readable through State.
const (
	StateIdle     = "idle"
	StateScanning = "scanning"
	StateBatching = "batching"
	StateBackoff  = "error_backoff"
)

// ProfileReader loads the matching view of one user's profile.
type ProfileReader interface {
	GetMatchingProfile(ctx context.Context, userID string) (*MatchingProfile, error)
}

// SchedulerStore is the slice of storage the orchestrator drives.
// Submission-side transitions belong to the executor's own store.
type SchedulerStore interface {
	EligibleUsers(ctx context.Context, scannedBefore time.Time) ([]User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	GetSettings(ctx context.Context, userID string) (Settings, error)
	CountActiveToday(ctx context.Context, userID string, now time.Time) (int, error)
	CreatePending(ctx context.Context, app *PendingApplication, maxDaily int) error
	ApprovePending(ctx context.Context, userID, pendingID, coverLetter string, decidedAt time.Time) (*PendingApplication, error)
	UpdateLastScan(ctx context.Context, userID string, at time.Time) error
	AppendLog(ctx context.Context, entry *ApplicationLog) error
}

// Orchestrator runs the periodic matching cycle: select eligible users,
// scan each one inside a bounded concurrent batch, and pace the next
// cycle off the outcome. Every collaborator is injected; the orchestrator
// keeps no state beyond the cycle phase it is in.
type Orchestrator struct {
	cfg        engine.Config
	store      SchedulerStore
	profiles   ProfileReader
	source     JobSourceAdapter
	matcher    *MatchEngine
	materials  MaterialsGenerator
	guard      *DedupGuard
	executor   *SubmissionExecutor
	dispatcher NotificationDispatcher

	mu    sync.Mutex
	state string
}

func NewOrchestrator(cfg engine.Config, store SchedulerStore, profiles ProfileReader, source JobSourceAdapter,
	matcher *MatchEngine, materials MaterialsGenerator, guard *DedupGuard,
	executor *SubmissionExecutor, dispatcher NotificationDispatcher) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg.WithDefaults(),
		store:      store,
		profiles:   profiles,
		source:     source,
		matcher:    matcher,
		materials:  materials,
		guard:      guard,
		executor:   executor,
		dispatcher: dispatcher,
		state:      StateIdle,
	}
}

// State reports the current cycle phase.
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run loops cycles until ctx is cancelled. A failed cycle is followed by
// the error backoff instead of the scan interval; the failure itself
// never escapes the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	slog.Info("scheduler started",
		slog.Duration("interval", o.cfg.ScanInterval),
		slog.Duration("backoff", o.cfg.ErrorBackoff))
	for {
		delay := o.cfg.ScanInterval
		if err := o.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			engine.IncrCycleErrors()
			slog.Error("cycle failed", slog.Any("error", err),
				slog.Duration("backoff", o.cfg.ErrorBackoff))
			o.setState(StateBackoff)
			delay = o.cfg.ErrorBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runCycle performs one full scan: eligibility query, then batches of
// concurrent per-user pipelines. Only the eligibility query can fail the
// cycle; user failures are isolated inside processUser.
func (o *Orchestrator) runCycle(ctx context.Context) error {
	start := time.Now()
	engine.IncrCyclesRun()
	o.setState(StateScanning)
	defer o.setState(StateIdle)

	users, err := o.store.EligibleUsers(ctx, start.UTC().Add(-o.cfg.ScanCooldown))
	if err != nil {
		return fmt.Errorf("eligibility scan: %w", err)
	}
	if len(users) == 0 {
		slog.Info("cycle complete", slog.Int("users", 0),
			slog.Duration("took", time.Since(start).Round(time.Millisecond)))
		return nil
	}

	o.setState(StateBatching)
	var (
		mu      sync.Mutex
		created int
	)
	for batch := range slices.Chunk(users, o.cfg.MaxBatchUsers) {
		var wg sync.WaitGroup
		for _, u := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n := o.processUser(ctx, u)
				mu.Lock()
				created += n
				mu.Unlock()
			}()
		}
		wg.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	slog.Info("cycle complete",
		slog.Int("users", len(users)),
		slog.Int("created", created),
		slog.Duration("took", time.Since(start).Round(time.Millisecond)))
	return nil
}

// processUser is the per-user error boundary: any failure, panics
// included, is logged and absorbed so the rest of the batch continues.
func (o *Orchestrator) processUser(ctx context.Context, user User) (created int) {
	defer func() {
		if r := recover(); r != nil {
			engine.IncrUserErrors()
			slog.Error("scan: user pipeline panicked",
				slog.String("user_id", user.ID), slog.Any("panic", r))
		}
	}()

	engine.IncrUsersScanned()
	created, err := o.scanUser(ctx, user, false)
	if err == nil {
		return created
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		slog.Warn("scan: user skipped",
			slog.String("user_id", user.ID), slog.String("reason", verr.Reason))
		return created
	}
	engine.IncrUserErrors()
	slog.Error("scan: user failed",
		slog.String("user_id", user.ID), slog.Any("error", err))
	return created
}

// scanUser runs the pipeline for one user: settings, profile, fresh
// jobs, ranking, then candidate creation until the quota is spent. The
// manual flag skips the standing-schedule gates (enabled flag and
// application window) that an explicit trigger overrides; quota and
// deduplication always hold.
func (o *Orchestrator) scanUser(ctx context.Context, user User, manual bool) (int, error) {
	now := time.Now()

	settings, err := o.store.GetSettings(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}
	settings = settings.Normalize()

	if !manual {
		if !settings.Enabled {
			return 0, nil
		}
		if !settings.InWindow(now) {
			slog.Debug("scan: outside application window", slog.String("user_id", user.ID))
			return 0, nil
		}
	}

	count, err := o.store.CountActiveToday(ctx, user.ID, now)
	if err != nil {
		return 0, fmt.Errorf("count today: %w", err)
	}
	remaining := settings.MaxDaily - count
	if remaining <= 0 {
		if manual {
			return 0, ErrQuotaExhausted
		}
		slog.Debug("scan: daily quota reached",
			slog.String("user_id", user.ID), slog.Int("count", count))
		return 0, nil
	}

	profile, err := o.profiles.GetMatchingProfile(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, &ValidationError{Reason: "no matching profile"}
		}
		return 0, fmt.Errorf("load profile: %w", err)
	}

	criteria := BuildCriteria(settings)
	jobs, err := o.source.FetchFreshJobs(ctx, criteria)
	if err != nil {
		return 0, fmt.Errorf("fetch jobs: %w", err)
	}

	var candidates []MatchCandidate
	if len(jobs) > 0 {
		candidates, err = o.matcher.Rank(ctx, *profile, criteria, jobs)
		if err != nil {
			return 0, err
		}
		engine.IncrMatchesFound(len(candidates))
	}

	created := o.processCandidates(ctx, user, profile, settings, candidates, remaining)

	// The scan happened, matches or not; recording it keeps the user off
	// the next cycles until the cooldown lapses.
	if err := o.store.UpdateLastScan(ctx, user.ID, now.UTC()); err != nil {
		slog.Warn("scan: update last_scan failed",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	trigger := "cycle"
	if manual {
		trigger = "manual"
	}
	o.appendLog(ctx, &ApplicationLog{
		UserID:       user.ID,
		ActivityType: "job_matching_scan",
		Description: fmt.Sprintf("Scanned %d fresh postings, %d candidates, %d applications created",
			len(jobs), len(candidates), created),
		Data: map[string]any{
			"jobs_considered": len(jobs),
			"candidates":      len(candidates),
			"created":         created,
			"trigger":         trigger,
		},
		Success: true,
	})

	if created > 0 {
		o.notify(ctx, buildScanSummaryNotification(user.ID, created))
	}

	slog.Info("scan: user done",
		slog.String("user_id", user.ID),
		slog.Int("jobs", len(jobs)),
		slog.Int("candidates", len(candidates)),
		slog.Int("created", created))
	return created, nil
}

// processCandidates walks the ranked candidates in score order, creating
// applications until the remaining quota is spent. Candidate-level
// failures skip that candidate only.
func (o *Orchestrator) processCandidates(ctx context.Context, user User, profile *MatchingProfile,
	settings Settings, candidates []MatchCandidate, remaining int) int {
	window := time.Duration(settings.MinDaysBetween) * 24 * time.Hour
	perCompany := make(map[string]int)
	created := 0

	for _, cand := range candidates {
		if created >= remaining {
			break
		}

		key := engine.CanonicalCompany(cand.Job.Company)
		if perCompany[key] >= settings.MaxPerCompany {
			continue
		}

		dup, err := o.guard.AlreadyTargeted(ctx, user.ID, cand.Job, window)
		if err != nil {
			slog.Warn("scan: dedup check failed",
				slog.String("user_id", user.ID),
				slog.String("company", cand.Job.Company),
				slog.Any("error", err))
			continue
		}
		if dup {
			slog.Debug("scan: duplicate target skipped",
				slog.String("user_id", user.ID),
				slog.String("company", cand.Job.Company),
				slog.String("title", cand.Job.Title))
			continue
		}

		if err := o.createApplication(ctx, user, profile, settings, cand); err != nil {
			if errors.Is(err, ErrQuotaExhausted) {
				slog.Info("scan: quota hit during create", slog.String("user_id", user.ID))
				break
			}
			slog.Warn("scan: candidate failed",
				slog.String("user_id", user.ID),
				slog.String("company", cand.Job.Company),
				slog.String("title", cand.Job.Title),
				slog.Any("error", err))
			continue
		}
		created++
		perCompany[key]++
	}
	return created
}

// createApplication generates materials, persists the application, and
// runs it through the approval gate. With manual approval required the
// record stays pending and the user is notified; with approval waived it
// is approved and handed to the executor in the same pass, and only the
// submission outcome is notified.
func (o *Orchestrator) createApplication(ctx context.Context, user User, profile *MatchingProfile,
	settings Settings, cand MatchCandidate) error {
	mats, err := o.materials.GenerateApplication(ctx, *profile, cand.Job, cand)
	if err != nil {
		return fmt.Errorf("materials: %w", err)
	}

	now := time.Now().UTC()
	app := &PendingApplication{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		JobExternalID:    cand.Job.ExternalID,
		JobTitle:         cand.Job.Title,
		Company:          cand.Job.Company,
		Location:         cand.Job.Location,
		Description:      engine.TruncateRunes(cand.Job.Description, DescriptionSnapshotLimit, ""),
		SalaryMin:        cand.Job.SalaryMin,
		SalaryMax:        cand.Job.SalaryMax,
		JobType:          cand.Job.JobType,
		JobURL:           cand.Job.URL,
		MatchScore:       cand.Similarity,
		MatchReasons:     cand.Reasons,
		MatchMethod:      cand.Method,
		AutoScore:        cand.AutoScore,
		CoverLetter:      mats.CoverLetter,
		CVCustomizations: mats.CVCustomizations,
		Summary:          mats.Summary,
		Confidence:       mats.Confidence,
		Status:           StatusPendingApproval,
		CreatedAt:        now,
		ExpiresAt:        now.Add(PendingTTL),
	}
	if err := o.store.CreatePending(ctx, app, settings.MaxDaily); err != nil {
		return err
	}
	engine.IncrApplicationsCreated()

	o.appendLog(ctx, &ApplicationLog{
		UserID:       user.ID,
		PendingID:    app.ID,
		ActivityType: "application_created",
		Description:  fmt.Sprintf("Created application for %s at %s", app.JobTitle, app.Company),
		Data: map[string]any{
			"match_score": app.MatchScore,
			"auto_score":  app.AutoScore,
			"method":      app.MatchMethod,
		},
		Success: true,
	})

	if settings.RequireManualApproval {
		n := buildApprovalNotification(app)
		if settings.NotifyOnMatch {
			n.Email = profile.Email
		}
		o.notify(ctx, n)
		return nil
	}

	approved, err := o.store.ApprovePending(ctx, user.ID, app.ID, "", now)
	if err != nil {
		return fmt.Errorf("auto-approve: %w", err)
	}

	notifyEmail := ""
	if settings.NotifyOnSubmit {
		notifyEmail = profile.Email
	}
	if _, err := o.executor.Submit(ctx, approved, notifyEmail); err != nil {
		// Already recorded as FAILED with its log and notification; the
		// application still counts against the day's quota.
		slog.Warn("scan: auto-submission failed",
			slog.String("pending", app.ID), slog.Any("error", err))
	}
	return nil
}

// TriggerManualScan runs the pipeline for one user right now, outside
// the schedule. Eligibility gating is skipped; quota and deduplication
// are enforced exactly as in a scheduled cycle.
func (o *Orchestrator) TriggerManualScan(ctx context.Context, userID string) (int, error) {
	user, err := o.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	slog.Info("manual scan triggered", slog.String("user_id", userID))
	return o.scanUser(ctx, *user, true)
}

func (o *Orchestrator) appendLog(ctx context.Context, entry *ApplicationLog) {
	if err := o.store.AppendLog(ctx, entry); err != nil {
		slog.Warn("append log failed",
			slog.String("user_id", entry.UserID), slog.Any("error", err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, n *Notification) {
	if err := o.dispatcher.Notify(ctx, n); err != nil {
		slog.Warn("notification failed",
			slog.String("type", n.Type), slog.Any("error", err))
	}
}
