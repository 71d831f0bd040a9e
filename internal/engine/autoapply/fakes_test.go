package autoapply

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// fakeStore is an in-memory stand-in for the Postgres store, mirroring
// its transition and quota semantics closely enough for component tests.
type fakeStore struct {
	mu            sync.Mutex
	eligible      []User
	users         map[string]User
	settings      map[string]Settings
	profiles      map[string]MatchingProfile
	pending       map[string]*PendingApplication
	logs          []ApplicationLog
	notifications []Notification
	lastScan      map[string]time.Time
	postings      []JobPosting

	errEligible error
	errCreate   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]User),
		settings: make(map[string]Settings),
		profiles: make(map[string]MatchingProfile),
		pending:  make(map[string]*PendingApplication),
		lastScan: make(map[string]time.Time),
	}
}

func (f *fakeStore) addUser(u User, s Settings, p MatchingProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	f.settings[u.ID] = s
	f.profiles[u.ID] = p
	f.eligible = append(f.eligible, u)
}

func (f *fakeStore) EligibleUsers(_ context.Context, _ time.Time) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errEligible != nil {
		return nil, f.errEligible
	}
	out := make([]User, len(f.eligible))
	copy(out, f.eligible)
	return out, nil
}

func (f *fakeStore) GetUser(_ context.Context, userID string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) GetSettings(_ context.Context, userID string) (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[userID]
	if !ok {
		return DefaultSettings(userID), nil
	}
	return s, nil
}

func (f *fakeStore) GetMatchingProfile(_ context.Context, userID string) (*MatchingProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) countActiveTodayLocked(userID string, now time.Time) int {
	day := now.UTC().Truncate(24 * time.Hour)
	n := 0
	for _, app := range f.pending {
		if app.UserID != userID {
			continue
		}
		if app.Status == StatusRejected || app.Status == StatusExpired {
			continue
		}
		if !app.CreatedAt.UTC().Truncate(24 * time.Hour).Equal(day) {
			continue
		}
		n++
	}
	return n
}

func (f *fakeStore) CountActiveToday(_ context.Context, userID string, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countActiveTodayLocked(userID, now), nil
}

func (f *fakeStore) CreatePending(_ context.Context, app *PendingApplication, maxDaily int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errCreate != nil {
		return f.errCreate
	}
	if _, ok := f.users[app.UserID]; !ok {
		return ErrNotFound
	}
	if f.countActiveTodayLocked(app.UserID, app.CreatedAt) >= maxDaily {
		return ErrQuotaExhausted
	}
	cp := *app
	f.pending[app.ID] = &cp
	return nil
}

func (f *fakeStore) GetPending(_ context.Context, userID, pendingID string) (*PendingApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.pending[pendingID]
	if !ok || app.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (f *fakeStore) ListPending(_ context.Context, userID, status string, _ int) ([]PendingApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PendingApplication
	for _, app := range f.pending {
		if app.UserID != userID {
			continue
		}
		if status != "" && app.Status != status {
			continue
		}
		out = append(out, *app)
	}
	return out, nil
}

func (f *fakeStore) HasRecentTarget(_ context.Context, userID, company, title string, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := engine.CanonicalTargetKey(company, title)
	for _, app := range f.pending {
		if app.UserID != userID {
			continue
		}
		if engine.CanonicalTargetKey(app.Company, app.JobTitle) != key {
			continue
		}
		if app.CreatedAt.Before(since) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) ApprovePending(_ context.Context, userID, pendingID, coverLetter string, decidedAt time.Time) (*PendingApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.pending[pendingID]
	if !ok || app.UserID != userID {
		return nil, ErrNotFound
	}
	if app.Status != StatusPendingApproval {
		return nil, &StateConflictError{PendingID: pendingID, Current: app.Status, Attempted: StatusApproved}
	}
	app.Status = StatusApproved
	app.Decision = StatusApproved
	app.DecisionAt = &decidedAt
	if coverLetter != "" {
		app.CoverLetter = coverLetter
	}
	cp := *app
	return &cp, nil
}

func (f *fakeStore) RejectPending(_ context.Context, userID, pendingID, note string, decidedAt time.Time) (*PendingApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.pending[pendingID]
	if !ok || app.UserID != userID {
		return nil, ErrNotFound
	}
	if app.Status != StatusPendingApproval {
		return nil, &StateConflictError{PendingID: pendingID, Current: app.Status, Attempted: StatusRejected}
	}
	app.Status = StatusRejected
	app.Decision = StatusRejected
	app.DecisionAt = &decidedAt
	app.DecisionNote = note
	cp := *app
	return &cp, nil
}

func (f *fakeStore) MarkSubmitted(_ context.Context, pendingID string, result SubmissionResult, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.pending[pendingID]
	if !ok {
		return ErrNotFound
	}
	if app.Status != StatusApproved {
		return &StateConflictError{PendingID: pendingID, Current: app.Status, Attempted: StatusSubmitted}
	}
	app.Status = StatusSubmitted
	app.SubmissionResult = &result
	app.ProcessedAt = &processedAt
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, pendingID, submissionErr string, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.pending[pendingID]
	if !ok {
		return ErrNotFound
	}
	if app.Status != StatusApproved {
		return &StateConflictError{PendingID: pendingID, Current: app.Status, Attempted: StatusFailed}
	}
	app.Status = StatusFailed
	app.SubmissionError = submissionErr
	app.ProcessedAt = &processedAt
	return nil
}

func (f *fakeStore) SweepExpired(_ context.Context, now time.Time) ([]PendingApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var swept []PendingApplication
	for _, app := range f.pending {
		if app.Status != StatusPendingApproval || !app.ExpiresAt.Before(now) {
			continue
		}
		app.Status = StatusExpired
		swept = append(swept, *app)
	}
	return swept, nil
}

func (f *fakeStore) UpdateLastScan(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScan[userID] = at
	return nil
}

func (f *fakeStore) AppendLog(_ context.Context, entry *ApplicationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeStore) MarkNotificationEmailed(_ context.Context, notificationID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == notificationID {
			f.notifications[i].EmailSent = true
			f.notifications[i].EmailSentAt = &at
		}
	}
	return nil
}

func (f *fakeStore) RecentPostings(_ context.Context, _ time.Time, limit int) ([]JobPosting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]JobPosting, len(f.postings))
	copy(out, f.postings)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// notificationsOfType returns the stored notifications matching one type.
func (f *fakeStore) notificationsOfType(typ string) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Notification
	for _, n := range f.notifications {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// logsOfType returns the audit entries matching one activity type.
func (f *fakeStore) logsOfType(typ string) []ApplicationLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ApplicationLog
	for _, l := range f.logs {
		if l.ActivityType == typ {
			out = append(out, l)
		}
	}
	return out
}

func (f *fakeStore) pendingByStatus(status string) []PendingApplication {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PendingApplication
	for _, app := range f.pending {
		if app.Status == status {
			out = append(out, *app)
		}
	}
	return out
}

// stubScorer returns preset scores positionally, padding with zeros.
type stubScorer struct {
	scores []float64
}

func (s *stubScorer) Name() string { return "stub" }

func (s *stubScorer) ScoreBatch(_ context.Context, _ string, docs []string) ([]float64, error) {
	out := make([]float64, len(docs))
	copy(out, s.scores)
	return out, nil
}

// fakeSource serves a fixed posting batch.
type fakeSource struct {
	jobs []JobPosting
	err  error
}

func (f *fakeSource) FetchFreshJobs(_ context.Context, _ Criteria) ([]JobPosting, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs, nil
}

// fakeMaterials generates deterministic materials without an LLM.
type fakeMaterials struct {
	err   error
	calls int
}

func (f *fakeMaterials) GenerateApplication(_ context.Context, _ MatchingProfile, job JobPosting, match MatchCandidate) (*GeneratedMaterials, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &GeneratedMaterials{
		CoverLetter: "Dear " + job.Company + " team",
		CVCustomizations: CVCustomizations{
			SkillsToHighlight: []string{"go"},
			SummaryFocus:      "backend work",
		},
		Summary:    fmt.Sprintf("Auto-generated application for %s at %s (match %.0f%%)", job.Title, job.Company, match.AutoScore*100),
		Confidence: 0.8,
	}, nil
}

// fakeChannel records sends and returns a preset outcome.
type fakeChannel struct {
	mu    sync.Mutex
	res   *SubmissionResult
	err   error
	calls int
}

func (f *fakeChannel) Send(_ context.Context, _ *PendingApplication) (*SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		cp := *f.res
		return &cp, nil
	}
	return &SubmissionResult{
		Method:         "email",
		Status:         "sent",
		Recipient:      "jobs@example.com",
		ConfirmationID: uuid.NewString(),
		SentAt:         time.Now().UTC(),
	}, nil
}

// fakeMailer records outgoing notification emails.
type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeMailer) SendEmail(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

// --- builders ---

func testUser(id string) User {
	return User{
		ID:                id,
		Email:             id + "@example.com",
		FullName:          "Test User",
		IsActive:          true,
		IsVerified:        true,
		AutoApplyEnabled:  true,
		CompletionPercent: 90,
	}
}

func testProfile(id string) MatchingProfile {
	return MatchingProfile{
		UserID:            id,
		Email:             id + "@example.com",
		FullName:          "Test User",
		Text:              "Skills: go, postgresql, kubernetes\nSummary: backend engineer building distributed systems",
		Skills:            []string{"go", "postgresql", "kubernetes"},
		YearsExperience:   5,
		CareerGoals:       "backend architecture",
		PreferredWorkMode: "remote",
		CompletionPercent: 90,
	}
}

func testSettings(id string) Settings {
	s := DefaultSettings(id)
	s.Enabled = true
	s.MinMatchScore = 0.5
	return s
}

func testJob(id int64, company, title string) JobPosting {
	return JobPosting{
		ID:          id,
		Source:      "remotive",
		ExternalID:  fmt.Sprintf("ext-%d", id),
		Title:       title,
		Company:     company,
		Location:    "Remote",
		Description: "Backend role building services in Go with PostgreSQL and Kubernetes.",
		Skills:      []string{"go", "postgresql"},
		JobType:     "full time",
		Remote:      true,
		URL:         fmt.Sprintf("https://example.com/jobs/%d", id),
		PostedAt:    time.Now().UTC().Add(-24 * time.Hour),
	}
}

// seedApp plants an application row directly in the fake store.
func seedApp(store *fakeStore, userID, company, title, status string, createdAt time.Time) *PendingApplication {
	app := &PendingApplication{
		ID:        uuid.NewString(),
		UserID:    userID,
		JobTitle:  title,
		Company:   company,
		Status:    status,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(PendingTTL),
	}
	store.mu.Lock()
	store.pending[app.ID] = app
	store.mu.Unlock()
	return app
}

// newTestOrchestrator wires an orchestrator over the fakes with a real
// match engine, dedup guard, dispatcher, and executor.
func newTestOrchestrator(store *fakeStore, scorer SimilarityScorer, source JobSourceAdapter,
	materials MaterialsGenerator, channel SubmissionChannel) *Orchestrator {
	dispatcher := NewStoreDispatcher(store, nil)
	executor := NewSubmissionExecutor(store, channel, nil, dispatcher)
	return NewOrchestrator(engine.Config{}, store, store, source,
		NewMatchEngine(scorer, nil), materials, NewDedupGuard(store), executor, dispatcher)
}
