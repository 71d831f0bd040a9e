package autoapply

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store holds the pgx connection pool for all engine state: users,
// profiles, settings, postings, pending applications, logs, notifications.
type Store struct {
	pool *pgxpool.Pool
}

// Connect creates a pgx pool and runs schema migrations.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &Store{pool: pool}
	if err := db.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("postgres connected", slog.String("addr", config.ConnConfig.Host))
	return db, nil
}

func (db *Store) Close() {
	db.pool.Close()
}

func (db *Store) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		slog.Info("migration applied", slog.String("file", entry.Name()))
	}
	return nil
}

// --- Users ---

const userColumns = `u.id, u.email, u.full_name, u.is_active, u.is_verified,
	COALESCE(s.enabled, FALSE), COALESCE(p.completion_percent, 0), u.last_scan_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &u.IsVerified,
		&u.AutoApplyEnabled, &u.CompletionPercent, &u.LastScanAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM autoapply_users u
		 LEFT JOIN autoapply_settings s ON s.user_id = u.id
		 LEFT JOIN autoapply_profiles p ON p.user_id = u.id
		 WHERE u.id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return u, nil
}

// EligibleUsers returns accounts that pass the cheap SQL-side eligibility
// filters: active, verified, auto-apply enabled, profile complete enough,
// and not scanned since scannedBefore. Quota and application-window checks
// happen per user in the scheduler.
func (db *Store) EligibleUsers(ctx context.Context, scannedBefore time.Time) ([]User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+`
		 FROM autoapply_users u
		 JOIN autoapply_settings s ON s.user_id = u.id
		 LEFT JOIN autoapply_profiles p ON p.user_id = u.id
		 WHERE u.is_active AND u.is_verified AND s.enabled
		   AND COALESCE(p.completion_percent, 0) >= $1
		   AND (u.last_scan_at IS NULL OR u.last_scan_at < $2)
		 ORDER BY u.last_scan_at ASC NULLS FIRST`,
		MinProfileCompletion, scannedBefore)
	if err != nil {
		return nil, fmt.Errorf("query eligible users: %w", err)
	}
	defer rows.Close()

	var results []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *u)
	}
	return results, rows.Err()
}

func (db *Store) UpdateLastScan(ctx context.Context, userID string, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE autoapply_users SET last_scan_at = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("update last scan %s: %w", userID, err)
	}
	return nil
}

// --- Matching profiles ---

type profileExperience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
}

type profileEducation struct {
	Degree string `json:"degree"`
	Field  string `json:"field"`
	School string `json:"school"`
}

// GetMatchingProfile assembles the scoring text and structured fields for
// one user. Returns ErrNotFound when the user has no profile row.
func (db *Store) GetMatchingProfile(ctx context.Context, userID string) (*MatchingProfile, error) {
	var (
		p          MatchingProfile
		summary    string
		skillsJSON []byte
		expJSON    []byte
		eduJSON    []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.full_name, p.summary, p.skills,
		        p.years_experience, p.career_goals, p.preferred_work_mode,
		        p.experience, p.education, p.completion_percent
		 FROM autoapply_profiles p
		 JOIN autoapply_users u ON u.id = p.user_id
		 WHERE p.user_id = $1`, userID,
	).Scan(&p.UserID, &p.Email, &p.FullName, &summary, &skillsJSON,
		&p.YearsExperience, &p.CareerGoals, &p.PreferredWorkMode,
		&expJSON, &eduJSON, &p.CompletionPercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	_ = json.Unmarshal(skillsJSON, &p.Skills)
	var exp []profileExperience
	var edu []profileEducation
	_ = json.Unmarshal(expJSON, &exp)
	_ = json.Unmarshal(eduJSON, &edu)

	p.Text = buildProfileText(summary, p.Skills, exp, edu, p.CareerGoals)
	return &p, nil
}

func buildProfileText(summary string, skills []string, exp []profileExperience, edu []profileEducation, goals string) string {
	var b strings.Builder
	if len(skills) > 0 {
		b.WriteString("Skills: " + strings.Join(skills, ", ") + "\n")
	}
	if summary != "" {
		b.WriteString("Summary: " + summary + "\n")
	}
	for _, e := range exp {
		line := e.Title
		if e.Company != "" {
			line += " at " + e.Company
		}
		if e.Description != "" {
			line += ". " + e.Description
		}
		b.WriteString("Experience: " + line + "\n")
	}
	for _, e := range edu {
		line := e.Degree
		if e.Field != "" {
			line += " in " + e.Field
		}
		if e.School != "" {
			line += ", " + e.School
		}
		b.WriteString("Education: " + line + "\n")
	}
	if goals != "" {
		b.WriteString("Career goals: " + goals)
	}
	return strings.TrimSpace(b.String())
}

// --- Settings ---

// GetSettings returns the stored per-user configuration, or defaults when
// the user has never saved any.
func (db *Store) GetSettings(ctx context.Context, userID string) (Settings, error) {
	s := Settings{UserID: userID}
	var daysJSON, reqJSON, excoJSON, exkwJSON, locJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT enabled, max_daily, max_per_company, min_days_between,
		        window_start_hour, window_end_hour, window_days,
		        min_match_score, required_skills, excluded_companies,
		        excluded_keywords, preferred_locations, remote_only,
		        salary_min, salary_max, require_manual_approval,
		        notify_on_match, notify_on_submit
		 FROM autoapply_settings WHERE user_id = $1`, userID,
	).Scan(&s.Enabled, &s.MaxDaily, &s.MaxPerCompany, &s.MinDaysBetween,
		&s.WindowStartHour, &s.WindowEndHour, &daysJSON,
		&s.MinMatchScore, &reqJSON, &excoJSON, &exkwJSON, &locJSON,
		&s.RemoteOnly, &s.SalaryMin, &s.SalaryMax, &s.RequireManualApproval,
		&s.NotifyOnMatch, &s.NotifyOnSubmit)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultSettings(userID), nil
	}
	if err != nil {
		return s, fmt.Errorf("load settings %s: %w", userID, err)
	}

	_ = json.Unmarshal(daysJSON, &s.WindowDays)
	_ = json.Unmarshal(reqJSON, &s.RequiredSkills)
	_ = json.Unmarshal(excoJSON, &s.ExcludedCompanies)
	_ = json.Unmarshal(exkwJSON, &s.ExcludedKeywords)
	_ = json.Unmarshal(locJSON, &s.PreferredLocations)
	return s, nil
}

func (db *Store) SaveSettings(ctx context.Context, s Settings) error {
	s = s.Normalize()
	daysJSON, _ := json.Marshal(s.WindowDays)
	reqJSON, _ := json.Marshal(s.RequiredSkills)
	excoJSON, _ := json.Marshal(s.ExcludedCompanies)
	exkwJSON, _ := json.Marshal(s.ExcludedKeywords)
	locJSON, _ := json.Marshal(s.PreferredLocations)

	_, err := db.pool.Exec(ctx,
		`INSERT INTO autoapply_settings (
		    user_id, enabled, max_daily, max_per_company, min_days_between,
		    window_start_hour, window_end_hour, window_days, min_match_score,
		    required_skills, excluded_companies, excluded_keywords,
		    preferred_locations, remote_only, salary_min, salary_max,
		    require_manual_approval, notify_on_match, notify_on_submit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (user_id) DO UPDATE SET
		    enabled = EXCLUDED.enabled,
		    max_daily = EXCLUDED.max_daily,
		    max_per_company = EXCLUDED.max_per_company,
		    min_days_between = EXCLUDED.min_days_between,
		    window_start_hour = EXCLUDED.window_start_hour,
		    window_end_hour = EXCLUDED.window_end_hour,
		    window_days = EXCLUDED.window_days,
		    min_match_score = EXCLUDED.min_match_score,
		    required_skills = EXCLUDED.required_skills,
		    excluded_companies = EXCLUDED.excluded_companies,
		    excluded_keywords = EXCLUDED.excluded_keywords,
		    preferred_locations = EXCLUDED.preferred_locations,
		    remote_only = EXCLUDED.remote_only,
		    salary_min = EXCLUDED.salary_min,
		    salary_max = EXCLUDED.salary_max,
		    require_manual_approval = EXCLUDED.require_manual_approval,
		    notify_on_match = EXCLUDED.notify_on_match,
		    notify_on_submit = EXCLUDED.notify_on_submit,
		    updated_at = now()`,
		s.UserID, s.Enabled, s.MaxDaily, s.MaxPerCompany, s.MinDaysBetween,
		s.WindowStartHour, s.WindowEndHour, daysJSON, s.MinMatchScore,
		reqJSON, excoJSON, exkwJSON, locJSON, s.RemoteOnly,
		s.SalaryMin, s.SalaryMax, s.RequireManualApproval,
		s.NotifyOnMatch, s.NotifyOnSubmit)
	if err != nil {
		return fmt.Errorf("save settings %s: %w", s.UserID, err)
	}
	return nil
}

// --- Job postings ---

func (db *Store) UpsertPosting(ctx context.Context, p *JobPosting) (int64, error) {
	skillsJSON, _ := json.Marshal(p.Skills)
	var id int64
	err := db.pool.QueryRow(ctx,
		`INSERT INTO job_postings (source, external_id, title, company, location, description,
		                           skills, salary_min, salary_max, job_type, remote, url, posted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (source, external_id) DO UPDATE SET
		    title = EXCLUDED.title,
		    company = EXCLUDED.company,
		    location = EXCLUDED.location,
		    description = EXCLUDED.description,
		    skills = EXCLUDED.skills,
		    salary_min = EXCLUDED.salary_min,
		    salary_max = EXCLUDED.salary_max,
		    job_type = EXCLUDED.job_type,
		    remote = EXCLUDED.remote,
		    url = EXCLUDED.url,
		    fetched_at = now()
		 RETURNING id`,
		p.Source, p.ExternalID, p.Title, p.Company, p.Location, p.Description,
		skillsJSON, p.SalaryMin, p.SalaryMax, p.JobType, p.Remote, p.URL, p.PostedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert posting %s/%s: %w", p.Source, p.ExternalID, err)
	}
	return id, nil
}

func (db *Store) RecentPostings(ctx context.Context, since time.Time, limit int) ([]JobPosting, error) {
	if limit <= 0 {
		limit = engine.DefaultMaxJobsPerScan
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, source, external_id, title, company, location, description,
		        skills, salary_min, salary_max, job_type, remote, url, posted_at
		 FROM job_postings
		 WHERE posted_at >= $1
		 ORDER BY posted_at DESC
		 LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent postings: %w", err)
	}
	defer rows.Close()

	var results []JobPosting
	for rows.Next() {
		var p JobPosting
		var skillsJSON []byte
		if err := rows.Scan(&p.ID, &p.Source, &p.ExternalID, &p.Title, &p.Company,
			&p.Location, &p.Description, &skillsJSON, &p.SalaryMin, &p.SalaryMax,
			&p.JobType, &p.Remote, &p.URL, &p.PostedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(skillsJSON, &p.Skills)
		results = append(results, p)
	}
	return results, rows.Err()
}

// --- Pending applications ---

const pendingColumns = `id, user_id, job_external_id, job_title, company, location,
	description, salary_min, salary_max, job_type, job_url,
	match_score, match_reasons, match_method, auto_score,
	cover_letter, cv_customizations, summary, confidence,
	status, decision, decision_at, decision_note,
	submission_result, submission_error, processed_at,
	created_at, expires_at`

func scanPending(row pgx.Row) (*PendingApplication, error) {
	var (
		app         PendingApplication
		reasonsJSON []byte
		cvJSON      []byte
		resultJSON  []byte
	)
	err := row.Scan(&app.ID, &app.UserID, &app.JobExternalID, &app.JobTitle,
		&app.Company, &app.Location, &app.Description, &app.SalaryMin, &app.SalaryMax,
		&app.JobType, &app.JobURL,
		&app.MatchScore, &reasonsJSON, &app.MatchMethod, &app.AutoScore,
		&app.CoverLetter, &cvJSON, &app.Summary, &app.Confidence,
		&app.Status, &app.Decision, &app.DecisionAt, &app.DecisionNote,
		&resultJSON, &app.SubmissionError, &app.ProcessedAt,
		&app.CreatedAt, &app.ExpiresAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(reasonsJSON, &app.MatchReasons)
	_ = json.Unmarshal(cvJSON, &app.CVCustomizations)
	if len(resultJSON) > 0 {
		var res SubmissionResult
		if json.Unmarshal(resultJSON, &res) == nil {
			app.SubmissionResult = &res
		}
	}
	return &app, nil
}

// CreatePending inserts a new application inside a transaction that locks
// the user row and re-checks the daily quota. Concurrent creates for the
// same user serialize here, so the quota holds even when a manual trigger
// races the scheduled cycle. Returns ErrQuotaExhausted when the day's
// budget is already spent.
func (db *Store) CreatePending(ctx context.Context, app *PendingApplication, maxDaily int) error {
	reasonsJSON, _ := json.Marshal(app.MatchReasons)
	cvJSON, _ := json.Marshal(app.CVCustomizations)
	dayStart := app.CreatedAt.UTC().Truncate(24 * time.Hour)

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM autoapply_users WHERE id = $1 FOR UPDATE`, app.UserID,
	).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user %s: %w", app.UserID, err)
	}

	var today int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_applications
		 WHERE user_id = $1 AND created_at >= $2 AND status NOT IN ($3, $4)`,
		app.UserID, dayStart, StatusRejected, StatusExpired,
	).Scan(&today)
	if err != nil {
		return fmt.Errorf("count today: %w", err)
	}
	if today >= maxDaily {
		return ErrQuotaExhausted
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO pending_applications (
		    id, user_id, job_external_id, job_title, company, location, description,
		    salary_min, salary_max, job_type, job_url, target_key,
		    match_score, match_reasons, match_method, auto_score,
		    cover_letter, cv_customizations, summary, confidence,
		    status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		app.ID, app.UserID, app.JobExternalID, app.JobTitle, app.Company,
		app.Location, app.Description, app.SalaryMin, app.SalaryMax,
		app.JobType, app.JobURL, engine.CanonicalTargetKey(app.Company, app.JobTitle),
		app.MatchScore, reasonsJSON, app.MatchMethod, app.AutoScore,
		app.CoverLetter, cvJSON, app.Summary, app.Confidence,
		app.Status, app.CreatedAt, app.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert pending: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

// GetPending returns one application scoped to its owner.
func (db *Store) GetPending(ctx context.Context, userID, pendingID string) (*PendingApplication, error) {
	app, err := scanPending(db.pool.QueryRow(ctx,
		`SELECT `+pendingColumns+` FROM pending_applications
		 WHERE id = $1 AND user_id = $2`, pendingID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending %s: %w", pendingID, err)
	}
	return app, nil
}

// ListPending returns a user's applications newest first. An empty status
// means all states.
func (db *Store) ListPending(ctx context.Context, userID, status string, limit int) ([]PendingApplication, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+pendingColumns+` FROM pending_applications
		 WHERE user_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3`, userID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending %s: %w", userID, err)
	}
	defer rows.Close()

	var results []PendingApplication
	for rows.Next() {
		app, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *app)
	}
	return results, rows.Err()
}

// CountActiveToday counts applications created since the UTC start of the
// day that still consume quota (everything except rejected and expired).
func (db *Store) CountActiveToday(ctx context.Context, userID string, now time.Time) (int, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_applications
		 WHERE user_id = $1 AND created_at >= $2 AND status NOT IN ($3, $4)`,
		userID, dayStart, StatusRejected, StatusExpired,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active today %s: %w", userID, err)
	}
	return n, nil
}

// HasRecentTarget reports whether any application row, in any state, was
// created for the same normalized (company, title) pair within the window.
func (db *Store) HasRecentTarget(ctx context.Context, userID, company, title string, since time.Time) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM pending_applications
		   WHERE user_id = $1 AND target_key = $2 AND created_at >= $3)`,
		userID, engine.CanonicalTargetKey(company, title), since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent target: %w", err)
	}
	return exists, nil
}

// transitionConflict classifies a zero-row conditional update: the row is
// either missing or in a state that does not allow the attempted step.
func (db *Store) transitionConflict(ctx context.Context, userID, pendingID, attempted string) error {
	var current string
	err := db.pool.QueryRow(ctx,
		`SELECT status FROM pending_applications
		 WHERE id = $1 AND ($2 = '' OR user_id = $2)`,
		pendingID, userID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load status %s: %w", pendingID, err)
	}
	return &StateConflictError{PendingID: pendingID, Current: current, Attempted: attempted}
}

// ApprovePending moves pending_approval to approved. A non-empty
// coverLetter replaces the generated one. The conditional WHERE makes the
// transition atomic: a row already decided or expired yields a
// StateConflictError naming its current state.
func (db *Store) ApprovePending(ctx context.Context, userID, pendingID, coverLetter string, decidedAt time.Time) (*PendingApplication, error) {
	app, err := scanPending(db.pool.QueryRow(ctx,
		`UPDATE pending_applications
		 SET status = $4, decision = $4, decision_at = $5,
		     cover_letter = CASE WHEN $6 <> '' THEN $6 ELSE cover_letter END
		 WHERE id = $1 AND user_id = $2 AND status = $3
		 RETURNING `+pendingColumns,
		pendingID, userID, StatusPendingApproval, StatusApproved, decidedAt, coverLetter))
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("approve %s: %w", pendingID, err)
	}
	return nil, db.transitionConflict(ctx, userID, pendingID, StatusApproved)
}

// RejectPending moves pending_approval to rejected, recording the note.
func (db *Store) RejectPending(ctx context.Context, userID, pendingID, note string, decidedAt time.Time) (*PendingApplication, error) {
	app, err := scanPending(db.pool.QueryRow(ctx,
		`UPDATE pending_applications
		 SET status = $4, decision = $4, decision_at = $5, decision_note = $6
		 WHERE id = $1 AND user_id = $2 AND status = $3
		 RETURNING `+pendingColumns,
		pendingID, userID, StatusPendingApproval, StatusRejected, decidedAt, note))
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reject %s: %w", pendingID, err)
	}
	return nil, db.transitionConflict(ctx, userID, pendingID, StatusRejected)
}

// MarkSubmitted moves approved to submitted with the delivery receipt.
func (db *Store) MarkSubmitted(ctx context.Context, pendingID string, result SubmissionResult, processedAt time.Time) error {
	resultJSON, _ := json.Marshal(result)
	tag, err := db.pool.Exec(ctx,
		`UPDATE pending_applications
		 SET status = $3, submission_result = $4, processed_at = $5
		 WHERE id = $1 AND status = $2`,
		pendingID, StatusApproved, StatusSubmitted, resultJSON, processedAt)
	if err != nil {
		return fmt.Errorf("mark submitted %s: %w", pendingID, err)
	}
	if tag.RowsAffected() == 0 {
		return db.transitionConflict(ctx, "", pendingID, StatusSubmitted)
	}
	return nil
}

// MarkFailed moves approved to failed, keeping the delivery error text.
func (db *Store) MarkFailed(ctx context.Context, pendingID, submissionErr string, processedAt time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE pending_applications
		 SET status = $3, submission_error = $4, processed_at = $5
		 WHERE id = $1 AND status = $2`,
		pendingID, StatusApproved, StatusFailed, submissionErr, processedAt)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", pendingID, err)
	}
	if tag.RowsAffected() == 0 {
		return db.transitionConflict(ctx, "", pendingID, StatusFailed)
	}
	return nil
}

// SweepExpired flips every pending_approval row past its deadline to
// expired in one statement and returns the affected rows. Running it twice
// changes nothing on the second pass.
func (db *Store) SweepExpired(ctx context.Context, now time.Time) ([]PendingApplication, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE pending_applications
		 SET status = $2
		 WHERE status = $1 AND expires_at < $3
		 RETURNING id, user_id, job_title, company, expires_at`,
		StatusPendingApproval, StatusExpired, now)
	if err != nil {
		return nil, fmt.Errorf("sweep expired: %w", err)
	}
	defer rows.Close()

	var results []PendingApplication
	for rows.Next() {
		app := PendingApplication{Status: StatusExpired}
		if err := rows.Scan(&app.ID, &app.UserID, &app.JobTitle, &app.Company, &app.ExpiresAt); err != nil {
			return nil, err
		}
		results = append(results, app)
	}
	return results, rows.Err()
}

// --- Audit logs ---

func (db *Store) AppendLog(ctx context.Context, entry *ApplicationLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	dataJSON := []byte("{}")
	if entry.Data != nil {
		dataJSON, _ = json.Marshal(entry.Data)
	}
	var pendingID any
	if entry.PendingID != "" {
		pendingID = entry.PendingID
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO auto_application_logs
		    (user_id, pending_id, activity_type, description, data, success, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		entry.UserID, pendingID, entry.ActivityType, entry.Description,
		dataJSON, entry.Success, entry.ErrorMessage, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// --- Notifications ---

func (db *Store) CreateNotification(ctx context.Context, n *Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var pendingID any
	if n.PendingID != "" {
		pendingID = n.PendingID
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO job_match_notifications
		    (id, user_id, pending_id, type, title, message, action_url,
		     job_title, company, match_score, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.UserID, pendingID, n.Type, n.Title, n.Message, n.ActionURL,
		n.JobTitle, n.Company, n.MatchScore, n.ExpiresAt, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (db *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, COALESCE(pending_id::text, ''), type, title, message, action_url,
		        job_title, company, match_score, is_read, read_at,
		        email_sent, email_sent_at, expires_at, created_at
		 FROM job_match_notifications
		 WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
		 ORDER BY created_at DESC
		 LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications %s: %w", userID, err)
	}
	defer rows.Close()

	var results []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.PendingID, &n.Type, &n.Title,
			&n.Message, &n.ActionURL, &n.JobTitle, &n.Company, &n.MatchScore,
			&n.IsRead, &n.ReadAt, &n.EmailSent, &n.EmailSentAt,
			&n.ExpiresAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

// MarkNotificationRead is idempotent: re-reading an already read
// notification is not an error.
func (db *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE job_match_notifications
		 SET is_read = TRUE, read_at = now()
		 WHERE id = $1 AND user_id = $2 AND is_read = FALSE`,
		notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", notificationID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM job_match_notifications WHERE id = $1 AND user_id = $2)`,
		notificationID, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check notification %s: %w", notificationID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (db *Store) MarkNotificationEmailed(ctx context.Context, notificationID string, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE job_match_notifications
		 SET email_sent = TRUE, email_sent_at = $2
		 WHERE id = $1`, notificationID, at)
	if err != nil {
		return fmt.Errorf("mark emailed %s: %w", notificationID, err)
	}
	return nil
}

// --- Analytics ---

// GetAnalytics aggregates a user's applications over the trailing window.
func (db *Store) GetAnalytics(ctx context.Context, userID string, days int) (*Analytics, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	a := &Analytics{UserID: userID, Days: days, StatusCounts: map[string]int{}}
	rows, err := db.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(AVG(match_score), 0)
		 FROM pending_applications
		 WHERE user_id = $1 AND created_at >= $2
		 GROUP BY status`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("query analytics %s: %w", userID, err)
	}
	defer rows.Close()

	var scoreSum float64
	for rows.Next() {
		var status string
		var n int
		var avg float64
		if err := rows.Scan(&status, &n, &avg); err != nil {
			return nil, err
		}
		a.StatusCounts[status] = n
		a.TotalCreated += n
		scoreSum += avg * float64(n)
		switch status {
		case StatusPendingApproval:
			a.TotalPending = n
		case StatusSubmitted:
			a.TotalSubmitted = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if a.TotalCreated > 0 {
		a.AvgMatchScore = scoreSum / float64(a.TotalCreated)
		a.SuccessRate = float64(a.TotalSubmitted) / float64(a.TotalCreated)
	}
	return a, nil
}
