// Package autoapply implements the auto-application matching and approval
// engine: a periodic scan over eligible users, scoring of fresh job postings
// against each user's profile, generation of application materials, and a
// persisted approval/submission lifecycle with per-user quotas, a 30-day
// duplicate window, and 7-day expiry.
package autoapply

import (
	"strings"
	"time"
)

// PendingApplication lifecycle states.
const (
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusSubmitted       = "submitted"
	StatusFailed          = "failed"
	StatusRejected        = "rejected"
	StatusExpired         = "expired"
)

// validStatus is the set of accepted lifecycle states.
var validStatus = map[string]bool{
	StatusPendingApproval: true,
	StatusApproved:        true,
	StatusSubmitted:       true,
	StatusFailed:          true,
	StatusRejected:        true,
	StatusExpired:         true,
}

// terminalStatus marks states that accept no further transitions.
var terminalStatus = map[string]bool{
	StatusSubmitted: true,
	StatusFailed:    true,
	StatusRejected:  true,
	StatusExpired:   true,
}

// validTransitions is the full lifecycle table. Anything not listed here
// is a state conflict, never a silent no-op.
var validTransitions = map[string][]string{
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved:        {StatusSubmitted, StatusFailed},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether s accepts no further transitions.
func IsTerminalStatus(s string) bool { return terminalStatus[s] }

// PendingTTL is how long a created application waits for a decision
// before the sweeper expires it.
const PendingTTL = 7 * 24 * time.Hour

// DedupWindow is the lookback used to avoid re-targeting the same
// (company, title) for a user.
const DedupWindow = 30 * 24 * time.Hour

// DescriptionSnapshotLimit caps the stored job description copy.
const DescriptionSnapshotLimit = 2000

// MinProfileCompletion is the profile completeness floor, in percent,
// below which the eligibility scan skips a user.
const MinProfileCompletion = 70

// JobPosting is a normalized posting from the shared postings table.
type JobPosting struct {
	ID          int64     `json:"id"`
	Source      string    `json:"source"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Skills      []string  `json:"skills"`
	SalaryMin   *int      `json:"salary_min,omitempty"`
	SalaryMax   *int      `json:"salary_max,omitempty"`
	JobType     string    `json:"job_type"`
	Remote      bool      `json:"remote"`
	URL         string    `json:"url"`
	PostedAt    time.Time `json:"posted_at"`
}

// Text assembles the posting fields scored against a profile.
func (j JobPosting) Text() string {
	parts := []string{
		"Position: " + j.Title,
		"Company: " + j.Company,
	}
	if j.Description != "" {
		parts = append(parts, "Description: "+j.Description)
	}
	if len(j.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(j.Skills, ", "))
	}
	if j.Location != "" {
		parts = append(parts, "Location: "+j.Location)
	}
	return strings.Join(parts, "\n")
}

// MatchingProfile is the ProfileReader output: assembled text for
// similarity scoring plus the structured fields the bonus heuristics need.
type MatchingProfile struct {
	UserID            string   `json:"user_id"`
	Email             string   `json:"email"`
	FullName          string   `json:"full_name"`
	Text              string   `json:"text"`
	Skills            []string `json:"skills"`
	YearsExperience   int      `json:"years_experience"`
	CareerGoals       string   `json:"career_goals"`
	PreferredWorkMode string   `json:"preferred_work_mode"` // remote, hybrid, onsite, empty = no preference
	CompletionPercent int      `json:"completion_percent"`
}

// Criteria is the per-user matching configuration, built fresh each cycle
// from the stored settings and never mutated afterward.
type Criteria struct {
	MinMatchScore      float64
	MaxDailyApps       int
	PreferredLocations []string
	RequiredSkills     []string
	ExcludedCompanies  []string
	ExcludedKeywords   []string
	SalaryMin          *int
	SalaryMax          *int
	RemoteOnly         bool
	ExperienceMatch    bool
}

// MatchCandidate is an in-memory (profile, job) pairing that passed the
// hard filters but has not been persisted yet.
type MatchCandidate struct {
	Job        JobPosting `json:"job"`
	Similarity float64    `json:"similarity"`
	AutoScore  float64    `json:"auto_score"`
	Reasons    []string   `json:"reasons"`
	Method     string     `json:"method"`
}

// CVCustomizations are the per-job resume adjustments suggested by the
// materials generator.
type CVCustomizations struct {
	SkillsToHighlight      []string `json:"skills_to_highlight"`
	ExperiencesToEmphasize []string `json:"experiences_to_emphasize"`
	SummaryFocus           string   `json:"summary_focus"`
	KeywordsToInclude      []string `json:"keywords_to_include"`
}

// GeneratedMaterials is the output of the materials generator for one
// (profile, job) pair.
type GeneratedMaterials struct {
	CoverLetter      string           `json:"cover_letter"`
	CVCustomizations CVCustomizations `json:"cv_customizations"`
	Summary          string           `json:"summary"`
	Confidence       float64          `json:"confidence"`
}

// SubmissionResult describes one successful delivery to an employer channel.
type SubmissionResult struct {
	Method         string    `json:"method"`
	Status         string    `json:"status"`
	Recipient      string    `json:"recipient"`
	ConfirmationID string    `json:"confirmation_id"`
	SentAt         time.Time `json:"sent_at"`
}

// PendingApplication is the persisted lifecycle entity. Job fields are a
// snapshot taken at creation time; the posting may change or disappear
// afterwards without affecting the application record.
type PendingApplication struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	JobExternalID string   `json:"job_external_id"`
	JobTitle      string   `json:"job_title"`
	Company       string   `json:"company"`
	Location      string   `json:"location"`
	Description   string   `json:"description"`
	SalaryMin     *int     `json:"salary_min,omitempty"`
	SalaryMax     *int     `json:"salary_max,omitempty"`
	JobType       string   `json:"job_type"`
	JobURL        string   `json:"job_url"`
	MatchScore    float64  `json:"match_score"`
	MatchReasons  []string `json:"match_reasons"`
	MatchMethod   string   `json:"match_method"`
	AutoScore     float64  `json:"auto_score"`

	CoverLetter      string           `json:"cover_letter"`
	CVCustomizations CVCustomizations `json:"cv_customizations"`
	Summary          string           `json:"summary"`
	Confidence       float64          `json:"confidence"`

	Status       string     `json:"status"`
	Decision     string     `json:"decision,omitempty"` // approved or rejected, empty until decided
	DecisionAt   *time.Time `json:"decision_at,omitempty"`
	DecisionNote string     `json:"decision_note,omitempty"`

	SubmissionResult *SubmissionResult `json:"submission_result,omitempty"`
	SubmissionError  string            `json:"submission_error,omitempty"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ApplicationLog is an append-only audit entry. Exactly one is written for
// every state-changing operation, success or failure.
type ApplicationLog struct {
	ID           int64          `json:"id"`
	UserID       string         `json:"user_id"`
	PendingID    string         `json:"pending_id,omitempty"`
	ActivityType string         `json:"activity_type"`
	Description  string         `json:"description"`
	Data         map[string]any `json:"data,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Notification types emitted by the engine.
const (
	NotifyNewMatch    = "new_match"
	NotifyReady       = "application_ready"
	NotifyApproval    = "approval_required"
	NotifySubmitted   = "application_submitted"
	NotifyFailed      = "application_failed"
	NotifyScanSummary = "scan_summary"
)

// Notification is a persisted user-facing notification row. Read and
// acknowledged by the outer dashboard; the engine only creates them.
// Email is a transient delivery hint set by the caller when the user's
// settings ask for an email copy; it is never persisted.
type Notification struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Email       string     `json:"-"`
	PendingID   string     `json:"pending_id,omitempty"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	ActionURL   string     `json:"action_url,omitempty"`
	JobTitle    string     `json:"job_title,omitempty"`
	Company     string     `json:"company,omitempty"`
	MatchScore  float64    `json:"match_score,omitempty"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	EmailSent   bool       `json:"email_sent"`
	EmailSentAt *time.Time `json:"email_sent_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// User is the engine's read model of an account row.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	FullName          string     `json:"full_name"`
	IsActive          bool       `json:"is_active"`
	IsVerified        bool       `json:"is_verified"`
	AutoApplyEnabled  bool       `json:"auto_apply_enabled"`
	CompletionPercent int        `json:"completion_percent"`
	LastScanAt        *time.Time `json:"last_scan_at,omitempty"`
}

// Settings is the persisted per-user auto-apply configuration, consumed
// read-only by the engine when building criteria.
type Settings struct {
	UserID                string   `json:"user_id"`
	Enabled               bool     `json:"enabled"`
	MaxDaily              int      `json:"max_daily"`
	MaxPerCompany         int      `json:"max_per_company"`
	MinDaysBetween        int      `json:"min_days_between"`
	WindowStartHour       int      `json:"window_start_hour"` // 0-23 inclusive
	WindowEndHour         int      `json:"window_end_hour"`   // 0-23 inclusive
	WindowDays            []int    `json:"window_days"`       // time.Weekday values, empty = every day
	MinMatchScore         float64  `json:"min_match_score"`
	RequiredSkills        []string `json:"required_skills"`
	ExcludedCompanies     []string `json:"excluded_companies"`
	ExcludedKeywords      []string `json:"excluded_keywords"`
	PreferredLocations    []string `json:"preferred_locations"`
	RemoteOnly            bool     `json:"remote_only"`
	SalaryMin             *int     `json:"salary_min,omitempty"`
	SalaryMax             *int     `json:"salary_max,omitempty"`
	RequireManualApproval bool     `json:"require_manual_approval"`
	NotifyOnMatch         bool     `json:"notify_on_match"`
	NotifyOnSubmit        bool     `json:"notify_on_submit"`
}

// UserContext is everything the per-user pipeline needs, assembled once
// per cycle and discarded afterward.
type UserContext struct {
	User           User
	Profile        MatchingProfile
	Settings       Settings
	Criteria       Criteria
	TodayCount     int
	RemainingQuota int
}

// Analytics is the aggregate view over a user's recent applications.
type Analytics struct {
	UserID         string         `json:"user_id"`
	Days           int            `json:"days"`
	StatusCounts   map[string]int `json:"status_counts"`
	TotalCreated   int            `json:"total_created"`
	TotalPending   int            `json:"total_pending"`
	TotalSubmitted int            `json:"total_submitted"`
	SuccessRate    float64        `json:"success_rate"`
	AvgMatchScore  float64        `json:"avg_match_score"`
}
