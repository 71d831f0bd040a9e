package autoapply

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// ApprovalStore is the storage slice behind the user-facing decision
// operations.
type ApprovalStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetSettings(ctx context.Context, userID string) (Settings, error)
	GetPending(ctx context.Context, userID, pendingID string) (*PendingApplication, error)
	ListPending(ctx context.Context, userID, status string, limit int) ([]PendingApplication, error)
	ApprovePending(ctx context.Context, userID, pendingID, coverLetter string, decidedAt time.Time) (*PendingApplication, error)
	RejectPending(ctx context.Context, userID, pendingID, note string, decidedAt time.Time) (*PendingApplication, error)
	AppendLog(ctx context.Context, entry *ApplicationLog) error
}

// Approvals implements the decisions a user takes on their pending
// applications. Approval hands the application straight to the
// submission executor; the submission outcome is reflected in the
// returned record's state rather than in the operation error.
type Approvals struct {
	store    ApprovalStore
	executor *SubmissionExecutor
}

func NewApprovals(store ApprovalStore, executor *SubmissionExecutor) *Approvals {
	return &Approvals{store: store, executor: executor}
}

// List returns the user's applications, newest first. Expired records
// are filtered out unless asked for; pass status to narrow to one
// lifecycle state instead.
func (a *Approvals) List(ctx context.Context, userID, status string, includeExpired bool, limit int) ([]PendingApplication, error) {
	apps, err := a.store.ListPending(ctx, userID, status, limit)
	if err != nil {
		return nil, err
	}
	if !includeExpired && status == "" {
		apps = slices.DeleteFunc(apps, func(p PendingApplication) bool {
			return p.Status == StatusExpired
		})
	}
	return apps, nil
}

// Get loads one application scoped to its owner.
func (a *Approvals) Get(ctx context.Context, userID, pendingID string) (*PendingApplication, error) {
	return a.store.GetPending(ctx, userID, pendingID)
}

// Approve records the user's approval and immediately drives the
// application through submission. A non-empty coverLetter replaces the
// generated one before sending. Returns ErrNotFound for an unknown id
// and a StateConflictError when the record is no longer pending; a
// delivery failure is not an operation error, it lands in the returned
// record as FAILED with the error text.
func (a *Approvals) Approve(ctx context.Context, userID, pendingID, coverLetter string) (*PendingApplication, error) {
	now := time.Now().UTC()
	app, err := a.store.ApprovePending(ctx, userID, pendingID, coverLetter, now)
	if err != nil {
		return nil, err
	}

	a.appendLog(ctx, &ApplicationLog{
		UserID:       userID,
		PendingID:    app.ID,
		ActivityType: "application_approved",
		Description:  fmt.Sprintf("Approved application for %s at %s", app.JobTitle, app.Company),
		Data:         map[string]any{"cover_letter_modified": coverLetter != ""},
		Success:      true,
	})

	if _, err := a.executor.Submit(ctx, app, a.submitEmail(ctx, userID)); err != nil {
		slog.Warn("approve: submission failed",
			slog.String("pending", app.ID), slog.Any("error", err))
	}
	return app, nil
}

// Reject records the user's rejection with an optional free-text reason.
func (a *Approvals) Reject(ctx context.Context, userID, pendingID, reason string) (*PendingApplication, error) {
	now := time.Now().UTC()
	app, err := a.store.RejectPending(ctx, userID, pendingID, reason, now)
	if err != nil {
		return nil, err
	}

	a.appendLog(ctx, &ApplicationLog{
		UserID:       userID,
		PendingID:    app.ID,
		ActivityType: "application_rejected",
		Description:  fmt.Sprintf("Rejected application for %s at %s", app.JobTitle, app.Company),
		Data:         map[string]any{"reason": reason},
		Success:      true,
	})
	return app, nil
}

// submitEmail resolves the address for the submission-outcome email, or
// empty when the user turned those off.
func (a *Approvals) submitEmail(ctx context.Context, userID string) string {
	settings, err := a.store.GetSettings(ctx, userID)
	if err != nil || !settings.NotifyOnSubmit {
		return ""
	}
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Email
}

func (a *Approvals) appendLog(ctx context.Context, entry *ApplicationLog) {
	if err := a.store.AppendLog(ctx, entry); err != nil {
		slog.Warn("append log failed",
			slog.String("user_id", entry.UserID), slog.Any("error", err))
	}
}
