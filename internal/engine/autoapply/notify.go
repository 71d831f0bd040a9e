package autoapply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// NotificationDispatcher records lifecycle notifications for the user.
type NotificationDispatcher interface {
	Notify(ctx context.Context, n *Notification) error
}

// NotificationWriter is the slice of storage the dispatcher writes to.
type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *Notification) error
	MarkNotificationEmailed(ctx context.Context, notificationID string, at time.Time) error
}

// EmailSender delivers an email copy of a notification.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// StoreDispatcher persists notifications and, when the caller attached an
// email hint, sends a copy through the mailer. A mailer failure is logged
// and swallowed: the persisted row is the source of truth.
type StoreDispatcher struct {
	store  NotificationWriter
	mailer EmailSender
}

// NewStoreDispatcher creates a dispatcher. mailer may be nil.
func NewStoreDispatcher(store NotificationWriter, mailer EmailSender) *StoreDispatcher {
	return &StoreDispatcher{store: store, mailer: mailer}
}

func (d *StoreDispatcher) Notify(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("dispatch %s: %w", n.Type, err)
	}
	engine.IncrNotificationsCreated()

	if d.mailer != nil && n.Email != "" {
		if err := d.mailer.SendEmail(ctx, n.Email, n.Title, n.Message); err != nil {
			slog.Warn("notification email failed",
				slog.String("notification", n.ID),
				slog.String("type", n.Type),
				slog.Any("error", err))
			return nil
		}
		if err := d.store.MarkNotificationEmailed(ctx, n.ID, time.Now().UTC()); err != nil {
			slog.Warn("mark emailed failed", slog.String("notification", n.ID), slog.Any("error", err))
		}
	}
	return nil
}

// --- Notification builders ---

func buildApprovalNotification(app *PendingApplication) *Notification {
	expires := app.ExpiresAt
	return &Notification{
		UserID:    app.UserID,
		PendingID: app.ID,
		Type:      NotifyApproval,
		Title:     fmt.Sprintf("Application Ready for Review: %s at %s", app.JobTitle, app.Company),
		Message: fmt.Sprintf(
			"We prepared an application for %s at %s (%.0f%% match). Review and approve it before %s.",
			app.JobTitle, app.Company, app.AutoScore*100, app.ExpiresAt.Format("Jan 2")),
		ActionURL:  "/dashboard/auto-apply/pending/" + app.ID,
		JobTitle:   app.JobTitle,
		Company:    app.Company,
		MatchScore: app.MatchScore,
		ExpiresAt:  &expires,
	}
}

func buildSubmittedNotification(app *PendingApplication, res SubmissionResult) *Notification {
	return &Notification{
		UserID:    app.UserID,
		PendingID: app.ID,
		Type:      NotifySubmitted,
		Title:     fmt.Sprintf("Application Submitted: %s at %s", app.JobTitle, app.Company),
		Message: fmt.Sprintf("Your application for %s at %s was submitted via %s (confirmation %s).",
			app.JobTitle, app.Company, res.Method, res.ConfirmationID),
		ActionURL:  "/dashboard/applications/" + app.ID,
		JobTitle:   app.JobTitle,
		Company:    app.Company,
		MatchScore: app.MatchScore,
	}
}

func buildFailedNotification(app *PendingApplication, deliveryErr string) *Notification {
	return &Notification{
		UserID:    app.UserID,
		PendingID: app.ID,
		Type:      NotifyFailed,
		Title:     fmt.Sprintf("Application Failed: %s at %s", app.JobTitle, app.Company),
		Message: fmt.Sprintf("Submitting your application for %s at %s failed: %s",
			app.JobTitle, app.Company, deliveryErr),
		ActionURL:  "/dashboard/applications/" + app.ID,
		JobTitle:   app.JobTitle,
		Company:    app.Company,
		MatchScore: app.MatchScore,
	}
}

func buildScanSummaryNotification(userID string, created int) *Notification {
	noun := "applications"
	if created == 1 {
		noun = "application"
	}
	return &Notification{
		UserID:    userID,
		Type:      NotifyScanSummary,
		Title:     fmt.Sprintf("Job Scan Complete: %d new %s", created, noun),
		Message:   fmt.Sprintf("The latest scan prepared %d %s for you.", created, noun),
		ActionURL: "/dashboard/auto-apply/pending",
	}
}
