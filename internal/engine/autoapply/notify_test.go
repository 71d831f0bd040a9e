package autoapply

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// failingNotifier rejects every write.
type failingNotifier struct{}

func (failingNotifier) CreateNotification(context.Context, *Notification) error {
	return errors.New("db down")
}

func (failingNotifier) MarkNotificationEmailed(context.Context, string, time.Time) error {
	return errors.New("db down")
}

func TestNotifyFillsDefaults(t *testing.T) {
	store := newFakeStore()
	d := NewStoreDispatcher(store, nil)

	n := &Notification{UserID: "u1", Type: NotifyScanSummary, Title: "t", Message: "m"}
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if n.ID == "" {
		t.Error("ID not assigned")
	}
	if n.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}

	rows := store.notificationsOfType(NotifyScanSummary)
	if len(rows) != 1 {
		t.Fatalf("stored notifications = %d, want 1", len(rows))
	}
	if rows[0].ID != n.ID {
		t.Errorf("stored ID = %q, want %q", rows[0].ID, n.ID)
	}
}

func TestNotifyKeepsCallerIdentity(t *testing.T) {
	store := newFakeStore()
	d := NewStoreDispatcher(store, nil)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	n := &Notification{ID: "n-7", UserID: "u1", Type: NotifyFailed, CreatedAt: at}
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if n.ID != "n-7" || !n.CreatedAt.Equal(at) {
		t.Errorf("caller-set identity overwritten: ID %q CreatedAt %v", n.ID, n.CreatedAt)
	}
}

func TestNotifyEmailCopy(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	d := NewStoreDispatcher(store, mailer)

	n := &Notification{UserID: "u1", Email: "u1@example.com", Type: NotifyApproval, Title: "review", Message: "go look"}
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "u1@example.com" {
		t.Fatalf("mailer recipients = %v, want [u1@example.com]", mailer.sent)
	}

	rows := store.notificationsOfType(NotifyApproval)
	if len(rows) != 1 {
		t.Fatalf("stored notifications = %d, want 1", len(rows))
	}
	if !rows[0].EmailSent || rows[0].EmailSentAt == nil {
		t.Errorf("stored row not marked emailed: %+v", rows[0])
	}
}

func TestNotifyEmailFailureSwallowed(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{err: errors.New("smtp refused")}
	d := NewStoreDispatcher(store, mailer)

	n := &Notification{UserID: "u1", Email: "u1@example.com", Type: NotifyApproval}
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("mailer failure should not surface, got: %v", err)
	}

	rows := store.notificationsOfType(NotifyApproval)
	if len(rows) != 1 {
		t.Fatalf("stored notifications = %d, want 1", len(rows))
	}
	if rows[0].EmailSent {
		t.Error("row marked emailed despite send failure")
	}
}

func TestNotifyWithoutMailer(t *testing.T) {
	store := newFakeStore()
	d := NewStoreDispatcher(store, nil)

	n := &Notification{UserID: "u1", Email: "u1@example.com", Type: NotifySubmitted}
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	rows := store.notificationsOfType(NotifySubmitted)
	if len(rows) != 1 || rows[0].EmailSent {
		t.Errorf("expected one unemailed row, got %+v", rows)
	}
}

func TestNotifyNoEmailHint(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	d := NewStoreDispatcher(store, mailer)

	if err := d.Notify(context.Background(), &Notification{UserID: "u1", Type: NotifyScanSummary}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("mailer called without an email hint: %v", mailer.sent)
	}
}

func TestNotifyStoreFailure(t *testing.T) {
	d := NewStoreDispatcher(failingNotifier{}, nil)

	err := d.Notify(context.Background(), &Notification{UserID: "u1", Type: NotifyFailed})
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if !strings.Contains(err.Error(), NotifyFailed) {
		t.Errorf("error %q does not name the notification type", err)
	}
}

func sampleApp() *PendingApplication {
	return &PendingApplication{
		ID:         "app-1",
		UserID:     "u1",
		JobTitle:   "Backend Engineer",
		Company:    "Acme",
		MatchScore: 0.82,
		AutoScore:  0.88,
		ExpiresAt:  time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
	}
}

func TestBuildApprovalNotification(t *testing.T) {
	app := sampleApp()
	n := buildApprovalNotification(app)

	if n.Type != NotifyApproval {
		t.Errorf("Type = %q, want %q", n.Type, NotifyApproval)
	}
	if n.Title != "Application Ready for Review: Backend Engineer at Acme" {
		t.Errorf("Title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "88% match") {
		t.Errorf("Message %q missing match percentage", n.Message)
	}
	if !strings.Contains(n.Message, "Mar 8") {
		t.Errorf("Message %q missing expiry date", n.Message)
	}
	if n.ActionURL != "/dashboard/auto-apply/pending/app-1" {
		t.Errorf("ActionURL = %q", n.ActionURL)
	}
	if n.ExpiresAt == nil || !n.ExpiresAt.Equal(app.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", n.ExpiresAt, app.ExpiresAt)
	}
	if n.MatchScore != 0.82 || n.Company != "Acme" || n.PendingID != "app-1" {
		t.Errorf("carry-over fields wrong: %+v", n)
	}
}

func TestBuildSubmittedNotification(t *testing.T) {
	n := buildSubmittedNotification(sampleApp(), SubmissionResult{Method: "email", ConfirmationID: "c-42"})

	if n.Type != NotifySubmitted {
		t.Errorf("Type = %q, want %q", n.Type, NotifySubmitted)
	}
	if n.Title != "Application Submitted: Backend Engineer at Acme" {
		t.Errorf("Title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "via email") || !strings.Contains(n.Message, "c-42") {
		t.Errorf("Message %q missing delivery details", n.Message)
	}
	if n.ActionURL != "/dashboard/applications/app-1" {
		t.Errorf("ActionURL = %q", n.ActionURL)
	}
}

func TestBuildFailedNotification(t *testing.T) {
	n := buildFailedNotification(sampleApp(), "relay returned 502")

	if n.Type != NotifyFailed {
		t.Errorf("Type = %q, want %q", n.Type, NotifyFailed)
	}
	if !strings.Contains(n.Message, "relay returned 502") {
		t.Errorf("Message %q missing failure reason", n.Message)
	}
	if n.ActionURL != "/dashboard/applications/app-1" {
		t.Errorf("ActionURL = %q", n.ActionURL)
	}
}

func TestBuildScanSummaryNotification(t *testing.T) {
	one := buildScanSummaryNotification("u1", 1)
	if one.Title != "Job Scan Complete: 1 new application" {
		t.Errorf("singular Title = %q", one.Title)
	}
	many := buildScanSummaryNotification("u1", 3)
	if many.Title != "Job Scan Complete: 3 new applications" {
		t.Errorf("plural Title = %q", many.Title)
	}
	if many.Type != NotifyScanSummary || many.UserID != "u1" {
		t.Errorf("summary fields wrong: %+v", many)
	}
	if many.ActionURL != "/dashboard/auto-apply/pending" {
		t.Errorf("ActionURL = %q", many.ActionURL)
	}
}
