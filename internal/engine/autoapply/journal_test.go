package autoapply

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal error: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	sent := &JournalEntry{
		PendingID: "p-1", UserID: "u1", JobTitle: "Backend Engineer", Company: "Acme",
		Method: "email", Status: JournalSent, Recipient: "hr@acme.com", ConfirmationID: "c-1",
	}
	if err := j.RecordAttempt(ctx, sent); err != nil {
		t.Fatalf("RecordAttempt error: %v", err)
	}
	if sent.ID == 0 {
		t.Error("inserted row id not set")
	}
	if sent.CreatedAt == "" {
		t.Error("CreatedAt not defaulted")
	}

	failed := &JournalEntry{
		PendingID: "p-2", UserID: "u2", JobTitle: "Platform Engineer",
		Status: JournalFailed, Error: "relay 502",
	}
	if err := j.RecordAttempt(ctx, failed); err != nil {
		t.Fatalf("RecordAttempt error: %v", err)
	}

	all, err := j.ListAttempts(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("ListAttempts error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("attempts = %d, want 2", len(all))
	}
	if all[0].PendingID != "p-2" {
		t.Errorf("newest first expected, got %q on top", all[0].PendingID)
	}

	got := all[1]
	if got.Recipient != "hr@acme.com" || got.ConfirmationID != "c-1" || got.Company != "Acme" {
		t.Errorf("sent row fields lost: %+v", got)
	}
}

func TestJournalListFilters(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for _, e := range []*JournalEntry{
		{PendingID: "p-1", UserID: "u1", JobTitle: "A", Method: "email", Status: JournalSent},
		{PendingID: "p-2", UserID: "u1", JobTitle: "B", Status: JournalFailed, Error: "x"},
		{PendingID: "p-3", UserID: "u2", JobTitle: "C", Method: "email", Status: JournalSent},
	} {
		if err := j.RecordAttempt(ctx, e); err != nil {
			t.Fatalf("RecordAttempt error: %v", err)
		}
	}

	byUser, err := j.ListAttempts(ctx, "u1", "", 0)
	if err != nil {
		t.Fatalf("ListAttempts error: %v", err)
	}
	if len(byUser) != 2 {
		t.Errorf("u1 attempts = %d, want 2", len(byUser))
	}

	byStatus, err := j.ListAttempts(ctx, "", JournalFailed, 0)
	if err != nil {
		t.Fatalf("ListAttempts error: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].PendingID != "p-2" {
		t.Errorf("failed attempts = %+v, want just p-2", byStatus)
	}

	both, err := j.ListAttempts(ctx, "u2", JournalSent, 0)
	if err != nil {
		t.Fatalf("ListAttempts error: %v", err)
	}
	if len(both) != 1 || both[0].PendingID != "p-3" {
		t.Errorf("combined filter = %+v, want just p-3", both)
	}

	capped, err := j.ListAttempts(ctx, "", "", 1)
	if err != nil {
		t.Fatalf("ListAttempts error: %v", err)
	}
	if len(capped) != 1 {
		t.Errorf("limit 1 returned %d rows", len(capped))
	}
}

func TestJournalNilSafe(t *testing.T) {
	var j *Journal
	if err := j.RecordAttempt(context.Background(), &JournalEntry{PendingID: "p"}); err != nil {
		t.Errorf("nil journal RecordAttempt error: %v", err)
	}
	if entries, err := j.ListAttempts(context.Background(), "", "", 0); err != nil || entries != nil {
		t.Errorf("nil journal ListAttempts = (%v, %v), want (nil, nil)", entries, err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("nil journal Close error: %v", err)
	}
}

func TestJournalExecutorTrail(t *testing.T) {
	j := openTestJournal(t)
	store := newFakeStore()
	store.addUser(testUser("u1"), testSettings("u1"), testProfile("u1"))
	app := seedApp(store, "u1", "Acme", "Backend Engineer", StatusApproved, time.Now().UTC())

	exec := NewSubmissionExecutor(store, &fakeChannel{}, j, NewStoreDispatcher(store, nil))
	res, err := exec.Submit(context.Background(), app, "")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	attempts, err := j.ListAttempts(context.Background(), "u1", "", 0)
	if err != nil {
		t.Fatalf("ListAttempts error: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	got := attempts[0]
	if got.Status != JournalSent || got.ConfirmationID != res.ConfirmationID {
		t.Errorf("journal row = %+v, want sent with confirmation %s", got, res.ConfirmationID)
	}
	if got.Method != "email" || got.PendingID != app.ID {
		t.Errorf("journal row fields wrong: %+v", got)
	}
}
