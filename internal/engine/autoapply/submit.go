package autoapply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// SubmissionChannel delivers an approved application to the employer side.
// Implementations must not retry on their own: a duplicate send is worse
// than a failed one.
type SubmissionChannel interface {
	Send(ctx context.Context, app *PendingApplication) (*SubmissionResult, error)
}

// --- Email relay channel ---

type relayRequest struct {
	PendingID   string `json:"pending_id"`
	JobTitle    string `json:"job_title"`
	Company     string `json:"company"`
	JobURL      string `json:"job_url,omitempty"`
	CoverLetter string `json:"cover_letter"`
	Summary     string `json:"summary,omitempty"`
}

type relayResponse struct {
	Status         string `json:"status"`
	Recipient      string `json:"recipient"`
	ConfirmationID string `json:"confirmation_id"`
}

// EmailRelayChannel submits applications through the internal email relay
// service. A circuit breaker keeps a dead relay from stalling whole
// cycles: once it opens, sends fail fast until the relay recovers.
type EmailRelayChannel struct {
	baseURL string
	secret  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewEmailRelayChannel(baseURL, secret string, client *http.Client) *EmailRelayChannel {
	if client == nil {
		client = engine.NewHTTPClient(30 * time.Second)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "submission-relay",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("relay breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return &EmailRelayChannel{baseURL: baseURL, secret: secret, client: client, breaker: breaker}
}

// Send posts the application to the relay. The call is made exactly once;
// any failure surfaces as a DeliveryError.
func (c *EmailRelayChannel) Send(ctx context.Context, app *PendingApplication) (*SubmissionResult, error) {
	payload := relayRequest{
		PendingID:   app.ID,
		JobTitle:    app.JobTitle,
		Company:     app.Company,
		JobURL:      app.JobURL,
		CoverLetter: app.CoverLetter,
		Summary:     app.Summary,
	}

	out, err := c.post(ctx, "/v1/submissions", payload)
	if err != nil {
		return nil, &DeliveryError{Channel: "email-relay", Err: err}
	}

	status := out.Status
	if status == "" {
		status = "sent"
	}
	return &SubmissionResult{
		Method:         "email",
		Status:         status,
		Recipient:      out.Recipient,
		ConfirmationID: out.ConfirmationID,
		SentAt:         time.Now().UTC(),
	}, nil
}

// SendEmail delivers a notification email copy through the relay, sharing
// the breaker with submissions.
func (c *EmailRelayChannel) SendEmail(ctx context.Context, to, subject, body string) error {
	payload := map[string]string{"to": to, "subject": subject, "body": body}
	if _, err := c.post(ctx, "/v1/notifications", payload); err != nil {
		return &DeliveryError{Channel: "email-relay", Err: err}
	}
	return nil
}

func (c *EmailRelayChannel) post(ctx context.Context, path string, payload any) (*relayResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal relay request: %w", err)
	}

	res, err := c.breaker.Execute(func() (any, error) {
		engine.IncrRelayRequests()

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", engine.UserAgentBot)
		if c.secret != "" {
			req.Header.Set("Authorization", "Bearer "+c.secret)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
			resp.StatusCode != http.StatusAccepted {
			return nil, fmt.Errorf("relay returned status %d: %s", resp.StatusCode,
				engine.Truncate(string(respBody), 200))
		}

		var out relayResponse
		if len(respBody) > 0 {
			if err := json.Unmarshal(respBody, &out); err != nil {
				return nil, fmt.Errorf("parse relay response: %w", err)
			}
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*relayResponse), nil
}

// --- Dry-run channel ---

// DryRunChannel is the channel used when no relay is configured: it
// records a simulated delivery so the full lifecycle stays exercisable in
// development.
type DryRunChannel struct{}

func (DryRunChannel) Send(_ context.Context, app *PendingApplication) (*SubmissionResult, error) {
	slog.Info("dry-run submission",
		slog.String("pending", app.ID),
		slog.String("job", app.JobTitle),
		slog.String("company", app.Company))
	return &SubmissionResult{
		Method:         "dry_run",
		Status:         "simulated",
		ConfirmationID: uuid.NewString(),
		SentAt:         time.Now().UTC(),
	}, nil
}

// --- Executor ---

// SubmissionStore is the slice of storage the executor mutates.
type SubmissionStore interface {
	MarkSubmitted(ctx context.Context, pendingID string, result SubmissionResult, processedAt time.Time) error
	MarkFailed(ctx context.Context, pendingID, submissionErr string, processedAt time.Time) error
	AppendLog(ctx context.Context, entry *ApplicationLog) error
}

// SubmissionExecutor drives one approved application through delivery and
// records the outcome everywhere it must land: the store transition, the
// local journal, exactly one audit log entry, and exactly one
// notification.
type SubmissionExecutor struct {
	store      SubmissionStore
	channel    SubmissionChannel
	journal    *Journal
	dispatcher NotificationDispatcher
}

func NewSubmissionExecutor(store SubmissionStore, channel SubmissionChannel, journal *Journal, dispatcher NotificationDispatcher) *SubmissionExecutor {
	return &SubmissionExecutor{store: store, channel: channel, journal: journal, dispatcher: dispatcher}
}

// Submit sends app through the channel and records the outcome. notifyEmail,
// when non-empty, asks the dispatcher for an email copy of the outcome
// notification. The returned error reports the delivery failure after all
// bookkeeping for it has been written.
func (e *SubmissionExecutor) Submit(ctx context.Context, app *PendingApplication, notifyEmail string) (*SubmissionResult, error) {
	if app.Status != StatusApproved {
		return nil, &StateConflictError{PendingID: app.ID, Current: app.Status, Attempted: StatusSubmitted}
	}

	now := time.Now().UTC()
	res, sendErr := e.channel.Send(ctx, app)
	if sendErr != nil {
		var de *DeliveryError
		if !errors.As(sendErr, &de) {
			sendErr = &DeliveryError{Channel: "submission", Err: sendErr}
		}
		e.recordFailure(ctx, app, sendErr, now)
		return nil, sendErr
	}

	// Journal before the store transition: if the Postgres write fails
	// after a real send, the confirmation still has a durable trail.
	e.journalAttempt(ctx, app, res, "")

	if err := e.store.MarkSubmitted(ctx, app.ID, *res, now); err != nil {
		slog.Error("submitted but store transition failed",
			slog.String("pending", app.ID),
			slog.String("confirmation", res.ConfirmationID),
			slog.Any("error", err))
		return res, err
	}
	app.Status = StatusSubmitted
	app.SubmissionResult = res
	app.ProcessedAt = &now
	engine.IncrApplicationsSubmitted()

	e.appendLog(ctx, &ApplicationLog{
		UserID:       app.UserID,
		PendingID:    app.ID,
		ActivityType: "application_submitted",
		Description:  fmt.Sprintf("Submitted %s at %s via %s", app.JobTitle, app.Company, res.Method),
		Data: map[string]any{
			"method":          res.Method,
			"recipient":       res.Recipient,
			"confirmation_id": res.ConfirmationID,
		},
		Success: true,
	})

	n := buildSubmittedNotification(app, *res)
	n.Email = notifyEmail
	e.notify(ctx, n)

	return res, nil
}

func (e *SubmissionExecutor) recordFailure(ctx context.Context, app *PendingApplication, sendErr error, now time.Time) {
	engine.IncrSubmissionErrors()

	e.journalAttempt(ctx, app, nil, sendErr.Error())

	if err := e.store.MarkFailed(ctx, app.ID, sendErr.Error(), now); err != nil {
		slog.Error("record submission failure failed",
			slog.String("pending", app.ID), slog.Any("error", err))
	} else {
		app.Status = StatusFailed
		app.SubmissionError = sendErr.Error()
		app.ProcessedAt = &now
	}

	e.appendLog(ctx, &ApplicationLog{
		UserID:       app.UserID,
		PendingID:    app.ID,
		ActivityType: "application_failed",
		Description:  fmt.Sprintf("Submitting %s at %s failed", app.JobTitle, app.Company),
		Success:      false,
		ErrorMessage: sendErr.Error(),
	})

	e.notify(ctx, buildFailedNotification(app, sendErr.Error()))
}

func (e *SubmissionExecutor) journalAttempt(ctx context.Context, app *PendingApplication, res *SubmissionResult, attemptErr string) {
	entry := &JournalEntry{
		PendingID: app.ID,
		UserID:    app.UserID,
		JobTitle:  app.JobTitle,
		Company:   app.Company,
		Status:    JournalFailed,
		Error:     attemptErr,
	}
	if res != nil {
		entry.Status = JournalSent
		entry.Method = res.Method
		entry.Recipient = res.Recipient
		entry.ConfirmationID = res.ConfirmationID
	}
	if err := e.journal.RecordAttempt(ctx, entry); err != nil {
		slog.Warn("journal attempt failed", slog.String("pending", app.ID), slog.Any("error", err))
	}
}

func (e *SubmissionExecutor) appendLog(ctx context.Context, entry *ApplicationLog) {
	if err := e.store.AppendLog(ctx, entry); err != nil {
		slog.Warn("append log failed", slog.String("pending", entry.PendingID), slog.Any("error", err))
	}
}

func (e *SubmissionExecutor) notify(ctx context.Context, n *Notification) {
	if err := e.dispatcher.Notify(ctx, n); err != nil {
		slog.Warn("notification failed", slog.String("type", n.Type), slog.Any("error", err))
	}
}
