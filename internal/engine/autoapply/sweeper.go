package autoapply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_autoapply/internal/engine"
)

// SweepStore is the slice of storage the sweeper drives.
type SweepStore interface {
	SweepExpired(ctx context.Context, now time.Time) ([]PendingApplication, error)
	AppendLog(ctx context.Context, entry *ApplicationLog) error
}

// Sweeper expires stale pending applications on its own schedule,
// independent of the matching cycle. Expiration is silent: each swept
// row gets an audit entry but no notification.
type Sweeper struct {
	store    SweepStore
	interval time.Duration
}

func NewSweeper(store SweepStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = engine.DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	slog.Info("sweeper started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if n, err := s.SweepOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("sweep failed", slog.Any("error", err))
		} else if n > 0 {
			slog.Info("sweep expired applications", slog.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce expires everything past its deadline and returns how many
// rows were transitioned. Safe to re-run: already-expired rows are not
// touched again.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	swept, err := s.store.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	for i := range swept {
		app := &swept[i]
		entry := &ApplicationLog{
			UserID:       app.UserID,
			PendingID:    app.ID,
			ActivityType: "application_expired",
			Description: fmt.Sprintf("Application for %s at %s expired without a decision",
				app.JobTitle, app.Company),
			Success: true,
		}
		if err := s.store.AppendLog(ctx, entry); err != nil {
			slog.Warn("sweep: append log failed",
				slog.String("pending", app.ID), slog.Any("error", err))
		}
	}
	if len(swept) > 0 {
		engine.IncrApplicationsExpired(len(swept))
	}
	return len(swept), nil
}
