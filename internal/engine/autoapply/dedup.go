package autoapply

import (
	"context"
	"fmt"
	"time"
)

// TargetHistory is the slice of storage the dedup guard reads.
type TargetHistory interface {
	HasRecentTarget(ctx context.Context, userID, company, title string, since time.Time) (bool, error)
}

// DedupGuard answers one question before an application is created: has
// this user already targeted the same (company, title) recently. It reads
// history only and never writes; both decided and still-open applications
// count as prior targets.
type DedupGuard struct {
	history TargetHistory
}

func NewDedupGuard(history TargetHistory) *DedupGuard {
	return &DedupGuard{history: history}
}

// AlreadyTargeted reports whether an equivalent target exists within the
// trailing window. A non-positive window falls back to DedupWindow.
func (g *DedupGuard) AlreadyTargeted(ctx context.Context, userID string, job JobPosting, window time.Duration) (bool, error) {
	if window <= 0 {
		window = DedupWindow
	}
	since := time.Now().UTC().Add(-window)
	seen, err := g.history.HasRecentTarget(ctx, userID, job.Company, job.Title, since)
	if err != nil {
		return false, fmt.Errorf("dedup lookup for %q at %q: %w", job.Title, job.Company, err)
	}
	return seen, nil
}
