package autoapply

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a user, profile, or application row does
// not exist (or is not visible to the requesting user).
var ErrNotFound = errors.New("not found")

// ErrQuotaExhausted is returned by the transactional create when the
// user's daily application quota is already spent. Callers treat it as a
// clean stop, not a failure.
var ErrQuotaExhausted = errors.New("daily application quota exhausted")

// TransientExternalError marks a failure of an external collaborator
// (job feed, embeddings service, submission relay) that is expected to
// heal on its own. The scheduler never retries it within the same cycle;
// the next cycle picks the user up again.
type TransientExternalError struct {
	Op  string
	Err error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientExternalError) Unwrap() error { return e.Err }

// ValidationError marks bad per-user input (empty profile, missing CV
// content). The user is skipped for the cycle with a logged reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// StateConflictError is returned for any lifecycle transition the state
// machine does not allow. It always names the state the record is
// actually in so the caller can tell the user what happened.
type StateConflictError struct {
	PendingID string
	Current   string
	Attempted string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("application %s is %s, cannot transition to %s", e.PendingID, e.Current, e.Attempted)
}

// DeliveryError marks a rejected or failed submission. It is recorded on
// the application and never retried automatically.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a lifecycle state conflict.
func IsConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}

// IsTransient reports whether err came from a flaky external collaborator.
func IsTransient(err error) bool {
	var te *TransientExternalError
	return errors.As(err, &te)
}
