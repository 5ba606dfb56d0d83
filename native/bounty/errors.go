package bounty

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	errNilState          = errors.New("bounty engine: state not configured")
	errNilGateway        = errors.New("bounty engine: ledger gateway not configured")
	errNilFetcher        = errors.New("bounty engine: merge request fetcher not configured")
	ErrBountyNotFound    = errors.New("bounty engine: bounty not found")
	ErrSecretUnavailable = errors.New("bounty engine: developer secret not available")

	// ErrForbidden is returned when a caller requests the developer secret
	// for a bounty assigned to a different ledger address.
	ErrForbidden = errors.New("bounty engine: forbidden")

	// ErrConcurrentModification is returned when a transition's
	// preconditions no longer hold by the time the per-bounty lock is held.
	ErrConcurrentModification = errors.New("bounty engine: bounty modified concurrently")
)

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bounty engine: invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError rejects an operation that is not legal for the bounty's
// current status.
type InvalidStateError struct {
	BountyID uint64
	Status   BountyStatus
	Op       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("bounty engine: cannot %s bounty %d in status %s", e.Op, e.BountyID, e.Status)
}

// InsufficientReserveError reports a ledger address that cannot support the
// requested escrow activity.
type InsufficientReserveError struct {
	Address  string
	Reserve  string
	Required string
}

func (e *InsufficientReserveError) Error() string {
	return fmt.Sprintf("bounty engine: address %s reserve %s below required %s", e.Address, e.Reserve, e.Required)
}

// Claim verification reason codes surfaced to callers for user-facing
// diagnostics.
const (
	ClaimReasonIssueNotReferenced = "issue_not_referenced"
	ClaimReasonSecretNotFound     = "secret_not_found"
	ClaimReasonNotMerged          = "not_merged"
)

// ClaimVerificationError reports why a submitted merge request failed
// verification. The bounty remains accepted and the claim may be retried.
type ClaimVerificationError struct {
	Reason string
}

func (e *ClaimVerificationError) Error() string {
	return fmt.Sprintf("bounty engine: claim verification failed: %s", e.Reason)
}

// LedgerError wraps a failure reported by the ledger gateway. Retryable
// errors (timeouts, rate limits, tentative engine results) are retried with
// backoff before being surfaced; permanent errors surface immediately.
type LedgerError struct {
	Op        string
	Code      string
	Retryable bool
	Err       error
}

func (e *LedgerError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("ledger %s: %s error %s: %v", e.Op, kind, e.Code, e.Err)
	}
	return fmt.Sprintf("ledger %s: %s error %s", e.Op, kind, e.Code)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is a transient ledger failure worth
// retrying. Anything that is not a LedgerError is treated as permanent.
func IsRetryable(err error) bool {
	var lerr *LedgerError
	if errors.As(err, &lerr) {
		return lerr.Retryable
	}
	return false
}

// ContributionOutcome records the result of one per-contribution ledger call
// within a fan-out operation.
type ContributionOutcome struct {
	ContributionID uuid.UUID
	Handle         *EscrowHandle
	Err            error
}

// PartialFailureError reports a fan-out where some per-contribution ledger
// calls failed after retries. The bounty did not transition; succeeded calls
// are recorded so a retry touches only the failed subset.
type PartialFailureError struct {
	Op        string
	BountyID  uint64
	Succeeded []ContributionOutcome
	Failed    []ContributionOutcome
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, out := range e.Failed {
		ids = append(ids, out.ContributionID.String())
	}
	return fmt.Sprintf("bounty engine: %s partially failed for bounty %d: %d/%d contributions failed (%s)",
		e.Op, e.BountyID, len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(ids, ", "))
}
