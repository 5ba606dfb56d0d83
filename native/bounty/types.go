package bounty

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BountyStatus represents the lifecycle states supported by the bounty
// engine. Transitions are monotonic: a status is never revisited.
type BountyStatus uint8

const (
	StatusOpen BountyStatus = iota
	StatusAccepted
	StatusClaimed
	StatusCancelled
)

// EscrowStatus tracks the on-ledger escrow backing a single contribution.
type EscrowStatus uint8

const (
	EscrowPending EscrowStatus = iota
	EscrowCreated
	EscrowFailed
	EscrowFinished
	EscrowCancelled
)

// Cancel-after bounds applied to every escrow the engine creates. The ledger
// rejects escrows without an expiry, so out-of-range bounty time limits are
// clamped rather than refused.
const (
	MinTimeLimit     = 10 * time.Minute
	MaxTimeLimit     = 30 * 24 * time.Hour
	DefaultTimeLimit = 24 * time.Hour
)

// Bounty captures the funded task and its runtime status. Amount is always
// derived from the contribution list; it is stored here only as a denormalised
// copy for callers and is recomputed on every committed write.
type Bounty struct {
	ID               uint64
	Funder           string
	FunderAddress    string
	Title            string
	Description      string
	IssueURL         string
	Amount           *big.Int
	DeveloperAddress string
	DeveloperSecret  string
	ConditionHex     string
	PreimageHex      string
	TimeLimit        time.Duration
	Status           BountyStatus
	CreatedAt        int64
	UpdatedAt        int64
}

// EscrowHandle identifies a ledger escrow: the submitting transaction hash and
// the owner-account sequence required to finish or cancel it later.
type EscrowHandle struct {
	TxHash        string
	OfferSequence uint32
}

// Contribution is one party's discrete addition of value to a bounty. The
// escrow handle stays nil until the owning bounty is accepted.
type Contribution struct {
	ID                 uuid.UUID
	BountyID           uint64
	Contributor        string
	ContributorAddress string
	Amount             *big.Int
	Escrow             *EscrowHandle
	EscrowStatus       EscrowStatus
	ConditionHex       string
	CreatedAt          int64
	UpdatedAt          int64
}

// Clone returns a deep copy of the bounty so callers can safely mutate the
// copy without affecting the stored instance.
func (b *Bounty) Clone() *Bounty {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Clone returns a deep copy of the contribution.
func (c *Contribution) Clone() *Contribution {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if c.Escrow != nil {
		handle := *c.Escrow
		clone.Escrow = &handle
	}
	return &clone
}

// Reference derives the deterministic idempotency reference the engine
// attaches to every escrow creation for this contribution. Retried creations
// reuse the same reference so the ledger adapter can detect duplicates.
func (c *Contribution) Reference() string {
	return fmt.Sprintf("bounty-%d-%s", c.BountyID, c.ID)
}

// Valid reports whether the status value is within the supported range.
func (s BountyStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusClaimed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s BountyStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusAccepted:
		return "accepted"
	case StatusClaimed:
		return "claimed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseBountyStatus resolves a canonical status name back to its enum value.
func ParseBountyStatus(raw string) (BountyStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open":
		return StatusOpen, nil
	case "accepted":
		return StatusAccepted, nil
	case "claimed":
		return StatusClaimed, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown bounty status: %s", raw)
	}
}

// Valid reports whether the escrow status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowPending, EscrowCreated, EscrowFailed, EscrowFinished, EscrowCancelled:
		return true
	default:
		return false
	}
}

func (s EscrowStatus) String() string {
	switch s {
	case EscrowPending:
		return "pending"
	case EscrowCreated:
		return "created"
	case EscrowFailed:
		return "failed"
	case EscrowFinished:
		return "finished"
	case EscrowCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseEscrowStatus resolves a canonical escrow status name to its enum value.
func ParseEscrowStatus(raw string) (EscrowStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return EscrowPending, nil
	case "created":
		return EscrowCreated, nil
	case "failed":
		return EscrowFailed, nil
	case "finished":
		return EscrowFinished, nil
	case "cancelled":
		return EscrowCancelled, nil
	default:
		return 0, fmt.Errorf("unknown escrow status: %s", raw)
	}
}

// transitions is the closed table of legal status moves. Anything absent is
// rejected with an InvalidStateError before any side effect.
var transitions = map[BountyStatus][]BountyStatus{
	StatusOpen:     {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusClaimed},
}

// CanTransition reports whether moving a bounty from one status to another is
// permitted by the lifecycle table.
func CanTransition(from, to BountyStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ClampTimeLimit normalises a bounty time limit into the accepted cancel-after
// window, substituting the default for a zero value.
func ClampTimeLimit(limit time.Duration) time.Duration {
	if limit <= 0 {
		return DefaultTimeLimit
	}
	if limit < MinTimeLimit {
		return MinTimeLimit
	}
	if limit > MaxTimeLimit {
		return MaxTimeLimit
	}
	return limit
}

// SanitizeBounty validates and normalises the supplied bounty, returning a
// cloned instance with a non-nil amount. The original value is not mutated.
func SanitizeBounty(b *Bounty) (*Bounty, error) {
	if b == nil {
		return nil, fmt.Errorf("nil bounty")
	}
	clone := b.Clone()
	if clone.Amount == nil {
		clone.Amount = big.NewInt(0)
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("bounty amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid bounty status: %d", clone.Status)
	}
	clone.TimeLimit = ClampTimeLimit(clone.TimeLimit)
	return clone, nil
}
