package bounty

import (
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// Ledger is the append-only contribution bookkeeping for bounties. It is a
// thin view over the engine state: the bounty amount is never cached here but
// always recomputed as a fold over the contribution list, so the sum invariant
// holds structurally.
type Ledger struct {
	state State
}

// NewLedger wraps a state backend in the contribution bookkeeping view.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// Append records a new contribution. Contributions are immutable apart from
// their escrow handle and status.
func (l *Ledger) Append(c *Contribution) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if c == nil {
		return &ValidationError{Field: "contribution", Reason: "nil"}
	}
	if c.Amount == nil || c.Amount.Sign() <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return l.state.AppendContribution(c)
}

// ListByBounty returns the bounty's contributions in ascending creation
// order. The ordering is what makes escrow call reporting deterministic.
func (l *Ledger) ListByBounty(bountyID uint64) ([]*Contribution, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	contribs, err := l.state.ContributionsByBounty(bountyID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(contribs, func(i, j int) bool {
		if contribs[i].CreatedAt == contribs[j].CreatedAt {
			return contribs[i].ID.String() < contribs[j].ID.String()
		}
		return contribs[i].CreatedAt < contribs[j].CreatedAt
	})
	return contribs, nil
}

// UpdateEscrow records the outcome of a ledger call for one contribution.
func (l *Ledger) UpdateEscrow(id uuid.UUID, handle *EscrowHandle, status EscrowStatus, conditionHex string) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return l.state.UpdateContributionEscrow(id, handle, status, conditionHex)
}

// TotalAmount folds the contribution amounts into the derived bounty amount.
func TotalAmount(contribs []*Contribution) *big.Int {
	total := big.NewInt(0)
	for _, c := range contribs {
		if c != nil && c.Amount != nil {
			total.Add(total, c.Amount)
		}
	}
	return total
}
