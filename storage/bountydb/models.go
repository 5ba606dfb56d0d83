// Package bountydb persists bounties and contributions behind the engine's
// State interface.
package bountydb

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"bountyx/native/bounty"
)

// Bounty is the persisted bounty row. Amounts are stored as decimal strings
// in ledger-native drops so no precision is lost.
type Bounty struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	Funder           string `gorm:"index;size:128"`
	FunderAddress    string `gorm:"index;size:64"`
	Title            string `gorm:"size:256;not null"`
	Description      string `gorm:"size:4096"`
	IssueURL         string `gorm:"index;size:512;not null"`
	Amount           string `gorm:"size:64;not null"`
	DeveloperAddress string `gorm:"index;size:64"`
	DeveloperSecret  string `gorm:"size:64"`
	ConditionHex     string `gorm:"size:256"`
	PreimageHex      string `gorm:"size:128"`
	TimeLimitSecs    int64
	Status           string `gorm:"size:16;index;not null"`
	CreatedAt        int64
	UpdatedAt        int64
}

// Contribution is the persisted contribution row. The escrow transaction hash
// stays empty until the owning bounty is accepted.
type Contribution struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	BountyID           uint64    `gorm:"index;not null"`
	Contributor        string    `gorm:"index;size:128"`
	ContributorAddress string    `gorm:"size:64;not null"`
	Amount             string    `gorm:"size:64;not null"`
	EscrowTxHash       string    `gorm:"size:128"`
	EscrowSequence     uint32
	EscrowStatus       string `gorm:"size:16;index;not null"`
	ConditionHex       string `gorm:"size:256"`
	CreatedAt          int64
	UpdatedAt          int64
}

// UserStats aggregates per-address funding and earning totals, updated as a
// side effect of the claimed transition.
type UserStats struct {
	Address        string `gorm:"primaryKey;size:64"`
	BountiesFunded int64
	BountiesEarned int64
	TotalFunded    string `gorm:"size:64"`
	TotalEarned    string `gorm:"size:64"`
	UpdatedAt      int64
}

func bountyToModel(b *bounty.Bounty) *Bounty {
	amount := "0"
	if b.Amount != nil {
		amount = b.Amount.String()
	}
	return &Bounty{
		ID:               b.ID,
		Funder:           b.Funder,
		FunderAddress:    b.FunderAddress,
		Title:            b.Title,
		Description:      b.Description,
		IssueURL:         b.IssueURL,
		Amount:           amount,
		DeveloperAddress: b.DeveloperAddress,
		DeveloperSecret:  b.DeveloperSecret,
		ConditionHex:     b.ConditionHex,
		PreimageHex:      b.PreimageHex,
		TimeLimitSecs:    int64(b.TimeLimit / time.Second),
		Status:           b.Status.String(),
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func bountyFromModel(m *Bounty) (*bounty.Bounty, error) {
	status, err := bounty.ParseBountyStatus(m.Status)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("bounty %d: %w", m.ID, err)
	}
	return &bounty.Bounty{
		ID:               m.ID,
		Funder:           m.Funder,
		FunderAddress:    m.FunderAddress,
		Title:            m.Title,
		Description:      m.Description,
		IssueURL:         m.IssueURL,
		Amount:           amount,
		DeveloperAddress: m.DeveloperAddress,
		DeveloperSecret:  m.DeveloperSecret,
		ConditionHex:     m.ConditionHex,
		PreimageHex:      m.PreimageHex,
		TimeLimit:        time.Duration(m.TimeLimitSecs) * time.Second,
		Status:           status,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}

func contributionToModel(c *bounty.Contribution) *Contribution {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	m := &Contribution{
		ID:                 c.ID,
		BountyID:           c.BountyID,
		Contributor:        c.Contributor,
		ContributorAddress: c.ContributorAddress,
		Amount:             amount,
		EscrowStatus:       c.EscrowStatus.String(),
		ConditionHex:       c.ConditionHex,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if c.Escrow != nil {
		m.EscrowTxHash = c.Escrow.TxHash
		m.EscrowSequence = c.Escrow.OfferSequence
	}
	return m
}

func contributionFromModel(m *Contribution) (*bounty.Contribution, error) {
	status, err := bounty.ParseEscrowStatus(m.EscrowStatus)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("contribution %s: %w", m.ID, err)
	}
	c := &bounty.Contribution{
		ID:                 m.ID,
		BountyID:           m.BountyID,
		Contributor:        m.Contributor,
		ContributorAddress: m.ContributorAddress,
		Amount:             amount,
		EscrowStatus:       status,
		ConditionHex:       m.ConditionHex,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if m.EscrowTxHash != "" {
		c.Escrow = &bounty.EscrowHandle{TxHash: m.EscrowTxHash, OfferSequence: m.EscrowSequence}
	}
	return c, nil
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("unparseable amount %q", raw)
	}
	return amount, nil
}
