package bountydb

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bountyx/native/bounty"
)

// Store implements bounty.State on top of gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database: postgres DSNs are recognised by
// prefix, anything else is treated as a sqlite path.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("bountydb: open %s: %w", dsn, err)
	}
	return NewStore(db)
}

// NewStore wraps an existing gorm handle and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// AutoMigrate creates or updates the persisted schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Bounty{}, &Contribution{}, &UserStats{})
}

// PutBounty inserts or updates a bounty row, assigning the identity on first
// insert.
func (s *Store) PutBounty(b *bounty.Bounty) error {
	if b == nil {
		return errors.New("bountydb: nil bounty")
	}
	model := bountyToModel(b)
	if err := s.db.Save(model).Error; err != nil {
		return fmt.Errorf("bountydb: save bounty: %w", err)
	}
	b.ID = model.ID
	return nil
}

// GetBounty loads a bounty by id.
func (s *Store) GetBounty(id uint64) (*bounty.Bounty, bool, error) {
	var model Bounty
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("bountydb: get bounty %d: %w", id, err)
	}
	b, err := bountyFromModel(&model)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// TransitionBounty persists the bounty only while the stored status still
// matches the expected prior status. A lost race surfaces as
// ErrConcurrentModification, never as a silent overwrite.
func (s *Store) TransitionBounty(b *bounty.Bounty, from bounty.BountyStatus) error {
	if b == nil {
		return errors.New("bountydb: nil bounty")
	}
	model := bountyToModel(b)
	res := s.db.Model(&Bounty{}).
		Where("id = ? AND status = ?", b.ID, from.String()).
		Updates(map[string]interface{}{
			"status":            model.Status,
			"developer_address": model.DeveloperAddress,
			"developer_secret":  model.DeveloperSecret,
			"condition_hex":     model.ConditionHex,
			"preimage_hex":      model.PreimageHex,
			"amount":            model.Amount,
			"updated_at":        model.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("bountydb: transition bounty %d: %w", b.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.Model(&Bounty{}).Where("id = ?", b.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("bountydb: transition bounty %d: %w", b.ID, err)
		}
		if count == 0 {
			return bounty.ErrBountyNotFound
		}
		return bounty.ErrConcurrentModification
	}
	return nil
}

// AppendContribution records a new contribution row.
func (s *Store) AppendContribution(c *bounty.Contribution) error {
	if c == nil {
		return errors.New("bountydb: nil contribution")
	}
	if err := s.db.Create(contributionToModel(c)).Error; err != nil {
		return fmt.Errorf("bountydb: append contribution: %w", err)
	}
	return nil
}

// ContributionsByBounty returns a bounty's contributions in creation order.
func (s *Store) ContributionsByBounty(bountyID uint64) ([]*bounty.Contribution, error) {
	var models []Contribution
	err := s.db.
		Where("bounty_id = ?", bountyID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("bountydb: list contributions for bounty %d: %w", bountyID, err)
	}
	out := make([]*bounty.Contribution, 0, len(models))
	for i := range models {
		c, err := contributionFromModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateContributionEscrow records a ledger call outcome for one
// contribution.
func (s *Store) UpdateContributionEscrow(id uuid.UUID, handle *bounty.EscrowHandle, status bounty.EscrowStatus, conditionHex string) error {
	updates := map[string]interface{}{
		"escrow_status": status.String(),
		"condition_hex": conditionHex,
		"updated_at":    time.Now().Unix(),
	}
	if handle != nil {
		updates["escrow_tx_hash"] = handle.TxHash
		updates["escrow_sequence"] = handle.OfferSequence
	}
	res := s.db.Model(&Contribution{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("bountydb: update escrow for contribution %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("bountydb: contribution %s not found", id)
	}
	return nil
}

// AddFunderStats credits a contributor's funded totals.
func (s *Store) AddFunderStats(address string, amount *big.Int) error {
	return s.addStats(address, amount, true)
}

// AddDeveloperStats credits a developer's earned totals.
func (s *Store) AddDeveloperStats(address string, amount *big.Int) error {
	return s.addStats(address, amount, false)
}

func (s *Store) addStats(address string, amount *big.Int, funded bool) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("bountydb: empty stats address")
	}
	delta := big.NewInt(0)
	if amount != nil {
		delta = amount
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var stats UserStats
		err := tx.First(&stats, "address = ?", address).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stats = UserStats{Address: address, TotalFunded: "0", TotalEarned: "0"}
		} else if err != nil {
			return fmt.Errorf("bountydb: load stats for %s: %w", address, err)
		}
		if funded {
			total, err := parseAmount(stats.TotalFunded)
			if err != nil {
				return err
			}
			stats.TotalFunded = new(big.Int).Add(total, delta).String()
			stats.BountiesFunded++
		} else {
			total, err := parseAmount(stats.TotalEarned)
			if err != nil {
				return err
			}
			stats.TotalEarned = new(big.Int).Add(total, delta).String()
			stats.BountiesEarned++
		}
		stats.UpdatedAt = time.Now().Unix()
		if err := tx.Save(&stats).Error; err != nil {
			return fmt.Errorf("bountydb: save stats for %s: %w", address, err)
		}
		return nil
	})
}

// Stats returns the aggregate totals for one ledger address.
func (s *Store) Stats(address string) (*UserStats, error) {
	var stats UserStats
	err := s.db.First(&stats, "address = ?", strings.TrimSpace(address)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &UserStats{Address: address, TotalFunded: "0", TotalEarned: "0"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bountydb: load stats for %s: %w", address, err)
	}
	return &stats, nil
}
