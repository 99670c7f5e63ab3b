// Package repo – Turn persistence.
//
// This file provides repository functions for the Turn model and the atomic
// turn+debate commit used by the orchestrator's locked add-turn path.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-debate-backend/internal/domain"
)

// CreateTurn inserts a single turn row. The turn ID is a randomly generated
// UUID and CreatedAt is set to UTC.
func CreateTurn(ctx context.Context, db *gorm.DB, t *domain.Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(t).Error
}

// CommitTurn persists a turn and the updated state of its debate in one
// transaction, so a crash between the two writes can never leave a turn
// without the matching counter advance (or vice versa).
//
// Returns ErrNotFound when the debate row does not exist.
func CommitTurn(ctx context.Context, db *gorm.DB, d *domain.Debate, t *domain.Turn) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.CreatedAt = time.Now().UTC()
		if err := tx.Create(t).Error; err != nil {
			return err
		}

		res := tx.Model(&domain.Debate{}).
			Where("id = ?", d.ID).
			Updates(map[string]any{
				"status":              d.Status,
				"current_round":       d.CurrentRound,
				"current_turn":        d.CurrentTurn,
				"next_participant_id": d.NextParticipantID,
				"completed_at":        d.CompletedAt,
				"updated_at":          time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetTurn returns a single turn by id or ErrNotFound. Used to replay a
// previously committed submission on an idempotent retry.
func GetTurn(ctx context.Context, db *gorm.DB, id string) (*domain.Turn, error) {
	var t domain.Turn
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTurns returns every turn of a debate ordered by turn number ascending.
// It returns an empty slice for a debate with no turns.
func ListTurns(ctx context.Context, db *gorm.DB, debateID string) ([]domain.Turn, error) {
	var out []domain.Turn
	err := db.WithContext(ctx).
		Where("debate_id = ?", debateID).
		Order("turn_number asc").
		Find(&out).Error
	return out, err
}

// CountTurnsByParticipant returns how many turns the given participant has
// taken in the debate, used to enforce per-participant turn caps.
func CountTurnsByParticipant(ctx context.Context, db *gorm.DB, debateID, participantID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Turn{}).
		Where("debate_id = ? AND participant_id = ?", debateID, participantID).
		Count(&total).Error
	return total, err
}
