// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Debate
// aggregate (debate row plus ordered participants).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Concurrency control lives above this
// layer; the orchestrator serializes writers per debate id before calling in.
//
// Error semantics:
//   - When a debate is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-debate-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateDebate inserts a debate row together with its participants in a
// single transaction. IDs and positions are expected to be assigned by the
// caller; CreatedAt is stamped here in UTC.
func CreateDebate(ctx context.Context, db *gorm.DB, d *domain.Debate) error {
	d.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(d).Error
}

// SaveDebate persists the mutable state of an existing debate row (status,
// counters, next participant, timestamps). Participants are written with an
// upsert so a full save never duplicates member rows.
//
// Returns ErrNotFound when the debate row does not exist.
func SaveDebate(ctx context.Context, db *gorm.DB, d *domain.Debate) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Debate{}).
			Where("id = ?", d.ID).
			Updates(map[string]any{
				"status":              d.Status,
				"current_round":       d.CurrentRound,
				"current_turn":        d.CurrentTurn,
				"next_participant_id": d.NextParticipantID,
				"context_handle":      d.ContextHandle,
				"started_at":          d.StartedAt,
				"completed_at":        d.CompletedAt,
				"updated_at":          time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if len(d.Participants) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				Create(&d.Participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDebate fetches a debate by id with its participants preloaded in
// position order, or ErrNotFound if missing.
func GetDebate(ctx context.Context, db *gorm.DB, id string) (*domain.Debate, error) {
	var d domain.Debate
	err := db.WithContext(ctx).
		Preload("Participants", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position asc")
		}).
		First(&d, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CountDebates returns the total number of debates matching the optional
// org/status filters, for pagination.
func CountDebates(ctx context.Context, db *gorm.DB, orgID string, status domain.DebateStatus) (int64, error) {
	var total int64
	err := debateFilter(db.WithContext(ctx), orgID, status).Count(&total).Error
	return total, err
}

// ListDebatesPage returns a page of debates matching the optional org/status
// filters, ordered by creation time descending (most recent first).
// Participants are preloaded in position order.
func ListDebatesPage(ctx context.Context, db *gorm.DB, orgID string, status domain.DebateStatus, offset, limit int) ([]domain.Debate, error) {
	var out []domain.Debate
	err := debateFilter(db.WithContext(ctx), orgID, status).
		Preload("Participants", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position asc")
		}).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// debateFilter composes the optional org/status predicates over the debates
// table. Empty values mean "no filter".
func debateFilter(q *gorm.DB, orgID string, status domain.DebateStatus) *gorm.DB {
	q = q.Model(&domain.Debate{})
	if orgID != "" {
		q = q.Where("org_id = ?", orgID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}
