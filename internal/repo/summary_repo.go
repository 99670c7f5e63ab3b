// Package repo – DebateSummary persistence.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-debate-backend/internal/domain"
)

// SaveSummary inserts a generated summary row for a debate. Summaries are
// append-only; regenerating a summary creates a new row rather than
// overwriting history.
func SaveSummary(ctx context.Context, db *gorm.DB, s *domain.DebateSummary) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(s).Error
}

// LatestSummary returns the most recently generated summary for a debate,
// or ErrNotFound when the debate has never been summarized.
func LatestSummary(ctx context.Context, db *gorm.DB, debateID string) (*domain.DebateSummary, error) {
	var s domain.DebateSummary
	err := db.WithContext(ctx).
		Where("debate_id = ?", debateID).
		Order("created_at desc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}
