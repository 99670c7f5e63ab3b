// Package repo – aggregate/statistics queries.
//
// This file provides small aggregate queries used for the status endpoint
// and operational dashboards. Each function is context-aware and safe to
// call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-debate-backend/internal/domain"
)

// DebateStats returns aggregate metadata for an organization's debates:
// the total number of rows, a per-status breakdown, and the maximum
// UpdatedAt timestamp among those rows.
//
// When the organization has no debates, the returned count is 0, the map is
// empty, and maxUpdatedAt is nil.
func DebateStats(ctx context.Context, db *gorm.DB, orgID string) (count int64, byStatus map[domain.DebateStatus]int64, maxUpdatedAt *time.Time, err error) {
	base := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&domain.Debate{})
		if orgID != "" {
			q = q.Where("org_id = ?", orgID)
		}
		return q
	}

	byStatus = make(map[domain.DebateStatus]int64)

	if err = base().Count(&count).Error; err != nil {
		return 0, nil, nil, err
	}
	if count == 0 {
		return 0, byStatus, nil, nil
	}

	var rows []struct {
		Status domain.DebateStatus
		N      int64
	}
	if err = base().Select("status, COUNT(*) as n").Group("status").Scan(&rows).Error; err != nil {
		return 0, nil, nil, err
	}
	for _, r := range rows {
		byStatus[r.Status] = r.N
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = base().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, nil, err
	}
	return count, byStatus, &row.UpdatedAt, nil
}

// TurnsStats returns the number of turns in a debate and the timestamp of
// the most recent one, or (0, nil) for a debate with no turns.
func TurnsStats(ctx context.Context, db *gorm.DB, debateID string) (count int64, lastTurnAt *time.Time, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Turn{}).Where("debate_id = ?", debateID)
	}

	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = base().Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
