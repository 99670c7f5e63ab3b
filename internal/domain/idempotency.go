// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed turn
// submission, keyed by (org_id, debate_id, key). It enables safe retries for
// POST operations by returning the originally created turn without appending
// a duplicate.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	OrgID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_org_debate_key,priority:1"`
	DebateID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_org_debate_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_org_debate_key,priority:3"`
	TurnID    string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
