// Package domain defines the persistence models for debates, participants,
// turns, and summaries. These types are mapped with GORM and form the core
// data layer of the debate orchestration backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Debate represents a structured, turn-based exchange among participants
// owned by an organization. State advances only through the orchestrator's
// locked mutation path; rows are never deleted, only status-transitioned.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OrgID: identifier of the owning organization; indexed for retrieval.
//   - Name / Topic / Description: human-readable debate metadata.
//   - Participants: ordered member list (position column preserves order).
//   - Rules: embedded format and bounds configuration.
//   - Status: lifecycle state (see DebateStatus for the legal transitions).
//   - CurrentRound: 1-based round counter.
//   - CurrentTurn: monotonic non-decreasing count of accepted turns.
//   - NextParticipantID: participant expected to act next; empty before start.
//   - ContextHandle: optional handle into the external context service; a
//     debate without one is still fully usable.
//   - StartedAt / CompletedAt: lifecycle timestamps set by transitions.
type Debate struct {
	ID          string `json:"id"          gorm:"type:char(36);primaryKey"`
	OrgID       string `json:"org_id"      gorm:"type:varchar(64);not null;index:idx_org_debates"`
	Name        string `json:"name"        gorm:"type:varchar(255);not null"`
	Topic       string `json:"topic"       gorm:"type:text;not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	Participants []Participant `json:"participants" gorm:"foreignKey:DebateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Rules        DebateRules   `json:"rules"        gorm:"embedded;embeddedPrefix:rules_"`

	Status            DebateStatus `json:"status"              gorm:"type:varchar(16);not null;default:'draft';index"`
	CurrentRound      int          `json:"current_round"       gorm:"not null;default:1"`
	CurrentTurn       int          `json:"current_turn"        gorm:"not null;default:0"`
	NextParticipantID string       `json:"next_participant_id,omitempty" gorm:"type:char(36)"`
	ContextHandle     string       `json:"-"                   gorm:"type:varchar(255)"`

	Metadata    string         `json:"-" gorm:"type:text"` // opaque JSON blob supplied at creation
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Debate.
func (Debate) TableName() string { return "debates" }

// Participant returns the member with the given id, or nil when the id does
// not belong to this debate.
func (d *Debate) Participant(id string) *Participant {
	for i := range d.Participants {
		if d.Participants[i].ID == id {
			return &d.Participants[i]
		}
	}
	return nil
}

// ParticipantIndex returns the position of the member with the given id in
// the ordered participant list, or -1 when absent.
func (d *Debate) ParticipantIndex(id string) int {
	for i := range d.Participants {
		if d.Participants[i].ID == id {
			return i
		}
	}
	return -1
}

// Participant represents one member of a debate together with its generation
// configuration. Participants are created atomically with their debate and
// keep a stable position so round-robin rotation is deterministic.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - DebateID: foreign key to the owning debate (indexed).
//   - Position: zero-based slot in the debate's ordered participant list.
//   - Role: debater, moderator, judge, or observer.
//   - Provider / Model / Temperature / SystemPrompt: completion settings
//     applied when this participant's turns are auto-generated.
//   - Stance: optional declared position on the topic.
type Participant struct {
	ID       string          `json:"id"   gorm:"type:char(36);primaryKey"`
	DebateID string          `json:"-"    gorm:"type:char(36);not null;index:idx_debate_members,priority:1"`
	Position int             `json:"-"    gorm:"not null;index:idx_debate_members,priority:2"`
	Name     string          `json:"name" gorm:"type:varchar(128);not null"`
	Role     ParticipantRole `json:"role" gorm:"type:varchar(16);not null;default:'debater'"`

	Provider     string  `json:"provider,omitempty"    gorm:"type:varchar(64)"`
	Model        string  `json:"model,omitempty"       gorm:"type:varchar(128)"`
	Temperature  float32 `json:"temperature,omitempty" gorm:"default:0.7"`
	SystemPrompt string  `json:"-"                     gorm:"type:text"`
	Stance       string  `json:"stance,omitempty"      gorm:"type:text"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the database table name for Participant.
func (Participant) TableName() string { return "participants" }

// DebateRules captures the format policy of a debate. It is embedded in the
// Debate row (rules_* columns) rather than stored as a separate aggregate.
//
// MaxRounds and MaxTurnsPerParticipant of zero mean "unbounded".
type DebateRules struct {
	Format                 DebateFormat `json:"format"                              gorm:"type:varchar(16);not null;default:'round_robin'"`
	MaxRounds              int          `json:"max_rounds,omitempty"`
	MaxTurnsPerParticipant int          `json:"max_turns_per_participant,omitempty"`
	MinTurnLength          int          `json:"min_turn_length,omitempty"`
	MaxTurnLength          int          `json:"max_turn_length,omitempty"`
}

// Turn represents a single participant contribution within a debate.
// Turn numbers are 1-based and strictly increasing per debate; the Nth
// accepted turn carries number N.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - DebateID / ParticipantID: owning debate and author (both indexed).
//   - TurnNumber / RoundNumber: position within the debate.
//   - Type: opening, argument, rebuttal, question, answer, or closing.
//   - Content: full text of the contribution.
//   - ContextRef: optional reference into the external context service.
//   - TokenCount: completion token usage when the turn was generated.
type Turn struct {
	ID            string   `json:"id"             gorm:"type:char(36);primaryKey"`
	DebateID      string   `json:"debate_id"      gorm:"type:char(36);not null;index:idx_debate_turns,priority:1"`
	ParticipantID string   `json:"participant_id" gorm:"type:char(36);not null;index"`
	TurnNumber    int      `json:"turn_number"    gorm:"not null;index:idx_debate_turns,priority:2"`
	RoundNumber   int      `json:"round_number"   gorm:"not null"`
	Type          TurnType `json:"turn_type"      gorm:"type:varchar(16);not null;default:'argument'"`
	Content       string   `json:"content"        gorm:"type:text;not null"`
	ContextRef    string   `json:"-"              gorm:"type:varchar(255)"`
	TokenCount    *int     `json:"token_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Debate is the parent exchange. Turns are cascade-deleted if the
	// debate row is ever removed.
	Debate Debate `json:"-" gorm:"foreignKey:DebateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Turn.
func (Turn) TableName() string { return "turns" }

// DebateSummary stores a generated synthesis of a debate: the summary text
// plus heuristically extracted key points, per-participant position excerpts,
// and consensus/disagreement sentences. Extraction is best-effort formatting,
// not data extraction with hard guarantees. Summaries never mutate debate
// status; a debate can be summarized any number of times.
type DebateSummary struct {
	ID       string `json:"id"        gorm:"type:char(36);primaryKey"`
	DebateID string `json:"debate_id" gorm:"type:char(36);not null;index"`
	Summary  string `json:"summary"   gorm:"type:text;not null"`

	// The extracted slices are persisted as JSON-encoded text columns.
	KeyPoints          StringList `json:"key_points"          gorm:"type:text"`
	Positions          StringMap  `json:"positions"           gorm:"type:text"`
	ConsensusPoints    StringList `json:"consensus_points"    gorm:"type:text"`
	DisagreementPoints StringList `json:"disagreement_points" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`

	Debate Debate `json:"-" gorm:"foreignKey:DebateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DebateSummary.
func (DebateSummary) TableName() string { return "debate_summaries" }
