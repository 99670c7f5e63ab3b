// Package domain – lifecycle enumerations.
//
// This file defines the closed string enumerations used across the debate
// aggregate (status, role, format, turn type) and the debate status
// transition table. Keeping the transition rules next to the enum makes the
// state machine a property of the model rather than of any one caller.
package domain

// DebateStatus is the lifecycle state of a debate.
//
// Legal transitions:
//
//	draft  -> active
//	active -> paused
//	paused -> active
//	active -> completed
//	any    -> archived (terminal)
//
// No other edge is legal; in particular a completed or archived debate can
// never become active again.
type DebateStatus string

const (
	StatusDraft     DebateStatus = "draft"
	StatusActive    DebateStatus = "active"
	StatusPaused    DebateStatus = "paused"
	StatusCompleted DebateStatus = "completed"
	StatusArchived  DebateStatus = "archived"
)

// statusEdges enumerates the allowed transitions, keyed by source status.
var statusEdges = map[DebateStatus][]DebateStatus{
	StatusDraft:     {StatusActive, StatusArchived},
	StatusActive:    {StatusPaused, StatusCompleted, StatusArchived},
	StatusPaused:    {StatusActive, StatusArchived},
	StatusCompleted: {StatusArchived},
	StatusArchived:  {},
}

// CanTransition reports whether moving from s to target is a legal edge of
// the debate state machine.
func (s DebateStatus) CanTransition(target DebateStatus) bool {
	for _, t := range statusEdges[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known lifecycle states.
func (s DebateStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// ParticipantRole describes how a participant takes part in a debate.
type ParticipantRole string

const (
	RoleDebater   ParticipantRole = "debater"
	RoleModerator ParticipantRole = "moderator"
	RoleJudge     ParticipantRole = "judge"
	RoleObserver  ParticipantRole = "observer"
)

// Valid reports whether r is a known participant role.
func (r ParticipantRole) Valid() bool {
	switch r {
	case RoleDebater, RoleModerator, RoleJudge, RoleObserver:
		return true
	}
	return false
}

// DebateFormat selects the turn-taking policy of a debate.
type DebateFormat string

const (
	FormatRoundRobin  DebateFormat = "round_robin"
	FormatFreeForm    DebateFormat = "free_form"
	FormatOxford      DebateFormat = "oxford"
	FormatPanel       DebateFormat = "panel"
	FormatSocratic    DebateFormat = "socratic"
	FormatAdversarial DebateFormat = "adversarial"
)

// Valid reports whether f is a known debate format.
func (f DebateFormat) Valid() bool {
	switch f {
	case FormatRoundRobin, FormatFreeForm, FormatOxford, FormatPanel, FormatSocratic, FormatAdversarial:
		return true
	}
	return false
}

// TurnType classifies a single contribution within a debate.
type TurnType string

const (
	TurnOpening  TurnType = "opening"
	TurnArgument TurnType = "argument"
	TurnRebuttal TurnType = "rebuttal"
	TurnQuestion TurnType = "question"
	TurnAnswer   TurnType = "answer"
	TurnClosing  TurnType = "closing"
)

// Valid reports whether t is a known turn type.
func (t TurnType) Valid() bool {
	switch t {
	case TurnOpening, TurnArgument, TurnRebuttal, TurnQuestion, TurnAnswer, TurnClosing:
		return true
	}
	return false
}
