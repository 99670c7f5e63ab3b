// Package services – turn orchestration.
//
// This file implements the locked add-turn path and its auto-generating
// variant. The gate sequence is rate limit -> queue -> per-debate lock; the
// lock guarantees that no two add-turn critical sections for the same
// debate id ever overlap, so turn numbers are allocated strictly
// sequentially with no gaps. Context and knowledge enrichment are
// best-effort; a completion failure fails the whole call with the debate
// state untouched.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-debate-backend/internal/ai"
	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/notify"
)

// AddTurnInput carries the optional fields of an add-turn request. Empty
// ParticipantID resolves to the debate's next-participant pointer; empty
// Content triggers auto-generation; RAGQuery, when set, augments the prompt
// with knowledge snippets from KnowledgeBase.
type AddTurnInput struct {
	ParticipantID string
	Type          domain.TurnType
	Content       string
	RAGQuery      string
	KnowledgeBase string
}

// AddTurn appends one turn to an active debate and advances the rotation.
// On round completion the round counter increments, and when the new round
// exceeds rules.max_rounds the debate transitions to completed in the same
// operation. The turn and the updated debate state are committed
// atomically; either everything applies or nothing does.
func (s *DebateService) AddTurn(ctx context.Context, orgID, debateID string, in AddTurnInput) (*domain.Turn, error) {
	tr := otel.Tracer("services/DebateService")
	ctx, span := tr.Start(ctx, "AddTurn",
		trace.WithAttributes(
			attribute.String("debate.id", debateID),
			attribute.String("org.id", orgID),
		),
	)
	defer span.End()

	start := time.Now()
	release, err := s.admit(ctx, orgID, debateID)
	if err != nil {
		s.Metrics.OperationDone("add_turn", start, err)
		return nil, err
	}
	defer release()
	defer func() { s.Metrics.OperationDone("add_turn", start, err) }()

	unlock, err := s.lockDebate(ctx, debateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.Store.GetDebate(ctx, s.DB, debateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDebateNotFound
		}
		return nil, err
	}
	if d.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: debate is %s", ErrInvalidState, d.Status)
	}

	p, err := s.resolveParticipant(d, in.ParticipantID)
	if err != nil {
		return nil, err
	}
	if err = s.checkTurnCap(ctx, d, p); err != nil {
		return nil, err
	}

	turnType := in.Type
	if turnType == "" {
		turnType = domain.TurnArgument
	}
	if !turnType.Valid() {
		return nil, fmt.Errorf("%w: unknown turn type %q", ErrValidation, in.Type)
	}

	content := in.Content
	var tokenCount *int
	if content == "" {
		var res *ai.CompletionResult
		res, err = s.generateTurn(ctx, d, p, turnType, in.RAGQuery, in.KnowledgeBase)
		if err != nil {
			return nil, err
		}
		content = res.Content
		total := res.PromptTokens + res.CompletionTokens
		tokenCount = &total
	} else if err = checkLength(content, d.Rules); err != nil {
		return nil, err
	}

	// Allocate position and advance the rotation.
	turn := &domain.Turn{
		DebateID:      d.ID,
		ParticipantID: p.ID,
		TurnNumber:    d.CurrentTurn + 1,
		RoundNumber:   d.CurrentRound,
		Type:          turnType,
		Content:       content,
		ContextRef:    d.ContextHandle,
		TokenCount:    tokenCount,
	}

	d.CurrentTurn++
	next := (d.ParticipantIndex(p.ID) + 1) % len(d.Participants)
	d.NextParticipantID = d.Participants[next].ID

	completed := false
	if d.CurrentTurn%len(d.Participants) == 0 {
		d.CurrentRound++
		if d.Rules.MaxRounds > 0 && d.CurrentRound > d.Rules.MaxRounds {
			d.Status = domain.StatusCompleted
			now := time.Now().UTC()
			d.CompletedAt = &now
			completed = true
		}
	}

	if err = s.Store.CommitTurn(ctx, s.DB, d, turn); err != nil {
		return nil, err
	}

	// Best-effort mirror into the external context.
	if s.Contexts != nil && d.ContextHandle != "" {
		if cerr := s.Contexts.AppendToContext(ctx, d.ContextHandle, []ai.Message{
			{Role: "assistant", Content: fmt.Sprintf("[%s] %s", p.Name, content)},
		}); cerr != nil {
			log.Warn().Err(cerr).Str("debate_id", d.ID).Msg("context mirror failed, continuing")
		}
	}

	s.emit(ctx, notify.Event{
		Type:     notify.EventTurnAdded,
		DebateID: d.ID,
		OrgID:    d.OrgID,
		Payload: map[string]any{
			"turn_id":        turn.ID,
			"turn_number":    turn.TurnNumber,
			"round_number":   turn.RoundNumber,
			"participant_id": p.ID,
		},
	})
	if completed {
		s.emit(ctx, notify.Event{
			Type:     notify.EventDebateCompleted,
			DebateID: d.ID,
			OrgID:    d.OrgID,
			Payload:  map[string]any{"rounds": d.Rules.MaxRounds, "turns": d.CurrentTurn},
		})
	}
	return turn, nil
}

// NextTurn infers the turn type from debate progress and delegates to
// AddTurn with no explicit participant or content, i.e. full
// auto-generation for whoever is next in the rotation.
func (s *DebateService) NextTurn(ctx context.Context, orgID, debateID string, useRAG bool, knowledgeBase string) (*domain.Turn, error) {
	d, err := s.Status(ctx, debateID)
	if err != nil {
		return nil, err
	}

	in := AddTurnInput{Type: inferTurnType(d)}
	if useRAG {
		in.RAGQuery = d.Topic
		in.KnowledgeBase = knowledgeBase
	}
	return s.AddTurn(ctx, orgID, debateID, in)
}

// Turns returns the debate's transcript ordered by turn number. Read-only,
// so it bypasses the admission gates like Status.
func (s *DebateService) Turns(ctx context.Context, debateID string) ([]domain.Turn, error) {
	if _, err := s.Status(ctx, debateID); err != nil {
		return nil, err
	}
	return s.Store.ListTurns(ctx, s.DB, debateID)
}

// inferTurnType picks the implicit type for the next auto-generated turn:
// opening while every participant takes their first turn in round one,
// closing for the final slot of the last configured round, otherwise
// argument on odd rounds and rebuttal on even rounds.
func inferTurnType(d *domain.Debate) domain.TurnType {
	n := len(d.Participants)
	if n == 0 {
		return domain.TurnArgument
	}
	if d.CurrentRound == 1 && d.CurrentTurn < n {
		return domain.TurnOpening
	}
	if d.Rules.MaxRounds > 0 && d.CurrentRound == d.Rules.MaxRounds && d.CurrentTurn%n >= n-1 {
		return domain.TurnClosing
	}
	if d.CurrentRound%2 == 1 {
		return domain.TurnArgument
	}
	return domain.TurnRebuttal
}

// resolveParticipant picks the acting member: the explicit id when given,
// otherwise the debate's next-participant pointer.
func (s *DebateService) resolveParticipant(d *domain.Debate, explicit string) (*domain.Participant, error) {
	id := explicit
	if id == "" {
		id = d.NextParticipantID
	}
	if id == "" {
		return nil, ErrParticipantNotFound
	}
	p := d.Participant(id)
	if p == nil {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// checkTurnCap enforces rules.max_turns_per_participant when configured.
func (s *DebateService) checkTurnCap(ctx context.Context, d *domain.Debate, p *domain.Participant) error {
	if d.Rules.MaxTurnsPerParticipant <= 0 {
		return nil
	}
	taken, err := s.Store.CountTurnsByParticipant(ctx, s.DB, d.ID, p.ID)
	if err != nil {
		return err
	}
	if taken >= int64(d.Rules.MaxTurnsPerParticipant) {
		return fmt.Errorf("%w: participant %s reached %d turns", ErrInvalidState, p.Name, d.Rules.MaxTurnsPerParticipant)
	}
	return nil
}

// generateTurn synthesizes turn content: a best-effort context window, a
// best-effort knowledge lookup when a query is supplied, then the
// completion call, which is the only step allowed to fail the turn.
func (s *DebateService) generateTurn(ctx context.Context, d *domain.Debate, p *domain.Participant, turnType domain.TurnType, ragQuery, knowledgeBase string) (*ai.CompletionResult, error) {
	if s.Completer == nil {
		return nil, fmt.Errorf("%w: no completion service configured", ErrExternalService)
	}

	var window []ai.Message
	if s.Contexts != nil && d.ContextHandle != "" {
		w, err := s.Contexts.GetContextWindow(ctx, d.ContextHandle, s.contextTokens(), "recent")
		if err != nil {
			log.Warn().Err(err).Str("debate_id", d.ID).Msg("context window unavailable, continuing without it")
		} else {
			window = w
		}
	}

	var snippets []ai.Snippet
	if ragQuery != "" && s.Knowledge != nil {
		found, err := s.Knowledge.Search(ctx, knowledgeBase, ragQuery, 5)
		if err != nil {
			log.Warn().Err(err).Str("debate_id", d.ID).Msg("knowledge retrieval unavailable, continuing without it")
		} else {
			snippets = found
		}
	}

	req := ai.CompletionRequest{
		Provider:    p.Provider,
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   s.maxTokens(d.Rules),
		Messages:    buildTurnMessages(d, p, turnType, window, snippets),
	}
	res, err := s.Completer.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	return res, nil
}

// contextTokens returns the configured window bound with a sane default.
func (s *DebateService) contextTokens() int {
	if s.ContextWindowTokens > 0 {
		return s.ContextWindowTokens
	}
	return 2000
}

// maxTokens derives the generation cap from the rules' character bound,
// falling back to the service default. The 4:1 chars-per-token ratio is a
// rough but serviceable budget.
func (s *DebateService) maxTokens(r domain.DebateRules) int {
	if r.MaxTurnLength > 0 {
		return r.MaxTurnLength / 4
	}
	if s.DefaultMaxTokens > 0 {
		return s.DefaultMaxTokens
	}
	return 1024
}

// checkLength validates explicit content against the rules' length bounds.
func checkLength(content string, r domain.DebateRules) error {
	n := utf8.RuneCountInString(content)
	if r.MinTurnLength > 0 && n < r.MinTurnLength {
		return fmt.Errorf("%w: turn shorter than %d characters", ErrValidation, r.MinTurnLength)
	}
	if r.MaxTurnLength > 0 && n > r.MaxTurnLength {
		return fmt.Errorf("%w: turn longer than %d characters", ErrValidation, r.MaxTurnLength)
	}
	return nil
}
