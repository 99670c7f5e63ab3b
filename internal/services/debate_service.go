// Package services – DebateService.
//
// This file implements the orchestrator's lifecycle operations: creating a
// debate, starting it, pausing/resuming, status lookup, and listing. The
// turn path lives in turns.go and summarization in summary.go.
//
// Every mutating operation runs the same guard sequence before touching
// state: tenant rate limit (reject fast), queue admission (bound in-flight
// work), then the per-debate lock. External-service calls happen inside the
// locked critical section but each carries its own timeout, and only the
// completion service is allowed to fail the operation; context and
// knowledge enrichment degrade gracefully.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// debate/org identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-debate-backend/internal/ai"
	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/limits"
	"github.com/tbourn/go-debate-backend/internal/notify"
	"github.com/tbourn/go-debate-backend/internal/observability"
)

// DebateStore defines the persistence contract required by DebateService.
// The repo package provides the concrete implementation; tests substitute
// fakes.
type DebateStore interface {
	// CreateDebate inserts a debate with its participants atomically.
	CreateDebate(ctx context.Context, db *gorm.DB, d *domain.Debate) error
	// SaveDebate persists the mutable state of an existing debate.
	SaveDebate(ctx context.Context, db *gorm.DB, d *domain.Debate) error
	// GetDebate fetches a debate with participants in position order.
	GetDebate(ctx context.Context, db *gorm.DB, id string) (*domain.Debate, error)
	// CountDebates returns the total matching the optional filters.
	CountDebates(ctx context.Context, db *gorm.DB, orgID string, status domain.DebateStatus) (int64, error)
	// ListDebatesPage returns a page of debates matching the filters.
	ListDebatesPage(ctx context.Context, db *gorm.DB, orgID string, status domain.DebateStatus, offset, limit int) ([]domain.Debate, error)
	// CommitTurn persists a turn and the advanced debate state atomically.
	CommitTurn(ctx context.Context, db *gorm.DB, d *domain.Debate, t *domain.Turn) error
	// ListTurns returns every turn of a debate in turn-number order.
	ListTurns(ctx context.Context, db *gorm.DB, debateID string) ([]domain.Turn, error)
	// CountTurnsByParticipant counts one member's turns in a debate.
	CountTurnsByParticipant(ctx context.Context, db *gorm.DB, debateID, participantID string) (int64, error)
	// SaveSummary appends a generated summary row.
	SaveSummary(ctx context.Context, db *gorm.DB, s *domain.DebateSummary) error
	// LatestSummary returns the most recent summary for a debate.
	LatestSummary(ctx context.Context, db *gorm.DB, debateID string) (*domain.DebateSummary, error)
}

// DebateService orchestrates the debate lifecycle. All mutation of debate
// and turn state flows through this type; the admission-control primitives
// and external collaborators are injected at construction.
type DebateService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the persistence contract (see repo for the implementation).
	Store DebateStore

	// Limiter admits per-tenant work; Queue bounds in-flight operations;
	// Locks serializes mutation per debate id.
	Limiter *limits.RateLimiter
	Queue   *limits.RequestQueue
	Locks   *limits.LockManager

	// Completer generates turn text; a failure here fails the operation.
	Completer ai.Completer
	// Knowledge and Contexts are optional enrichments; nil or failing
	// instances degrade the operation rather than aborting it.
	Knowledge ai.Knowledge
	Contexts  ai.ContextStore

	// Notifier receives lifecycle events; nil means no notifications.
	Notifier notify.Gateway

	// Metrics records operation counts, latencies, and admission outcomes.
	Metrics *observability.Metrics

	// ContextWindowTokens bounds the conversation window fetched per turn.
	ContextWindowTokens int
	// DefaultMaxTokens caps generated turn length when rules give no bound.
	DefaultMaxTokens int

	// TitleLocale selects the casing locale for debate names derived from
	// the topic. Und falls back to English.
	TitleLocale language.Tag

	// extractorOverride replaces the heuristic summary extraction strategy
	// when set via SetExtractor.
	extractorOverride ExtractStrategy
}

// CreateDebateInput carries the validated fields for a new debate.
type CreateDebateInput struct {
	OrgID        string
	Name         string
	Topic        string
	Description  string
	Participants []ParticipantInput
	Rules        domain.DebateRules
	Metadata     string
}

// ParticipantInput describes one member of a new debate.
type ParticipantInput struct {
	Name         string
	Role         domain.ParticipantRole
	Provider     string
	Model        string
	Temperature  float32
	SystemPrompt string
	Stance       string
}

// Create validates the request, constructs the debate in draft state,
// best-effort registers an external context namespace, and persists the
// aggregate. A context-service failure leaves the debate usable without
// cross-service context aggregation.
func (s *DebateService) Create(ctx context.Context, in CreateDebateInput) (*domain.Debate, error) {
	tr := otel.Tracer("services/DebateService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("org.id", in.OrgID)),
	)
	defer span.End()

	start := time.Now()
	release, err := s.admit(ctx, in.OrgID, "create_debate")
	if err != nil {
		return nil, err
	}
	defer release()
	defer func() { s.Metrics.OperationDone("create_debate", start, err) }()

	if err = validateCreate(in); err != nil {
		return nil, err
	}

	name := in.Name
	if name == "" {
		name = s.nameFromTopic(in.Topic)
	}

	d := &domain.Debate{
		ID:           uuid.NewString(),
		OrgID:        in.OrgID,
		Name:         name,
		Topic:        in.Topic,
		Description:  in.Description,
		Rules:        normalizeRules(in.Rules),
		Status:       domain.StatusDraft,
		CurrentRound: 1,
		Metadata:     in.Metadata,
	}
	for i, p := range in.Participants {
		role := p.Role
		if role == "" {
			role = domain.RoleDebater
		}
		d.Participants = append(d.Participants, domain.Participant{
			ID:           uuid.NewString(),
			DebateID:     d.ID,
			Position:     i,
			Name:         p.Name,
			Role:         role,
			Provider:     p.Provider,
			Model:        p.Model,
			Temperature:  p.Temperature,
			SystemPrompt: p.SystemPrompt,
			Stance:       p.Stance,
		})
	}

	// Best-effort: a missing context service must not fail creation.
	if s.Contexts != nil {
		handle, cerr := s.Contexts.CreateContext(ctx, in.OrgID, "debates", d.Name, []ai.Message{
			{Role: "system", Content: "Debate topic: " + d.Topic},
		})
		if cerr != nil {
			log.Warn().Err(cerr).Str("debate_id", d.ID).Msg("context namespace unavailable, continuing without it")
		} else {
			d.ContextHandle = handle
		}
	}

	if err = s.Store.CreateDebate(ctx, s.DB, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Start transitions a draft debate to active, points the rotation at the
// first participant, and emits debate_started.
func (s *DebateService) Start(ctx context.Context, orgID, debateID string) (*domain.Debate, error) {
	tr := otel.Tracer("services/DebateService")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(attribute.String("debate.id", debateID)),
	)
	defer span.End()

	start := time.Now()
	var err error
	defer func() { s.Metrics.OperationDone("start_debate", start, err) }()

	var d *domain.Debate
	d, err = s.transition(ctx, orgID, debateID, domain.StatusActive, func(d *domain.Debate) {
		now := time.Now().UTC()
		d.StartedAt = &now
		d.NextParticipantID = d.Participants[0].ID
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.Event{
		Type:     notify.EventDebateStarted,
		DebateID: d.ID,
		OrgID:    d.OrgID,
		Payload:  map[string]any{"next_participant_id": d.NextParticipantID},
	})
	return d, nil
}

// Pause transitions an active debate to paused.
func (s *DebateService) Pause(ctx context.Context, orgID, debateID string) (*domain.Debate, error) {
	start := time.Now()
	d, err := s.transition(ctx, orgID, debateID, domain.StatusPaused, nil)
	s.Metrics.OperationDone("pause_debate", start, err)
	return d, err
}

// Resume transitions a paused debate back to active.
func (s *DebateService) Resume(ctx context.Context, orgID, debateID string) (*domain.Debate, error) {
	start := time.Now()
	d, err := s.transition(ctx, orgID, debateID, domain.StatusActive, nil)
	s.Metrics.OperationDone("resume_debate", start, err)
	return d, err
}

// Archive retires a debate. Archiving is legal from every state and is
// terminal.
func (s *DebateService) Archive(ctx context.Context, orgID, debateID string) (*domain.Debate, error) {
	start := time.Now()
	d, err := s.transition(ctx, orgID, debateID, domain.StatusArchived, nil)
	s.Metrics.OperationDone("archive_debate", start, err)
	return d, err
}

// Status returns the debate with participants loaded. Read-only, so it
// bypasses the admission gates.
func (s *DebateService) Status(ctx context.Context, debateID string) (*domain.Debate, error) {
	d, err := s.Store.GetDebate(ctx, s.DB, debateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDebateNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns a page of debates for the optional org/status filters plus
// the total count. Defaults are applied for invalid page/pageSize.
func (s *DebateService) List(ctx context.Context, orgID string, status domain.DebateStatus, page, pageSize int) ([]domain.Debate, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	offset := (page - 1) * pageSize

	total, err := s.Store.CountDebates(ctx, s.DB, orgID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Debate{}, 0, nil
	}

	items, err := s.Store.ListDebatesPage(ctx, s.DB, orgID, status, offset, pageSize)
	return items, total, err
}

// transition applies a guarded single-field status change under the full
// gate sequence. mutate, when non-nil, runs after the legality check and
// before persistence.
func (s *DebateService) transition(ctx context.Context, orgID, debateID string, target domain.DebateStatus, mutate func(*domain.Debate)) (*domain.Debate, error) {
	release, err := s.admit(ctx, orgID, debateID)
	if err != nil {
		return nil, err
	}
	defer release()

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

	if !d.Status.CanTransition(target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidState, d.Status, target)
	}
	d.Status = target
	if mutate != nil {
		mutate(d)
	}

	if err := s.Store.SaveDebate(ctx, s.DB, d); err != nil {
		return nil, err
	}
	return d, nil
}

// admit runs the rate-limit and queue gates shared by every mutating
// operation. The returned release function frees the queue slot and must be
// called exactly once. ticket keys the queue's reference counting, usually
// the debate id.
func (s *DebateService) admit(ctx context.Context, orgID, ticket string) (func(), error) {
	tenant := orgID
	if tenant == "" {
		tenant = ticket
	}
	if s.Limiter != nil && !s.Limiter.Allow(tenant) {
		s.Metrics.RateLimited()
		return nil, ErrRateLimited
	}
	s.Metrics.OperationStarted()
	if s.Queue != nil {
		if err := s.Queue.Acquire(ctx, ticket); err != nil {
			s.Metrics.OperationEnded()
			return nil, err
		}
		return func() {
			s.Queue.Release(ticket)
			s.Metrics.OperationEnded()
		}, nil
	}
	return s.Metrics.OperationEnded, nil
}

// lockDebate acquires the per-debate lock, recording the wait and mapping
// the lock manager's timeout to the service taxonomy.
func (s *DebateService) lockDebate(ctx context.Context, debateID string) (func(), error) {
	if s.Locks == nil {
		return func() {}, nil
	}
	waitStart := time.Now()
	release, err := s.Locks.Lock(ctx, debateID)
	s.Metrics.LockWaited(time.Since(waitStart))
	if err != nil {
		if errors.Is(err, limits.ErrLockTimeout) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}
	return release, nil
}

// emit forwards a lifecycle event when a notifier is wired.
func (s *DebateService) emit(ctx context.Context, ev notify.Event) {
	if s.Notifier == nil {
		return
	}
	ev.At = time.Now().UTC()
	s.Notifier.Emit(ctx, ev)
}

// validateCreate enforces the create-debate preconditions.
func validateCreate(in CreateDebateInput) error {
	if len(in.Participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrValidation)
	}
	if in.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrValidation)
	}
	for _, p := range in.Participants {
		if p.Name == "" {
			return fmt.Errorf("%w: participant name is required", ErrValidation)
		}
		if p.Role != "" && !p.Role.Valid() {
			return fmt.Errorf("%w: unknown participant role %q", ErrValidation, p.Role)
		}
	}
	r := in.Rules
	if r.Format != "" && !r.Format.Valid() {
		return fmt.Errorf("%w: unknown debate format %q", ErrValidation, r.Format)
	}
	if r.MaxRounds < 0 || r.MaxTurnsPerParticipant < 0 {
		return fmt.Errorf("%w: negative round/turn bounds", ErrValidation)
	}
	if r.MinTurnLength < 0 || r.MaxTurnLength < 0 || (r.MaxTurnLength > 0 && r.MinTurnLength > r.MaxTurnLength) {
		return fmt.Errorf("%w: inconsistent turn length bounds", ErrValidation)
	}
	return nil
}

// normalizeRules applies the default format.
func normalizeRules(r domain.DebateRules) domain.DebateRules {
	if r.Format == "" {
		r.Format = domain.FormatRoundRobin
	}
	return r
}

// --- Name derivation helpers ---

// Extract Unicode letters with optional trailing numbers (e.g., "ai2030").
var nameWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact derived names.
var nameStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"should": {}, "could": {}, "would": {},
}

// nameFromTopic derives a concise debate name from the topic when the client
// did not supply one.
func (s *DebateService) nameFromTopic(topic string) string {
	toks := nameWordRE.FindAllString(strings.ToLower(topic), -1)
	if len(toks) == 0 {
		return "Untitled debate"
	}

	titleCaser := cases.Title(s.localeOrDefault())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := nameStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return "Untitled debate"
	}
	return strings.Join(out, " ")
}

// localeOrDefault returns the configured casing locale or English if unset.
func (s *DebateService) localeOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}
