// Package services – debate summarization.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-debate-backend/internal/ai"
	"github.com/tbourn/go-debate-backend/internal/domain"
)

// SummarizeOptions tunes a summarization request.
type SummarizeOptions struct {
	// Style is "balanced" (default), "concise", or "detailed". The style is
	// a prompt-level hint, not a validated enum.
	Style string
	// IncludeConsensus and IncludeDisagreements toggle the corresponding
	// extraction passes.
	IncludeConsensus     bool
	IncludeDisagreements bool
}

// summaryTemperature keeps summaries deterministic-ish regardless of the
// participants' own generation settings.
const summaryTemperature = 0.3

// Summarize generates and persists a summary of the debate so far. It runs
// the full gate sequence (summaries read every turn, so they are serialized
// with writers of the same debate) but never mutates debate status. The
// context window is best-effort; the completion call is not.
func (s *DebateService) Summarize(ctx context.Context, orgID, debateID string, opts SummarizeOptions) (*domain.DebateSummary, error) {
	tr := otel.Tracer("services/DebateService")
	ctx, span := tr.Start(ctx, "Summarize",
		trace.WithAttributes(attribute.String("debate.id", debateID)),
	)
	defer span.End()

	start := time.Now()
	release, err := s.admit(ctx, orgID, debateID)
	if err != nil {
		s.Metrics.OperationDone("summarize_debate", start, err)
		return nil, err
	}
	defer release()
	defer func() { s.Metrics.OperationDone("summarize_debate", start, err) }()

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

	turns, err := s.Store.ListTurns(ctx, s.DB, debateID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: debate has no turns to summarize", ErrValidation)
	}

	if s.Completer == nil {
		return nil, fmt.Errorf("%w: no completion service configured", ErrExternalService)
	}

	var window []ai.Message
	if s.Contexts != nil && d.ContextHandle != "" {
		w, werr := s.Contexts.GetContextWindow(ctx, d.ContextHandle, s.contextTokens(), "recent")
		if werr != nil {
			log.Warn().Err(werr).Str("debate_id", d.ID).Msg("context window unavailable, continuing without it")
		} else {
			window = w
		}
	}

	res, err := s.Completer.Complete(ctx, ai.CompletionRequest{
		Model:       s.summaryModel(d),
		Temperature: summaryTemperature,
		MaxTokens:   s.DefaultMaxTokens,
		Messages:    buildSummaryMessages(d, turns, window, opts.Style, opts.IncludeConsensus, opts.IncludeDisagreements),
	})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrExternalService, err)
		return nil, err
	}

	ex := s.extractor().Extract(d, turns, res.Content, opts.IncludeConsensus, opts.IncludeDisagreements)

	summary := &domain.DebateSummary{
		DebateID:           d.ID,
		Summary:            res.Content,
		KeyPoints:          ex.KeyPoints,
		Positions:          ex.Positions,
		ConsensusPoints:    ex.ConsensusPoints,
		DisagreementPoints: ex.DisagreementPoints,
	}
	if err = s.Store.SaveSummary(ctx, s.DB, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// LatestSummary returns the most recent persisted summary for a debate.
func (s *DebateService) LatestSummary(ctx context.Context, debateID string) (*domain.DebateSummary, error) {
	sum, err := s.Store.LatestSummary(ctx, s.DB, debateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDebateNotFound
		}
		return nil, err
	}
	return sum, nil
}

// defaultExtractor is the fallback extraction strategy.
var defaultExtractor ExtractStrategy = HeuristicExtractor{}

// SetExtractor replaces the extraction strategy (used by callers wanting a
// different heuristic; tests mostly).
func (s *DebateService) SetExtractor(e ExtractStrategy) { s.extractorOverride = e }

// extractor returns the active strategy.
func (s *DebateService) extractor() ExtractStrategy {
	if s.extractorOverride != nil {
		return s.extractorOverride
	}
	return defaultExtractor
}

// summaryModel picks the model for summarization: the first moderator's, or
// the first participant's as a fallback.
func (s *DebateService) summaryModel(d *domain.Debate) string {
	for _, p := range d.Participants {
		if p.Role == domain.RoleModerator && p.Model != "" {
			return p.Model
		}
	}
	if len(d.Participants) > 0 {
		return d.Participants[0].Model
	}
	return ""
}
