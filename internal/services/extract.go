// Package services – summary extraction heuristics.
//
// This file implements the pluggable strategy that mines a generated
// summary for structured fragments: bullet key points, per-participant
// position excerpts, and keyword-triggered consensus/disagreement
// sentences. The heuristics are intentionally approximate; they produce
// best-effort formatting, not guaranteed data extraction.
package services

import (
	"strings"

	"github.com/tbourn/go-debate-backend/internal/domain"
)

// Extraction is the structured output mined from a summary.
type Extraction struct {
	KeyPoints          []string
	Positions          map[string]string
	ConsensusPoints    []string
	DisagreementPoints []string
}

// ExtractStrategy mines structured fragments from a generated summary.
// Implementations must be pure: no I/O, no retained state.
type ExtractStrategy interface {
	Extract(d *domain.Debate, turns []domain.Turn, summary string, includeConsensus, includeDisagreements bool) Extraction
}

// HeuristicExtractor is the default ExtractStrategy.
type HeuristicExtractor struct{}

// positionExcerptLen caps each participant's position excerpt.
const positionExcerptLen = 200

var (
	consensusMarkers    = []string{"agree", "consensus", "common ground", "both sides", "all participants", "shared"}
	disagreementMarkers = []string{"disagree", "dispute", "contested", "diverge", "conflict", "opposed", "at odds"}
)

// Extract applies the bullet/keyword heuristics.
func (HeuristicExtractor) Extract(d *domain.Debate, turns []domain.Turn, summary string, includeConsensus, includeDisagreements bool) Extraction {
	ex := Extraction{
		KeyPoints: extractBullets(summary),
		Positions: extractPositions(d, turns),
	}
	if includeConsensus {
		ex.ConsensusPoints = extractSentences(summary, consensusMarkers)
	}
	if includeDisagreements {
		ex.DisagreementPoints = extractSentences(summary, disagreementMarkers)
	}
	return ex
}

// extractBullets collects lines beginning with a bullet marker.
func extractBullets(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, marker := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(trimmed, marker) {
				point := strings.TrimSpace(strings.TrimPrefix(trimmed, marker))
				if point != "" {
					out = append(out, point)
				}
				break
			}
		}
	}
	return out
}

// extractPositions takes the first 200 characters of each participant's
// opening turn, falling back to their first turn of any type.
func extractPositions(d *domain.Debate, turns []domain.Turn) map[string]string {
	out := make(map[string]string)
	for _, p := range d.Participants {
		var first, opening *domain.Turn
		for i := range turns {
			t := &turns[i]
			if t.ParticipantID != p.ID {
				continue
			}
			if first == nil {
				first = t
			}
			if t.Type == domain.TurnOpening {
				opening = t
				break
			}
		}
		pick := opening
		if pick == nil {
			pick = first
		}
		if pick == nil {
			continue
		}
		out[p.ID] = excerpt(pick.Content, positionExcerptLen)
	}
	return out
}

// extractSentences returns sentences containing any of the markers
// (case-insensitive match).
func extractSentences(text string, markers []string) []string {
	var out []string
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, m := range markers {
			if strings.Contains(lower, m) {
				out = append(out, sentence)
				break
			}
		}
	}
	return out
}

// splitSentences performs a naive period/question/exclamation split, good
// enough for keyword triggering.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// excerpt clips s to at most n runes.
func excerpt(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}
