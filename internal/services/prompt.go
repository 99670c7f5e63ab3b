// Package services: prompt construction.
//
// This file builds the message lists sent to the completion service: a
// role/format-aware system prompt for turn generation and the
// summarization prompt. Prompts are plain text; the completion adapter owns
// provider-specific framing.
package services

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-debate-backend/internal/ai"
	"github.com/tbourn/go-debate-backend/internal/domain"
)

// buildTurnMessages assembles the completion request for one generated
// turn: system prompt, optional knowledge snippets, the bounded context
// window, and the closing instruction to produce the turn.
func buildTurnMessages(d *domain.Debate, p *domain.Participant, turnType domain.TurnType, window []ai.Message, snippets []ai.Snippet) []ai.Message {
	msgs := []ai.Message{{Role: "system", Content: buildSystemPrompt(d, p, turnType)}}

	if len(snippets) > 0 {
		var b strings.Builder
		b.WriteString("Relevant background material:\n")
		for _, sn := range snippets {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(sn.Content))
			b.WriteString("\n")
		}
		msgs = append(msgs, ai.Message{Role: "system", Content: b.String()})
	}

	msgs = append(msgs, window...)
	msgs = append(msgs, ai.Message{
		Role:    "user",
		Content: fmt.Sprintf("Deliver your %s now.", turnType),
	})
	return msgs
}

// buildSystemPrompt embeds the debate topic, the participant's identity,
// stance, and role, the turn-type instruction, and the configured length
// constraints into one system prompt.
func buildSystemPrompt(d *domain.Debate, p *domain.Participant, turnType domain.TurnType) string {
	var b strings.Builder

	if p.SystemPrompt != "" {
		b.WriteString(p.SystemPrompt)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "You are %s, a %s in a %s debate on the topic: %q.\n", p.Name, p.Role, formatLabel(d.Rules.Format), d.Topic)
	if p.Stance != "" {
		fmt.Fprintf(&b, "Your declared position: %s\n", p.Stance)
	}
	fmt.Fprintf(&b, "Round %d, turn %d of the debate.\n", d.CurrentRound, d.CurrentTurn+1)

	b.WriteString(turnInstruction(turnType))

	if d.Rules.MinTurnLength > 0 || d.Rules.MaxTurnLength > 0 {
		b.WriteString("\nLength: ")
		switch {
		case d.Rules.MinTurnLength > 0 && d.Rules.MaxTurnLength > 0:
			fmt.Fprintf(&b, "between %d and %d characters.", d.Rules.MinTurnLength, d.Rules.MaxTurnLength)
		case d.Rules.MinTurnLength > 0:
			fmt.Fprintf(&b, "at least %d characters.", d.Rules.MinTurnLength)
		default:
			fmt.Fprintf(&b, "at most %d characters.", d.Rules.MaxTurnLength)
		}
	}
	return b.String()
}

// turnInstruction states what the participant should do for each turn type.
func turnInstruction(t domain.TurnType) string {
	switch t {
	case domain.TurnOpening:
		return "Give your opening statement: introduce your position and preview your main arguments."
	case domain.TurnRebuttal:
		return "Rebut the strongest points made so far, addressing them directly."
	case domain.TurnQuestion:
		return "Pose one probing question to another participant."
	case domain.TurnAnswer:
		return "Answer the question directed at you, then briefly reinforce your position."
	case domain.TurnClosing:
		return "Give your closing statement: summarize your case and why it should prevail."
	default:
		return "Present your next argument, building on the discussion so far."
	}
}

// formatLabel renders the format enum for prompt text.
func formatLabel(f domain.DebateFormat) string {
	return strings.ReplaceAll(string(f), "_", " ")
}

// buildSummaryMessages assembles the summarization request: the full
// transcript with participant names and stances, plus style directives.
func buildSummaryMessages(d *domain.Debate, turns []domain.Turn, window []ai.Message, style string, includeConsensus, includeDisagreements bool) []ai.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following %s debate on the topic %q.\n", formatLabel(d.Rules.Format), d.Topic)
	b.WriteString("Participants:\n")
	for _, p := range d.Participants {
		fmt.Fprintf(&b, "- %s (%s)", p.Name, p.Role)
		if p.Stance != "" {
			fmt.Fprintf(&b, ", position: %s", p.Stance)
		}
		b.WriteString("\n")
	}

	switch style {
	case "concise":
		b.WriteString("Keep the summary to a short paragraph.\n")
	case "detailed":
		b.WriteString("Write a thorough summary covering each round.\n")
	default:
		b.WriteString("Write a balanced summary of moderate length.\n")
	}
	b.WriteString("List the key points as bullet lines starting with '-'.\n")
	if includeConsensus {
		b.WriteString("Note where participants agree.\n")
	}
	if includeDisagreements {
		b.WriteString("Note where participants disagree.\n")
	}

	b.WriteString("\nTranscript:\n")
	for _, t := range turns {
		name := t.ParticipantID
		if p := d.Participant(t.ParticipantID); p != nil {
			name = p.Name
		}
		fmt.Fprintf(&b, "[round %d, %s] %s: %s\n", t.RoundNumber, t.Type, name, t.Content)
	}

	msgs := []ai.Message{{Role: "system", Content: "You summarize structured debates faithfully and without taking sides."}}
	msgs = append(msgs, window...)
	msgs = append(msgs, ai.Message{Role: "user", Content: b.String()})
	return msgs
}
