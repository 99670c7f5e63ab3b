package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-debate-backend/internal/domain"
)

func TestSaveSummaryAndLatest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := testDebate("org1", 2)
	if err := CreateDebate(ctx, db, d); err != nil {
		t.Fatalf("CreateDebate: %v", err)
	}

	first := &domain.DebateSummary{
		DebateID:  d.ID,
		Summary:   "first pass",
		KeyPoints: domain.StringList{"point one"},
		Positions: domain.StringMap{d.Participants[0].ID: "for"},
	}
	if err := SaveSummary(ctx, db, first); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	// Later summary must win LatestSummary.
	time.Sleep(5 * time.Millisecond)
	second := &domain.DebateSummary{
		DebateID:           d.ID,
		Summary:            "second pass",
		ConsensusPoints:    domain.StringList{"both agree on scope"},
		DisagreementPoints: domain.StringList{"costs remain contested"},
	}
	if err := SaveSummary(ctx, db, second); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	got, err := LatestSummary(ctx, db, d.ID)
	if err != nil {
		t.Fatalf("LatestSummary: %v", err)
	}
	if got.Summary != "second pass" {
		t.Fatalf("latest = %q, want second pass", got.Summary)
	}
	if len(got.ConsensusPoints) != 1 || len(got.DisagreementPoints) != 1 {
		t.Fatalf("JSON columns did not round-trip: %+v", got)
	}
}

func TestLatestSummary_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := LatestSummary(context.Background(), db, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDebateStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	count, byStatus, maxAt, err := DebateStats(ctx, db, "org1")
	if err != nil || count != 0 || len(byStatus) != 0 || maxAt != nil {
		t.Fatalf("empty stats: %d %v %v %v", count, byStatus, maxAt, err)
	}

	active := testDebate("org1", 1)
	active.Status = domain.StatusActive
	if err := CreateDebate(ctx, db, active); err != nil {
		t.Fatalf("CreateDebate: %v", err)
	}
	draft := testDebate("org1", 1)
	if err := CreateDebate(ctx, db, draft); err != nil {
		t.Fatalf("CreateDebate: %v", err)
	}

	count, byStatus, maxAt, err = DebateStats(ctx, db, "org1")
	if err != nil {
		t.Fatalf("DebateStats: %v", err)
	}
	if count != 2 || byStatus[domain.StatusActive] != 1 || byStatus[domain.StatusDraft] != 1 {
		t.Fatalf("stats mismatch: %d %v", count, byStatus)
	}
	if maxAt == nil {
		t.Fatal("maxUpdatedAt should be set")
	}
}

func TestTurnsStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := testDebate("org1", 1)
	if err := CreateDebate(ctx, db, d); err != nil {
		t.Fatalf("CreateDebate: %v", err)
	}

	count, lastAt, err := TurnsStats(ctx, db, d.ID)
	if err != nil || count != 0 || lastAt != nil {
		t.Fatalf("empty turn stats: %d %v %v", count, lastAt, err)
	}

	turn := &domain.Turn{DebateID: d.ID, ParticipantID: d.Participants[0].ID, TurnNumber: 1, RoundNumber: 1, Type: domain.TurnOpening, Content: "x"}
	if err := CreateTurn(ctx, db, turn); err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	count, lastAt, err = TurnsStats(ctx, db, d.ID)
	if err != nil || count != 1 || lastAt == nil {
		t.Fatalf("turn stats: %d %v %v", count, lastAt, err)
	}
}
