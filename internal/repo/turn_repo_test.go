package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/tbourn/go-debate-backend/internal/domain"
)

func TestCommitTurn_AtomicWithDebateState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := testDebate("org1", 2)
	d.Status = domain.StatusActive
	if err := CreateDebate(ctx, db, d); err != nil {
		t.Fatalf("CreateDebate: %v", err)
	}

	d.CurrentTurn = 1
	d.NextParticipantID = d.Participants[1].ID
	turn := &domain.Turn{
		DebateID:      d.ID,
		ParticipantID: d.Participants[0].ID,
		TurnNumber:    1,
		RoundNumber:   1,
		Type:          domain.TurnOpening,
		Content:       "Opening statement.",
	}
	if err := CommitTurn(ctx, db, d, turn); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}
	if turn.ID == "" || turn.CreatedAt.IsZero() {
		t.Fatalf("turn identity not stamped: %+v", turn)
	}

	got, err := GetDebate(ctx, db, d.ID)
	if err != nil {
		t.Fatalf("GetDebate: %v", err)
	}
	if got.CurrentTurn != 1 || got.NextParticipantID != d.Participants[1].ID {
		t.Fatalf("debate state not advanced with turn: %+v", got)
	}

	turns, err := ListTurns(ctx, db, d.ID)
	if err != nil || len(turns) != 1 {
		t.Fatalf("ListTurns = %d, %v", len(turns), err)
	}
	if turns[0].TurnNumber != 1 || turns[0].Type != domain.TurnOpening {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}
}

func TestCommitTurn_MissingDebateRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ghost := &domain.Debate{ID: uuid.NewString()}
	turn := &domain.Turn{
		DebateID:      ghost.ID,
		ParticipantID: uuid.NewString(),
		TurnNumber:    1,
		RoundNumber:   1,
		Type:          domain.TurnArgument,
		Content:       "orphan",
	}
	if err := CommitTurn(ctx, db, ghost, turn); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// The turn insert must have been rolled back with the failed update.
	turns, err := ListTurns(ctx, db, ghost.ID)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("turn leaked outside transaction: %+v", turns)
	}
}

func TestGetTurn(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := testDebate("org1", 2)
	if err := CreateDebate(ctx, db, d); err != nil {
		t.Fatalf("CreateDebate: %v", err)
	}
	turn := &domain.Turn{
		DebateID:      d.ID,
		ParticipantID: d.Participants[0].ID,
		TurnNumber:    1,
		RoundNumber:   1,
		Type:          domain.TurnOpening,
		Content:       "hello",
	}
	if err := CreateTurn(ctx, db, turn); err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	got, err := GetTurn(ctx, db, turn.ID)
	if err != nil {
		t.Fatalf("GetTurn: %v", err)
	}
	if got.Content != "hello" || got.DebateID != d.ID {
		t.Fatalf("mismatch: %+v", got)
	}

	if _, err := GetTurn(ctx, db, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: err = %v, want ErrNotFound", err)
	}
}

func TestListTurns_OrderedByNumber(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := testDebate("org1", 2)
	if err := CreateDebate(ctx, db, d); err != nil {
		t.Fatalf("CreateDebate: %v", err)
	}

	// Insert out of order on purpose.
	for _, n := range []int{2, 1, 3} {
		turn := &domain.Turn{
			DebateID:      d.ID,
			ParticipantID: d.Participants[n%2].ID,
			TurnNumber:    n,
			RoundNumber:   1,
			Type:          domain.TurnArgument,
			Content:       "x",
		}
		if err := CreateTurn(ctx, db, turn); err != nil {
			t.Fatalf("CreateTurn: %v", err)
		}
	}

	turns, err := ListTurns(ctx, db, d.ID)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	for i, tr := range turns {
		if tr.TurnNumber != i+1 {
			t.Fatalf("turn %d has number %d", i, tr.TurnNumber)
		}
	}
}

func TestCountTurnsByParticipant(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := testDebate("org1", 2)
	if err := CreateDebate(ctx, db, d); err != nil {
		t.Fatalf("CreateDebate: %v", err)
	}
	for i := 1; i <= 3; i++ {
		pid := d.Participants[0].ID
		if i == 2 {
			pid = d.Participants[1].ID
		}
		turn := &domain.Turn{DebateID: d.ID, ParticipantID: pid, TurnNumber: i, RoundNumber: 1, Type: domain.TurnArgument, Content: "x"}
		if err := CreateTurn(ctx, db, turn); err != nil {
			t.Fatalf("CreateTurn: %v", err)
		}
	}

	n, err := CountTurnsByParticipant(ctx, db, d.ID, d.Participants[0].ID)
	if err != nil || n != 2 {
		t.Fatalf("CountTurnsByParticipant = %d, %v", n, err)
	}
}
