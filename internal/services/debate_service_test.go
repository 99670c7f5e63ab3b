package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-debate-backend/internal/ai"
	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/limits"
	"github.com/tbourn/go-debate-backend/internal/notify"
)

// ----- Fake store -----

type fakeStore struct {
	mu        sync.Mutex
	debates   map[string]*domain.Debate
	turns     map[string][]domain.Turn
	summaries map[string][]domain.DebateSummary

	commitErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		debates:   make(map[string]*domain.Debate),
		turns:     make(map[string][]domain.Turn),
		summaries: make(map[string][]domain.DebateSummary),
	}
}

func cloneDebate(d *domain.Debate) *domain.Debate {
	c := *d
	c.Participants = append([]domain.Participant(nil), d.Participants...)
	return &c
}

func (f *fakeStore) CreateDebate(_ context.Context, _ *gorm.DB, d *domain.Debate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debates[d.ID] = cloneDebate(d)
	return nil
}

func (f *fakeStore) SaveDebate(_ context.Context, _ *gorm.DB, d *domain.Debate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.debates[d.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.debates[d.ID] = cloneDebate(d)
	return nil
}

func (f *fakeStore) GetDebate(_ context.Context, _ *gorm.DB, id string) (*domain.Debate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.debates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneDebate(d), nil
}

func (f *fakeStore) CountDebates(_ context.Context, _ *gorm.DB, orgID string, status domain.DebateStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, d := range f.debates {
		if (orgID == "" || d.OrgID == orgID) && (status == "" || d.Status == status) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListDebatesPage(_ context.Context, _ *gorm.DB, orgID string, status domain.DebateStatus, offset, limit int) ([]domain.Debate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Debate
	for _, d := range f.debates {
		if (orgID == "" || d.OrgID == orgID) && (status == "" || d.Status == status) {
			out = append(out, *cloneDebate(d))
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (f *fakeStore) CommitTurn(_ context.Context, _ *gorm.DB, d *domain.Debate, t *domain.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	if _, ok := f.debates[d.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	f.turns[d.ID] = append(f.turns[d.ID], *t)
	f.debates[d.ID] = cloneDebate(d)
	return nil
}

func (f *fakeStore) ListTurns(_ context.Context, _ *gorm.DB, debateID string) ([]domain.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Turn(nil), f.turns[debateID]...), nil
}

func (f *fakeStore) CountTurnsByParticipant(_ context.Context, _ *gorm.DB, debateID, participantID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.turns[debateID] {
		if t.ParticipantID == participantID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SaveSummary(_ context.Context, _ *gorm.DB, s *domain.DebateSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()
	f.summaries[s.DebateID] = append(f.summaries[s.DebateID], *s)
	return nil
}

func (f *fakeStore) LatestSummary(_ context.Context, _ *gorm.DB, debateID string) (*domain.DebateSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.summaries[debateID]
	if len(list) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	s := list[len(list)-1]
	return &s, nil
}

// ----- Fake collaborators -----

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	content string
	err     error
	lastReq ai.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	content := f.content
	if content == "" {
		content = fmt.Sprintf("generated content %d", f.calls)
	}
	return &ai.CompletionResult{Content: content, PromptTokens: 5, CompletionTokens: 7}, nil
}

type fakeKnowledge struct {
	snippets []ai.Snippet
	err      error
	queries  []string
}

func (f *fakeKnowledge) Search(_ context.Context, _, query string, _ int) ([]ai.Snippet, error) {
	f.queries = append(f.queries, query)
	return f.snippets, f.err
}

// failingContexts always errors, exercising the degradable paths.
type failingContexts struct{ calls int }

func (f *failingContexts) CreateContext(context.Context, string, string, string, []ai.Message) (string, error) {
	f.calls++
	return "", errors.New("context service down")
}
func (f *failingContexts) AppendToContext(context.Context, string, []ai.Message) error {
	f.calls++
	return errors.New("context service down")
}
func (f *failingContexts) GetContextWindow(context.Context, string, int, string) ([]ai.Message, error) {
	f.calls++
	return nil, errors.New("context service down")
}

type recordingGateway struct {
	mu     sync.Mutex
	events []notify.Event
}

func (g *recordingGateway) Emit(_ context.Context, ev notify.Event) {
	g.mu.Lock()
	g.events = append(g.events, ev)
	g.mu.Unlock()
}

func (g *recordingGateway) types() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, ev := range g.events {
		out = append(out, ev.Type)
	}
	return out
}

// ----- Harness -----

func newService(store *fakeStore) *DebateService {
	return &DebateService{
		Store:     store,
		Limiter:   limits.NewRateLimiter(1000, time.Minute),
		Queue:     limits.NewRequestQueue(16),
		Locks:     limits.NewLockManager(5 * time.Second),
		Completer: &fakeCompleter{},
		Notifier:  &recordingGateway{},
	}
}

func createInput(n int) CreateDebateInput {
	in := CreateDebateInput{
		OrgID: "org1",
		Name:  "AI regulation",
		Topic: "Should frontier AI be licensed?",
		Rules: domain.DebateRules{Format: domain.FormatRoundRobin},
	}
	for i := 0; i < n; i++ {
		in.Participants = append(in.Participants, ParticipantInput{
			Name:  fmt.Sprintf("P%d", i+1),
			Model: "gpt-4o-mini",
		})
	}
	return in
}

func mustCreateActive(t *testing.T, svc *DebateService, in CreateDebateInput) *domain.Debate {
	t.Helper()
	d, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	d, err = svc.Start(context.Background(), in.OrgID, d.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d
}

// ----- Lifecycle tests -----

func TestCreate_RequiresParticipants(t *testing.T) {
	svc := newService(newFakeStore())
	in := createInput(0)
	_, err := svc.Create(context.Background(), in)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCreate_ValidatesRules(t *testing.T) {
	svc := newService(newFakeStore())

	in := createInput(2)
	in.Rules.Format = "freestyle"
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad format: err = %v", err)
	}

	in = createInput(2)
	in.Rules.MinTurnLength = 500
	in.Rules.MaxTurnLength = 100
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrValidation) {
		t.Fatalf("inverted bounds: err = %v", err)
	}
}

func TestCreate_DerivesNameFromTopic(t *testing.T) {
	svc := newService(newFakeStore())

	in := createInput(2)
	in.Name = ""
	in.Topic = "Should frontier AI be licensed by the state?"
	d, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Stop words drop out, the rest is title-cased.
	if d.Name != "Frontier Ai Licensed State" {
		t.Fatalf("derived name = %q", d.Name)
	}

	in = createInput(2)
	in.Name = ""
	in.Topic = "?!"
	d, err = svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Name != "Untitled debate" {
		t.Fatalf("fallback name = %q", d.Name)
	}

	in = createInput(2)
	in.Topic = ""
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing topic: err = %v", err)
	}
}

func TestCreate_SurvivesContextServiceOutage(t *testing.T) {
	svc := newService(newFakeStore())
	fc := &failingContexts{}
	svc.Contexts = fc

	d, err := svc.Create(context.Background(), createInput(2))
	if err != nil {
		t.Fatalf("Create should tolerate context outage: %v", err)
	}
	if fc.calls == 0 {
		t.Fatal("context service was never attempted")
	}
	if d.ContextHandle != "" {
		t.Fatalf("handle should be empty after outage, got %q", d.ContextHandle)
	}
	if d.Status != domain.StatusDraft || len(d.Participants) != 2 {
		t.Fatalf("debate malformed: %+v", d)
	}
}

func TestStart_SetsRotationAndNotifies(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	gw := svc.Notifier.(*recordingGateway)

	d, err := svc.Create(context.Background(), createInput(3))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	started, err := svc.Start(context.Background(), "org1", d.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != domain.StatusActive {
		t.Fatalf("status = %s", started.Status)
	}
	if started.StartedAt == nil {
		t.Fatal("StartedAt not stamped")
	}
	if started.NextParticipantID != d.Participants[0].ID {
		t.Fatalf("next participant = %s, want first member", started.NextParticipantID)
	}
	if got := gw.types(); len(got) != 1 || got[0] != notify.EventDebateStarted {
		t.Fatalf("events = %v", got)
	}
}

func TestStart_OnlyFromDraft(t *testing.T) {
	svc := newService(newFakeStore())
	d := mustCreateActive(t, svc, createInput(2))

	if _, err := svc.Start(context.Background(), "org1", d.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("restart: err = %v, want ErrInvalidState", err)
	}

	if _, err := svc.Pause(context.Background(), "org1", d.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := svc.Start(context.Background(), "org1", d.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("start paused: err = %v, want ErrInvalidState", err)
	}
}

func TestStart_NotFound(t *testing.T) {
	svc := newService(newFakeStore())
	_, err := svc.Start(context.Background(), "org1", uuid.NewString())
	if !errors.Is(err, ErrDebateNotFound) {
		t.Fatalf("err = %v, want ErrDebateNotFound", err)
	}
}

func TestPauseResume_Cycle(t *testing.T) {
	svc := newService(newFakeStore())
	d := mustCreateActive(t, svc, createInput(2))

	paused, err := svc.Pause(context.Background(), "org1", d.ID)
	if err != nil || paused.Status != domain.StatusPaused {
		t.Fatalf("Pause: %v (%+v)", err, paused)
	}
	// Pausing twice is illegal.
	if _, err := svc.Pause(context.Background(), "org1", d.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double pause: err = %v", err)
	}

	resumed, err := svc.Resume(context.Background(), "org1", d.ID)
	if err != nil || resumed.Status != domain.StatusActive {
		t.Fatalf("Resume: %v (%+v)", err, resumed)
	}
	// Resuming an active debate is illegal.
	if _, err := svc.Resume(context.Background(), "org1", d.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double resume: err = %v", err)
	}
}

func TestArchive_TerminalFromAnyState(t *testing.T) {
	svc := newService(newFakeStore())
	d := mustCreateActive(t, svc, createInput(2))

	archived, err := svc.Archive(context.Background(), "org1", d.ID)
	if err != nil || archived.Status != domain.StatusArchived {
		t.Fatalf("Archive: %v (%+v)", err, archived)
	}
	if _, err := svc.Resume(context.Background(), "org1", d.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("resume archived: err = %v", err)
	}
	if _, err := svc.Archive(context.Background(), "org1", d.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double archive: err = %v", err)
	}
}

func TestList_FiltersAndPages(t *testing.T) {
	svc := newService(newFakeStore())
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(context.Background(), createInput(1)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	items, total, err := svc.List(context.Background(), "org1", "", 1, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("total = %d items = %d", total, len(items))
	}

	if _, _, err := svc.List(context.Background(), "org1", "bogus", 1, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad status filter: err = %v", err)
	}

	items, total, err = svc.List(context.Background(), "other-org", "", 1, 10)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("foreign org: %d %d %v", total, len(items), err)
	}
}

func TestRateLimit_RejectsBeforeAnyWork(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	svc.Limiter = limits.NewRateLimiter(1, time.Minute)

	if _, err := svc.Create(context.Background(), createInput(1)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), createInput(1))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if len(store.debates) != 1 {
		t.Fatalf("rejected call touched state: %d debates", len(store.debates))
	}
}
