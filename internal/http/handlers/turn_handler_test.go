package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/http/middleware"
	"github.com/tbourn/go-debate-backend/internal/services"
)

// activeDebate creates and starts a two-member debate through the service.
func activeDebate(t *testing.T, svc *services.DebateService) *domain.Debate {
	t.Helper()
	d, err := svc.Create(context.Background(), services.CreateDebateInput{
		OrgID: "org1",
		Name:  "n",
		Topic: "t",
		Participants: []services.ParticipantInput{
			{Name: "Advocate"}, {Name: "Skeptic"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d, err = svc.Start(context.Background(), "org1", d.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return d
}

func Test_sanitizeContent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  hello  ", "hello"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"p1\n\n\n\n\np2", "p1\n\np2"},
		{"\n\n  body  \n\n", "body"},
	}
	for _, tc := range cases {
		if got := sanitizeContent(tc.in); got != tc.want {
			t.Fatalf("sanitizeContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddTurn_BadJSON_Success_Conflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	svc := newHTTPService(db)
	h := New(svc)

	r := gin.New()
	r.POST("/debates/:id/turns", h.AddTurn)

	d := activeDebate(t, svc)

	// Bad JSON -> 400
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/debates/"+d.ID+"/turns", bytes.NewBufferString("{bad"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}

	// Explicit content -> 201, turn 1 for the first participant
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/debates/"+d.ID+"/turns",
		bytes.NewBufferString(`{"content":"Licensing will slow abuse.\r\n\r\nIt worked for aviation."}`))
	req.Header.Set("X-Org-ID", "org1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("add -> %d body=%s", w.Code, w.Body.String())
	}
	var out TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Turn.TurnNumber != 1 || out.Turn.ParticipantID != d.Participants[0].ID {
		t.Fatalf("unexpected turn: %#v", out.Turn)
	}
	if bytes.Contains([]byte(out.Turn.Content), []byte("\r")) {
		t.Fatalf("content not normalized: %q", out.Turn.Content)
	}

	// Paused debate -> 409
	if _, err := svc.Pause(context.Background(), "org1", d.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/debates/"+d.ID+"/turns",
		bytes.NewBufferString(`{"content":"too late"}`))
	req.Header.Set("X-Org-ID", "org1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("paused -> %d", w.Code)
	}
}

func TestAddTurn_IdempotencyReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	svc := newHTTPService(db)
	h := New(svc)

	r := gin.New()
	r.POST("/debates/:id/turns",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil),
		h.AddTurn)

	d := activeDebate(t, svc)
	key := uuid.NewString()

	post := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/debates/"+d.ID+"/turns",
			bytes.NewBufferString(`{"content":"The same argument, retried."}`))
		req.Header.Set("X-Org-ID", "org1")
		req.Header.Set("Idempotency-Key", key)
		r.ServeHTTP(w, req)
		return w
	}

	// First request commits a turn.
	w1 := post()
	if w1.Code != http.StatusCreated {
		t.Fatalf("first -> %d body=%s", w1.Code, w1.Body.String())
	}
	var first TurnResponse
	if err := json.Unmarshal(w1.Body.Bytes(), &first); err != nil {
		t.Fatalf("json: %v", err)
	}

	// Retry with the same key replays it instead of appending a second turn.
	w2 := post()
	if w2.Code != http.StatusOK {
		t.Fatalf("replay -> %d body=%s", w2.Code, w2.Body.String())
	}
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("missing Idempotency-Replayed header")
	}
	var second TurnResponse
	if err := json.Unmarshal(w2.Body.Bytes(), &second); err != nil {
		t.Fatalf("json: %v", err)
	}
	if second.Turn.ID != first.Turn.ID {
		t.Fatalf("replay returned a different turn: %s vs %s", second.Turn.ID, first.Turn.ID)
	}

	turns, err := svc.Turns(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("stored turns = %d, want 1", len(turns))
	}

	// A fresh key appends normally.
	key = uuid.NewString()
	if w3 := post(); w3.Code != http.StatusCreated {
		t.Fatalf("new key -> %d", w3.Code)
	}
}

func TestNextTurn_PassesOptionsThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotRAG bool
	var gotKB string
	stub := stubDebateSvc{
		nextTurn: func(ctx context.Context, orgID, id string, useRAG bool, kb string) (*domain.Turn, error) {
			gotRAG, gotKB = useRAG, kb
			return &domain.Turn{ID: uuid.NewString(), DebateID: id, TurnNumber: 3}, nil
		},
	}
	h := New(stub)
	r := gin.New()
	r.POST("/debates/:id/turns/next", h.NextTurn)

	id := uuid.NewString()

	// With options body
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/debates/"+id+"/turns/next",
		bytes.NewBufferString(`{"use_rag":true,"knowledge_base":" policy "}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("next -> %d body=%s", w.Code, w.Body.String())
	}
	if !gotRAG || gotKB != "policy" {
		t.Fatalf("options not forwarded: rag=%v kb=%q", gotRAG, gotKB)
	}

	// Empty body is accepted
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/debates/"+id+"/turns/next", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("next no body -> %d", w.Code)
	}
	if gotRAG || gotKB != "" {
		t.Fatalf("defaults not zero: rag=%v kb=%q", gotRAG, gotKB)
	}

	// Upstream generation failure -> 502
	h = New(stubDebateSvc{
		nextTurn: func(ctx context.Context, orgID, id string, useRAG bool, kb string) (*domain.Turn, error) {
			return nil, fmt.Errorf("%w: model unavailable", services.ErrExternalService)
		},
	})
	r = gin.New()
	r.POST("/debates/:id/turns/next", h.NextTurn)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/debates/"+id+"/turns/next", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("upstream -> %d", w.Code)
	}
}

func TestListTurns_ETag304_and_Order(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	svc := newHTTPService(db)
	h := New(svc)

	r := gin.New()
	r.GET("/debates/:id/turns", h.ListTurns)

	d := activeDebate(t, svc)
	for i := 0; i < 3; i++ {
		_, err := svc.AddTurn(context.Background(), "org1", d.ID, services.AddTurnInput{
			Content: fmt.Sprintf("turn content %d", i),
		})
		if err != nil {
			t.Fatalf("seed turn %d: %v", i, err)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debates/"+d.ID+"/turns", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d body=%s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	var out ListTurnsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Turns) != 3 {
		t.Fatalf("turns = %d", len(out.Turns))
	}
	for i, tn := range out.Turns {
		if tn.TurnNumber != i+1 {
			t.Fatalf("turn %d has number %d", i, tn.TurnNumber)
		}
	}

	// Conditional request -> 304
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/debates/"+d.ID+"/turns", nil)
	req2.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("etag -> %d", w2.Code)
	}

	// Unknown debate -> 404
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/debates/"+uuid.NewString()+"/turns", nil))
	if w3.Code != http.StatusNotFound {
		t.Fatalf("missing -> %d", w3.Code)
	}
}
