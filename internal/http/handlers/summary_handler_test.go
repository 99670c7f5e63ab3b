package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/services"
)

func TestSummarize_OptionsAndDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got services.SummarizeOptions
	stub := stubDebateSvc{
		summarize: func(ctx context.Context, orgID, id string, opts services.SummarizeOptions) (*domain.DebateSummary, error) {
			got = opts
			return &domain.DebateSummary{ID: uuid.NewString(), DebateID: id, Summary: "s"}, nil
		},
	}
	h := New(stub)
	r := gin.New()
	r.POST("/debates/:id/summary", h.Summarize)

	id := uuid.NewString()

	// No body: both passes default on, balanced style.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/debates/"+id+"/summary", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("summarize -> %d body=%s", w.Code, w.Body.String())
	}
	if !got.IncludeConsensus || !got.IncludeDisagreements || got.Style != "" {
		t.Fatalf("defaults: %+v", got)
	}

	// Explicit body overrides.
	body := `{"style":" concise ","include_consensus":false,"include_disagreements":true}`
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/debates/"+id+"/summary", bytes.NewBufferString(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("summarize opts -> %d", w.Code)
	}
	if got.Style != "concise" || got.IncludeConsensus || !got.IncludeDisagreements {
		t.Fatalf("overrides: %+v", got)
	}

	var out SummaryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Summary == nil || out.Summary.DebateID != id {
		t.Fatalf("unexpected summary: %#v", out.Summary)
	}

	// Bad JSON -> 400
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/debates/"+id+"/summary", bytes.NewBufferString("{bad")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}
}

func TestSummarize_NoTurns_BadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	svc := newHTTPService(db)
	h := New(svc)

	r := gin.New()
	r.POST("/debates/:id/summary", h.Summarize)

	d := activeDebate(t, svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/debates/"+d.ID+"/summary", nil)
	req.Header.Set("X-Org-ID", "org1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty debate -> %d body=%s", w.Code, w.Body.String())
	}
}

func TestGetLatestSummary_NotFound_and_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Missing summary -> 404
	h := New(stubDebateSvc{
		latest: func(ctx context.Context, id string) (*domain.DebateSummary, error) {
			return nil, services.ErrDebateNotFound
		},
	})
	r := gin.New()
	r.GET("/debates/:id/summary", h.GetLatestSummary)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debates/"+uuid.NewString()+"/summary", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing -> %d", w.Code)
	}

	// Existing summary -> 200
	id := uuid.NewString()
	h = New(stubDebateSvc{
		latest: func(ctx context.Context, dID string) (*domain.DebateSummary, error) {
			return &domain.DebateSummary{ID: uuid.NewString(), DebateID: dID, Summary: "done"}, nil
		},
	})
	r = gin.New()
	r.GET("/debates/:id/summary", h.GetLatestSummary)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debates/"+id+"/summary", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("latest -> %d", w.Code)
	}
	var out SummaryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Summary.DebateID != id || out.Summary.Summary != "done" {
		t.Fatalf("unexpected: %#v", out.Summary)
	}
}
