// Turn HTTP handlers.
//
// This file exposes REST endpoints for debate turns:
//   - POST /debates/{id}/turns        (append a turn, explicit or generated)
//   - POST /debates/{id}/turns/next   (auto-generate for the next participant)
//   - GET  /debates/{id}/turns        (list the transcript, ETag support)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to the application service (DebateService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (org, debate, key), the handler returns that recorded
// turn and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/http/middleware"
	"github.com/tbourn/go-debate-backend/internal/repo"
	"github.com/tbourn/go-debate-backend/internal/services"
)

//
// DTOs
//

// AddTurnRequest is the JSON payload for appending a turn.
//
// Content is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer. An empty Content triggers
// auto-generation for the acting participant.
type AddTurnRequest struct {
	// ParticipantID optionally names the acting member; defaults to the
	// debate's rotation pointer.
	ParticipantID string `json:"participant_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Type classifies the turn; defaults to "argument".
	Type string `json:"type" example:"rebuttal"`
	// Content is the turn text. Empty means generate it.
	Content string `json:"content"`
	// RAGQuery, when set, augments generation with knowledge snippets.
	RAGQuery string `json:"rag_query" example:"licensing precedents"`
	// KnowledgeBase scopes the knowledge lookup.
	KnowledgeBase string `json:"knowledge_base" example:"policy"`
}

// NextTurnRequest is the JSON payload for the auto-generation endpoint.
type NextTurnRequest struct {
	// UseRAG augments the prompt with knowledge snippets about the topic.
	UseRAG bool `json:"use_rag"`
	// KnowledgeBase scopes the knowledge lookup when UseRAG is set.
	KnowledgeBase string `json:"knowledge_base" example:"policy"`
}

// TurnResponse is the JSON envelope for a newly created turn.
type TurnResponse struct {
	// Turn is the committed turn, including its allocated number.
	Turn *domain.Turn `json:"turn"`
}

// ListTurnsResponse contains the ordered transcript of a debate.
type ListTurnsResponse struct {
	Turns []domain.Turn `json:"turns"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes turn text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// serviceDB exposes the concrete service's handle for ETag and idempotency
// lookups; nil when the handler is wired to a different implementation.
func (h *Handlers) serviceDB() *gorm.DB {
	if svc, ok := h.svc.(*services.DebateService); ok && svc.DB != nil {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// AddTurn godoc
// @ID          addTurn
// @Summary     Append a turn to a debate
// @Description Appends a turn for the acting participant and advances the rotation.
// @Description Empty content triggers auto-generation. Supports idempotency via the
// @Description Idempotency-Key header (same key → same result).
// @Tags        Turns
// @Accept      json
// @Produce     json
//
// @Param       X-Org-ID         header  string  false "Org ID (demo header)"  example(org123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true  "Debate ID (UUID)"      format(uuid)
// @Param       body             body    handlers.AddTurnRequest  true  "Turn payload"
//
// @Success     201  {object}  handlers.TurnResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Debate or participant not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Debate not active"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "Generation failed"
// @Failure     503  {object}  handlers.ErrorResponse  "Debate busy"
// @Router      /debates/{id}/turns [post]
func (h *Handlers) AddTurn(c *gin.Context) {
	ctx := c.Request.Context()
	debateID, okID := requireDebateID(c)
	if !okID {
		return
	}

	var req AddTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	org := orgID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, org, debateID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetTurn(ctx, db, rec.TurnID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, TurnResponse{Turn: prev})
					return
				}
			}
		}
	}

	turn, err := h.svc.AddTurn(ctx, org, debateID, services.AddTurnInput{
		ParticipantID: req.ParticipantID,
		Type:          domain.TurnType(req.Type),
		Content:       sanitizeContent(req.Content),
		RAGQuery:      strings.TrimSpace(req.RAGQuery),
		KnowledgeBase: strings.TrimSpace(req.KnowledgeBase),
	})
	if err != nil {
		svcFail(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, db, org, debateID, idemKey, turn.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, TurnResponse{Turn: turn})
}

// NextTurn godoc
// @ID          nextTurn
// @Summary     Auto-generate the next turn
// @Description Infers the turn type from debate progress and generates content for
// @Description whoever is next in the rotation.
// @Tags        Turns
// @Accept      json
// @Produce     json
//
// @Param       X-Org-ID  header  string  false "Org ID (demo header)"  example(org123)
// @Param       id        path    string  true  "Debate ID (UUID)"      format(uuid)
// @Param       body      body    handlers.NextTurnRequest  false "Generation options"
//
// @Success     201  {object}  handlers.TurnResponse
// @Failure     404  {object}  handlers.ErrorResponse "Debate not found"
// @Failure     409  {object}  handlers.ErrorResponse "Debate not active"
// @Failure     502  {object}  handlers.ErrorResponse "Generation failed"
// @Router      /debates/{id}/turns/next [post]
func (h *Handlers) NextTurn(c *gin.Context) {
	debateID, okID := requireDebateID(c)
	if !okID {
		return
	}

	// Body is optional for this endpoint.
	var req NextTurnRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	turn, err := h.svc.NextTurn(c.Request.Context(), orgID(c), debateID, req.UseRAG, strings.TrimSpace(req.KnowledgeBase))
	if err != nil {
		svcFail(c, err)
		return
	}
	ok(c, http.StatusCreated, TurnResponse{Turn: turn})
}

// ListTurns godoc
// @ID          listTurns
// @Summary     List the debate transcript
// @Description Returns every turn of the debate ordered by turn number. Supports weak
// @Description ETag via If-None-Match and may return 304.
// @Tags        Turns
// @Produce     json
//
// @Param       id             path    string  true  "Debate ID (UUID)"            format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object} handlers.ListTurnsResponse
// @Header      200  {string} ETag "Weak ETag for current transcript"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Debate not found"
// @Router      /debates/{id}/turns [get]
func (h *Handlers) ListTurns(c *gin.Context) {
	ctx := c.Request.Context()
	debateID, okID := requireDebateID(c)
	if !okID {
		return
	}

	// ETag pre-check (best effort).
	if db := h.serviceDB(); db != nil {
		count, lastAt, err := repo.TurnsStats(ctx, db, debateID)
		if err == nil {
			var ts int64
			if lastAt != nil {
				ts = lastAt.Unix()
			}
			etag := fmt.Sprintf(`W/"turns:%s:%d:%d"`, debateID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	turns, err := h.svc.Turns(ctx, debateID)
	if err != nil {
		svcFail(c, err)
		return
	}
	ok(c, http.StatusOK, ListTurnsResponse{Turns: turns})
}
