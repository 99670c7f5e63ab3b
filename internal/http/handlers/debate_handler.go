// Debate HTTP handlers.
//
// This file exposes REST endpoints for debate resources:
//   - POST   /debates               (create)
//   - GET    /debates               (list, paginated, ETag support)
//   - GET    /debates/{id}          (status)
//   - POST   /debates/{id}/start    (lifecycle)
//   - POST   /debates/{id}/pause
//   - POST   /debates/{id}/resume
//   - POST   /debates/{id}/archive
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/repo"
	"github.com/tbourn/go-debate-backend/internal/services"
	"github.com/tbourn/go-debate-backend/internal/utils"
)

//
// Service contract (context-aware)
//

// DebateService defines the orchestration operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DebateService interface {
	// Create starts a new debate in draft state.
	Create(ctx context.Context, in services.CreateDebateInput) (*domain.Debate, error)
	// Start, Pause, Resume, and Archive drive the debate lifecycle.
	Start(ctx context.Context, orgID, debateID string) (*domain.Debate, error)
	Pause(ctx context.Context, orgID, debateID string) (*domain.Debate, error)
	Resume(ctx context.Context, orgID, debateID string) (*domain.Debate, error)
	Archive(ctx context.Context, orgID, debateID string) (*domain.Debate, error)
	// Status returns the debate with participants loaded.
	Status(ctx context.Context, debateID string) (*domain.Debate, error)
	// List returns a page of debates and the total count.
	List(ctx context.Context, orgID string, status domain.DebateStatus, page, pageSize int) ([]domain.Debate, int64, error)
	// AddTurn appends one turn, advancing the rotation.
	AddTurn(ctx context.Context, orgID, debateID string, in services.AddTurnInput) (*domain.Turn, error)
	// NextTurn auto-generates a turn for whoever is next in the rotation.
	NextTurn(ctx context.Context, orgID, debateID string, useRAG bool, knowledgeBase string) (*domain.Turn, error)
	// Turns returns the transcript ordered by turn number.
	Turns(ctx context.Context, debateID string) ([]domain.Turn, error)
	// Summarize generates and persists a summary of the debate so far.
	Summarize(ctx context.Context, orgID, debateID string, opts services.SummarizeOptions) (*domain.DebateSummary, error)
	// LatestSummary returns the most recent persisted summary.
	LatestSummary(ctx context.Context, debateID string) (*domain.DebateSummary, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for debates, turns, and summaries.
// It depends on an abstract service interface to keep transport concerns
// separate from business logic.
type Handlers struct {
	svc DebateService
}

// New constructs and returns a Handlers instance bound to the given service.
func New(svc DebateService) *Handlers {
	return &Handlers{svc: svc}
}

// orgID extracts the authenticated tenant id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-Org-ID" header (tests use it),
// and finally to "demo-org". It never touches c.Request if it's nil.
func orgID(c *gin.Context) string {
	if v, ok := c.Get("orgID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Org-ID")); h != "" {
			return h
		}
	}
	return "demo-org"
}

//
// DTOs
//

// ParticipantRequest describes one member in a create-debate payload.
type ParticipantRequest struct {
	// Name is the display name used in prompts and transcripts.
	Name string `json:"name" binding:"required,min=1,max=255" example:"Advocate"`
	// Role defaults to "debater" when empty.
	Role string `json:"role" example:"debater"`
	// Provider selects the generation backend for this member.
	Provider string `json:"provider" example:"openai"`
	// Model is the generation model identifier.
	Model string `json:"model" example:"gpt-4o-mini"`
	// Temperature tunes generation randomness.
	Temperature float32 `json:"temperature" example:"0.7"`
	// SystemPrompt optionally prefixes the member's generated prompts.
	SystemPrompt string `json:"system_prompt"`
	// Stance is the member's declared position on the topic.
	Stance string `json:"stance" example:"in favor of licensing"`
}

// DebateRulesRequest carries the optional turn-taking rules.
type DebateRulesRequest struct {
	Format                 string `json:"format" example:"round_robin"`
	MaxRounds              int    `json:"max_rounds" example:"3"`
	MaxTurnsPerParticipant int    `json:"max_turns_per_participant"`
	MinTurnLength          int    `json:"min_turn_length"`
	MaxTurnLength          int    `json:"max_turn_length"`
}

// CreateDebateRequest is the JSON payload for creating a debate.
type CreateDebateRequest struct {
	// Name labels the debate; derived from the topic when omitted.
	Name string `json:"name" binding:"max=255" example:"AI regulation"`
	// Topic is the question under debate; required.
	Topic string `json:"topic" binding:"required,min=1" example:"Should frontier AI be licensed?"`
	// Description optionally expands on the topic.
	Description string `json:"description"`
	// Participants lists the debate members in speaking order.
	Participants []ParticipantRequest `json:"participants" binding:"required"`
	// Rules optionally constrains rounds and turn lengths.
	Rules DebateRulesRequest `json:"rules"`
	// Metadata is an opaque client blob stored with the debate.
	Metadata string `json:"metadata"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListDebatesResponse wraps a page of debates and pagination information.
type ListDebatesResponse struct {
	Debates    []domain.Debate `json:"debates"`
	Pagination Pagination      `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// requireDebateID validates the :id path parameter as a UUID. Returns the id
// and true, or writes a 400 and returns false.
func requireDebateID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "debate id must be a UUID")
		return "", false
	}
	return id, true
}

// svcFail translates a service-layer error into the HTTP error envelope,
// picking the most specific status and stable code for each sentinel.
func svcFail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrDebateNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "debate not found")
	case errors.Is(err, services.ErrParticipantNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "participant not found")
	case errors.Is(err, services.ErrInvalidState):
		fail(c, http.StatusConflict, ErrCodeInvalidState, err.Error())
	case errors.Is(err, services.ErrRateLimited):
		c.Header("Retry-After", "1")
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
	case errors.Is(err, services.ErrLockTimeout):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeLockTimeout, "debate is busy, retry shortly")
	case errors.Is(err, services.ErrExternalService):
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// CreateDebate godoc
// @ID          createDebate
// @Summary     Create a new debate
// @Description Creates a debate in draft state for the current org and returns the resource.
// @Tags        Debates
// @Accept      json
// @Produce     json
//
// @Param       X-Org-ID  header  string  false "Org ID (demo header)"  example(org123)
// @Param       body      body    handlers.CreateDebateRequest  true  "Create debate payload"
//
// @Success     201  {object}  domain.Debate
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /debates [post]
func (h *Handlers) CreateDebate(c *gin.Context) {
	var req CreateDebateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	in := services.CreateDebateInput{
		OrgID:       orgID(c),
		Name:        strings.TrimSpace(req.Name),
		Topic:       strings.TrimSpace(req.Topic),
		Description: strings.TrimSpace(req.Description),
		Metadata:    req.Metadata,
		Rules: domain.DebateRules{
			Format:                 domain.DebateFormat(req.Rules.Format),
			MaxRounds:              req.Rules.MaxRounds,
			MaxTurnsPerParticipant: req.Rules.MaxTurnsPerParticipant,
			MinTurnLength:          req.Rules.MinTurnLength,
			MaxTurnLength:          req.Rules.MaxTurnLength,
		},
	}
	for _, p := range req.Participants {
		in.Participants = append(in.Participants, services.ParticipantInput{
			Name:         strings.TrimSpace(p.Name),
			Role:         domain.ParticipantRole(p.Role),
			Provider:     p.Provider,
			Model:        p.Model,
			Temperature:  p.Temperature,
			SystemPrompt: p.SystemPrompt,
			Stance:       p.Stance,
		})
	}

	d, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		svcFail(c, err)
		return
	}
	ok(c, http.StatusCreated, d)
}

// ListDebates godoc
// @ID          listDebates
// @Summary     List debates (paginated)
// @Description Returns a page of the org's debates. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Debates
// @Produce     json
//
// @Param       X-Org-ID       header  string  false "Org ID (demo header)"        example(org123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       status         query   string  false "Filter by status"            Enums(draft, active, paused, completed, archived)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListDebatesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /debates [get]
func (h *Handlers) ListDebates(c *gin.Context) {
	ctx := c.Request.Context()
	org := orgID(c)
	page, pageSize := clampPagination(c)
	status := domain.DebateStatus(c.Query("status"))

	// ETag pre-check (best effort).
	if db := h.serviceDB(); db != nil {
		count, _, maxTS, err := repo.DebateStats(ctx, db, org)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"debates:%s:%d:%d"`, org, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.svc.List(ctx, org, status, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListDebatesResponse{
		Debates: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetDebate godoc
// @ID          getDebate
// @Summary     Get debate status
// @Description Returns the debate with participants, rotation state, and counters.
// @Tags        Debates
// @Produce     json
//
// @Param       id  path  string  true  "Debate ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Debate
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Debate not found"
// @Router      /debates/{id} [get]
func (h *Handlers) GetDebate(c *gin.Context) {
	id, okID := requireDebateID(c)
	if !okID {
		return
	}
	d, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		svcFail(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// StartDebate godoc
// @ID          startDebate
// @Summary     Start a debate
// @Description Transitions a draft debate to active and points the rotation at the first participant.
// @Tags        Debates
// @Produce     json
//
// @Param       X-Org-ID  header  string  false "Org ID (demo header)"  example(org123)
// @Param       id        path    string  true  "Debate ID (UUID)"      format(uuid)
//
// @Success     200  {object} domain.Debate
// @Failure     404  {object} handlers.ErrorResponse "Debate not found"
// @Failure     409  {object} handlers.ErrorResponse "Illegal transition"
// @Router      /debates/{id}/start [post]
func (h *Handlers) StartDebate(c *gin.Context) {
	h.lifecycle(c, h.svc.Start)
}

// PauseDebate transitions an active debate to paused.
func (h *Handlers) PauseDebate(c *gin.Context) {
	h.lifecycle(c, h.svc.Pause)
}

// ResumeDebate transitions a paused debate back to active.
func (h *Handlers) ResumeDebate(c *gin.Context) {
	h.lifecycle(c, h.svc.Resume)
}

// ArchiveDebate retires a debate; legal from every state and terminal.
func (h *Handlers) ArchiveDebate(c *gin.Context) {
	h.lifecycle(c, h.svc.Archive)
}

// lifecycle shares the id validation and response shape of the four
// transition endpoints.
func (h *Handlers) lifecycle(c *gin.Context, op func(context.Context, string, string) (*domain.Debate, error)) {
	id, okID := requireDebateID(c)
	if !okID {
		return
	}
	d, err := op(c.Request.Context(), orgID(c), id)
	if err != nil {
		svcFail(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}
