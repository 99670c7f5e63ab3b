// Summary HTTP handlers.
//
// Endpoints:
//   - POST /debates/{id}/summary  (generate and persist a structured summary)
//   - GET  /debates/{id}/summary  (fetch the latest persisted summary)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-debate-backend/internal/domain"
	"github.com/tbourn/go-debate-backend/internal/services"
)

// SummarizeRequest is the JSON payload for summary generation. All fields
// are optional; zero values yield a balanced summary with both extraction
// passes enabled.
type SummarizeRequest struct {
	// Style hints the prose register: "balanced", "concise" or "detailed".
	Style string `json:"style" example:"concise"`
	// IncludeConsensus enables the consensus extraction pass.
	IncludeConsensus *bool `json:"include_consensus"`
	// IncludeDisagreements enables the disagreement extraction pass.
	IncludeDisagreements *bool `json:"include_disagreements"`
}

// SummaryResponse wraps a persisted debate summary.
type SummaryResponse struct {
	Summary *domain.DebateSummary `json:"summary"`
}

// Summarize godoc
// @ID          summarizeDebate
// @Summary     Generate a debate summary
// @Description Builds a structured summary of the transcript so far (key points,
// @Description per-participant positions, consensus and disagreements) and persists it.
// @Tags        Summaries
// @Accept      json
// @Produce     json
//
// @Param       X-Org-ID  header  string  false "Org ID (demo header)"  example(org123)
// @Param       id        path    string  true  "Debate ID (UUID)"      format(uuid)
// @Param       body      body    handlers.SummarizeRequest  false "Summary options"
//
// @Success     201  {object}  handlers.SummaryResponse
// @Failure     400  {object}  handlers.ErrorResponse "No turns to summarize"
// @Failure     404  {object}  handlers.ErrorResponse "Debate not found"
// @Failure     502  {object}  handlers.ErrorResponse "Summarization failed"
// @Failure     503  {object}  handlers.ErrorResponse "Debate busy"
// @Router      /debates/{id}/summary [post]
func (h *Handlers) Summarize(c *gin.Context) {
	debateID, okID := requireDebateID(c)
	if !okID {
		return
	}

	var req SummarizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	opts := services.SummarizeOptions{
		Style:                strings.TrimSpace(req.Style),
		IncludeConsensus:     true,
		IncludeDisagreements: true,
	}
	if req.IncludeConsensus != nil {
		opts.IncludeConsensus = *req.IncludeConsensus
	}
	if req.IncludeDisagreements != nil {
		opts.IncludeDisagreements = *req.IncludeDisagreements
	}

	sum, err := h.svc.Summarize(c.Request.Context(), orgID(c), debateID, opts)
	if err != nil {
		svcFail(c, err)
		return
	}
	ok(c, http.StatusCreated, SummaryResponse{Summary: sum})
}

// GetLatestSummary godoc
// @ID          getLatestSummary
// @Summary     Fetch the latest summary
// @Description Returns the most recently generated summary for a debate.
// @Tags        Summaries
// @Produce     json
//
// @Param       id  path  string  true  "Debate ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.SummaryResponse
// @Failure     404  {object}  handlers.ErrorResponse "No summary yet"
// @Router      /debates/{id}/summary [get]
func (h *Handlers) GetLatestSummary(c *gin.Context) {
	debateID, okID := requireDebateID(c)
	if !okID {
		return
	}
	sum, err := h.svc.LatestSummary(c.Request.Context(), debateID)
	if err != nil {
		svcFail(c, err)
		return
	}
	ok(c, http.StatusOK, SummaryResponse{Summary: sum})
}
