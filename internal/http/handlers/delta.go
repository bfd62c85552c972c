package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/http/response"
	"github.com/fnaplatform/fna-backend/internal/services"
)

type DeltaHandler struct {
	deltas *services.Delta
	alerts *services.Alert
}

func NewDeltaHandler(deltas *services.Delta, alerts *services.Alert) *DeltaHandler {
	return &DeltaHandler{deltas: deltas, alerts: alerts}
}

type compareRequest struct {
	BaseAnalysisID       uuid.UUID `json:"base_analysis_id" binding:"required"`
	ComparisonAnalysisID uuid.UUID `json:"comparison_analysis_id" binding:"required"`
}

// POST /api/v1/deltas/compare
//
// Alert evaluation runs after every successful comparison; emitting is
// idempotent so recomparisons never duplicate alerts.
func (h *DeltaHandler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	delta, err := h.deltas.Compare(c.Request.Context(), req.BaseAnalysisID, req.ComparisonAnalysisID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	emitted, err := h.alerts.Evaluate(c.Request.Context(), delta.ID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"delta": delta, "alerts": emitted})
}

// GET /api/v1/deltas/:id
func (h *DeltaHandler) Get(c *gin.Context) {
	deltaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_delta_id", err)
		return
	}
	delta, err := h.deltas.GetByID(c.Request.Context(), deltaID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"delta": delta})
}
