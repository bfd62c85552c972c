package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/http/response"
	"github.com/fnaplatform/fna-backend/internal/services"
)

type ReportHandler struct {
	lifecycle *services.Lifecycle
}

func NewReportHandler(lifecycle *services.Lifecycle) *ReportHandler {
	return &ReportHandler{lifecycle: lifecycle}
}

type processRequest struct {
	Sections []services.SectionText `json:"sections" binding:"required"`
}

// POST /api/v1/reports/:id/process?force=true
func (h *ReportHandler) Process(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_report_id", err)
		return
	}
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	analysis, err := h.lifecycle.Process(c.Request.Context(), reportID, req.Sections, queryBool(c, "force"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if analysis == nil {
		// Already in flight; the claim holder will finish it.
		response.RespondAccepted(c, gin.H{"report_id": reportID, "status": "PROCESSING"})
		return
	}
	response.RespondOK(c, gin.H{"analysis": analysis})
}

// POST /api/v1/reports/:id/requeue?force=true
func (h *ReportHandler) Requeue(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_report_id", err)
		return
	}
	if err := h.lifecycle.Requeue(c.Request.Context(), reportID, queryBool(c, "force")); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report_id": reportID, "status": "PENDING"})
}
