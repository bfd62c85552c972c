package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/http/response"
	"github.com/fnaplatform/fna-backend/internal/services"
)

type TrendHandler struct {
	trends *services.Trend
}

func NewTrendHandler(trends *services.Trend) *TrendHandler {
	return &TrendHandler{trends: trends}
}

// GET /api/v1/entities/:id/trends?window=4
func (h *TrendHandler) Trends(c *gin.Context) {
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_entity_id", err)
		return
	}
	report, err := h.trends.Trends(c.Request.Context(), entityID, queryInt(c, "window", 0))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"trends": report})
}
