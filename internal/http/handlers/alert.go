package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/http/response"
	"github.com/fnaplatform/fna-backend/internal/services"
)

type AlertHandler struct {
	alerts *services.Alert
}

func NewAlertHandler(alerts *services.Alert) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

type setPreferenceRequest struct {
	EntityID            uuid.UUID `json:"entity_id" binding:"required"`
	AlertType           string    `json:"alert_type" binding:"required"`
	ThresholdPercentage float64   `json:"threshold_percentage" binding:"required"`
}

// POST /api/v1/alerts/preferences
func (h *AlertHandler) SetPreference(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_user", err)
		return
	}
	var req setPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	pref, err := h.alerts.SetPreference(c.Request.Context(), userID, req.EntityID, req.AlertType, req.ThresholdPercentage)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"preference": pref})
}

// GET /api/v1/alerts?unread=true&limit=50&offset=0
func (h *AlertHandler) List(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_user", err)
		return
	}
	alerts, err := h.alerts.List(c.Request.Context(), userID,
		queryBool(c, "unread"), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"alerts": alerts})
}

// POST /api/v1/alerts/:id/read
func (h *AlertHandler) MarkRead(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_user", err)
		return
	}
	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_alert_id", err)
		return
	}
	if err := h.alerts.MarkRead(c.Request.Context(), userID, alertID); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"alert_id": alertID, "is_read": true})
}
