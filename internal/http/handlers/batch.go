package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/http/response"
	"github.com/fnaplatform/fna-backend/internal/services"
)

type BatchHandler struct {
	batch *services.Batch
}

func NewBatchHandler(batch *services.Batch) *BatchHandler {
	return &BatchHandler{batch: batch}
}

type submitBatchRequest struct {
	Tier        string               `json:"tier" binding:"required"`
	Items       []services.BatchItem `json:"items" binding:"required"`
	Concurrency int                  `json:"concurrency"`
}

// POST /api/v1/batches
func (h *BatchHandler) Submit(c *gin.Context) {
	userID, err := requestUserID(c)
	if err != nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_user", err)
		return
	}
	var req submitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	job, err := h.batch.Submit(c.Request.Context(), userID, req.Tier, req.Items, req.Concurrency)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"batch": job})
}

// GET /api/v1/batches/:id
func (h *BatchHandler) GetStatus(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_batch_id", err)
		return
	}
	job, err := h.batch.GetStatus(c.Request.Context(), batchID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batch": job})
}
