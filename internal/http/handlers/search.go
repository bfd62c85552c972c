package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/http/response"
	"github.com/fnaplatform/fna-backend/internal/services"
)

type SearchHandler struct {
	search *services.Search
}

func NewSearchHandler(search *services.Search) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchMatch struct {
	EmbeddingID uuid.UUID `json:"embedding_id"`
	AnalysisID  uuid.UUID `json:"analysis_id"`
	EntityID    uuid.UUID `json:"entity_id"`
	SectionType string    `json:"section_type"`
	ChunkIndex  int       `json:"chunk_index"`
	SourceText  string    `json:"source_text"`
	Score       float64   `json:"score"`
}

// GET /api/v1/search/similar?q=...&k=10&entity_id=...
func (h *SearchHandler) Similar(c *gin.Context) {
	var entityID *uuid.UUID
	if raw := c.Query("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_entity_id", err)
			return
		}
		entityID = &id
	}
	matches, err := h.search.Similar(c.Request.Context(), c.Query("q"), queryInt(c, "k", 10), entityID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	out := make([]searchMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, searchMatch{
			EmbeddingID: m.Record.ID,
			AnalysisID:  m.Record.AnalysisID,
			EntityID:    m.Record.EntityID,
			SectionType: m.Record.SectionType,
			ChunkIndex:  m.Record.ChunkIndex,
			SourceText:  m.Record.SourceText,
			Score:       m.Score,
		})
	}
	response.RespondOK(c, gin.H{"matches": out})
}
