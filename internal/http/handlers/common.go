package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestUserID resolves the acting user. Authentication happens upstream;
// the gateway forwards the verified identity in this header.
func requestUserID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing X-User-ID header")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid X-User-ID header")
	}
	return id, nil
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}
