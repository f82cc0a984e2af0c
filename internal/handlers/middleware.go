package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	operatorCtxKey = "operatorId"

	errMissingAuth   = "missing Authorization header"
	errMalformedAuth = "invalid Authorization header format"
	errBadToken      = "invalid or expired token"
)

// operatorMiddleware admits requests carrying a valid operator Bearer token.
func (h *Handler) operatorMiddleware(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		h.rejectOperator(c, errMissingAuth)
		return
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		h.rejectOperator(c, errMalformedAuth)
		return
	}

	id, err := h.services.ParseToken(token)
	if err != nil {
		h.rejectOperator(c, errBadToken)
		return
	}

	c.Set(operatorCtxKey, id)
	c.Next()
}

func (h *Handler) rejectOperator(c *gin.Context, msg string) {
	if h.log != nil {
		h.log.Debugw("operator_rejected", "path", c.FullPath(), "reason", msg)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// operatorID is 0 when auth is disabled.
func operatorID(c *gin.Context) int {
	return c.GetInt(operatorCtxKey)
}
