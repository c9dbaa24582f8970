package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// envelope is the uniform JSON wrapper every endpoint returns. Code 0 means
// success; error responses repeat the HTTP status in code so callers parsing
// the body alone can still branch on it.
type envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func respond(c *gin.Context, status, code int, message string, data any, meta map[string]any) {
	c.JSON(status, envelope{
		Code:    code,
		Message: message,
		Data:    data,
		Meta:    meta,
	})
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	respond(c, http.StatusOK, 0, "ok", data, meta)
}

func Created(c *gin.Context, data any) {
	respond(c, http.StatusCreated, 0, "created", data, nil)
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	respond(c, status, status, message, nil, meta)
}

func pageMeta(limit, offset, count int) map[string]any {
	return map[string]any{
		"limit":  limit,
		"offset": offset,
		"count":  count,
	}
}
