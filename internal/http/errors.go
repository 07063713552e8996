package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"library-api/internal/service"
)

func writeError(c *gin.Context, status int, msg string) {
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "message": msg})
}

// respondError maps a service error to its status and message. Errors of
// unknown kind are logged and reported as 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	var svcErr *service.Error
	isSvcErr := errors.As(err, &svcErr)

	switch {
	case errors.Is(err, service.ErrUnavailable):
		msg := "Database unavailable"
		if isSvcErr {
			msg = svcErr.Message
		}
		h.requestLogger(c).WithError(err).Warn("service unavailable")
		writeError(c, http.StatusServiceUnavailable, msg)
	case isSvcErr:
		writeError(c, statusFor(svcErr.Kind), svcErr.Message)
	default:
		h.requestLogger(c).WithError(err).Error("request failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
	}
}

func statusFor(kind error) int {
	switch kind {
	case service.ErrNotFound:
		return http.StatusNotFound
	case service.ErrConflict:
		return http.StatusConflict
	case service.ErrBadRequest:
		return http.StatusBadRequest
	case service.ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func parseID(c *gin.Context, raw, what string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

func pathID(c *gin.Context, what string) (int64, bool) {
	return parseID(c, c.Param("id"), what)
}
