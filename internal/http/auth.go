package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-api/internal/metrics"
)

type loginForm struct {
	Email    string `form:"email" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		writeError(c, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := h.auth.Login(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	metrics.TokensIssued.Inc()
	c.JSON(http.StatusOK, token)
}

func (h *Handler) me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		writeError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}
