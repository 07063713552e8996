package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"library-api/internal/domain"
)

const birthDateLayout = "02/01/2006"

type authorRequest struct {
	Name      *string `json:"name"`
	BirthDate *string `json:"birth_date"`
}

type AuthorResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	BirthDate *string `json:"birth_date"`
}

func authorToResponse(author domain.Author) AuthorResponse {
	resp := AuthorResponse{
		ID:   author.ID,
		Name: author.Name,
	}
	if author.BirthDate != nil {
		v := author.BirthDate.Format(birthDateLayout)
		resp.BirthDate = &v
	}
	return resp
}

// parseBirthDate accepts dd/mm/yyyy; nil stays nil.
func parseBirthDate(raw *string) (*time.Time, bool) {
	if raw == nil {
		return nil, true
	}
	t, err := time.ParseInLocation(birthDateLayout, *raw, time.UTC)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func (h *Handler) listAuthors(c *gin.Context) {
	authors, err := h.authors.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]AuthorResponse, len(authors))
	for i := range authors {
		resp[i] = authorToResponse(authors[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createAuthor(c *gin.Context) {
	var req authorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == nil {
		writeError(c, http.StatusBadRequest, "name is required")
		return
	}
	birthDate, ok := parseBirthDate(req.BirthDate)
	if !ok {
		writeError(c, http.StatusBadRequest, "The date must be in the following format dd/mm/yyyy")
		return
	}

	author, err := h.authors.Create(c.Request.Context(), *req.Name, birthDate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authorToResponse(*author))
}

func (h *Handler) getAuthor(c *gin.Context) {
	id, ok := pathID(c, "author")
	if !ok {
		return
	}

	author, err := h.authors.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, authorToResponse(*author))
}

func (h *Handler) updateAuthor(c *gin.Context) {
	id, ok := pathID(c, "author")
	if !ok {
		return
	}

	var req authorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	birthDate, ok := parseBirthDate(req.BirthDate)
	if !ok {
		writeError(c, http.StatusBadRequest, "The date must be in the following format dd/mm/yyyy")
		return
	}

	author, err := h.authors.Update(c.Request.Context(), id, domain.AuthorUpdate{
		Name:      req.Name,
		BirthDate: birthDate,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, authorToResponse(*author))
}

func (h *Handler) deleteAuthor(c *gin.Context) {
	id, ok := pathID(c, "author")
	if !ok {
		return
	}

	if err := h.authors.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
