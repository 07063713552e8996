package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"library-api/internal/domain"
	"library-api/internal/metrics"
)

type createBookRequest struct {
	Title           string `json:"title" binding:"required"`
	PublicationYear *int   `json:"publication_year"`
	AuthorID        *int64 `json:"author_id" binding:"required"`
}

type updateBookRequest struct {
	Title           *string `json:"title"`
	PublicationYear *int    `json:"publication_year"`
	AuthorID        *int64  `json:"author_id"`
}

type BookResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	PublicationYear *int   `json:"publication_year"`
	AuthorID        int64  `json:"author_id"`
	BorrowerID      *int64 `json:"borrower_id"`
}

type SearchBookResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	PublicationYear *int   `json:"publication_year"`
	AuthorName      string `json:"author_name"`
	BorrowerID      *int64 `json:"borrower_id"`
}

func bookToResponse(book domain.Book) BookResponse {
	return BookResponse{
		ID:              book.ID,
		Title:           book.Title,
		PublicationYear: book.PublicationYear,
		AuthorID:        book.AuthorID,
		BorrowerID:      book.BorrowerID,
	}
}

func (h *Handler) listBooks(c *gin.Context) {
	books, err := h.books.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]BookResponse, len(books))
	for i := range books {
		resp[i] = bookToResponse(books[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.books.Register(c.Request.Context(), req.Title, req.PublicationYear, *req.AuthorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookToResponse(*book))
}

func (h *Handler) searchBooks(c *gin.Context) {
	filter := domain.BookFilter{
		Title:      c.Query("title"),
		AuthorName: c.Query("author_name"),
	}
	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid year")
			return
		}
		filter.Year = &year
	}

	results, err := h.books.Search(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]SearchBookResponse, len(results))
	for i, r := range results {
		resp[i] = SearchBookResponse{
			ID:              r.ID,
			Title:           r.Title,
			PublicationYear: r.PublicationYear,
			AuthorName:      r.AuthorName,
			BorrowerID:      r.BorrowerID,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getBook(c *gin.Context) {
	id, ok := pathID(c, "book")
	if !ok {
		return
	}

	book, err := h.books.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookToResponse(*book))
}

func (h *Handler) updateBook(c *gin.Context) {
	id, ok := pathID(c, "book")
	if !ok {
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.books.Update(c.Request.Context(), id, domain.BookUpdate{
		Title:           req.Title,
		PublicationYear: req.PublicationYear,
		AuthorID:        req.AuthorID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookToResponse(*book))
}

func (h *Handler) deleteBook(c *gin.Context) {
	id, ok := pathID(c, "book")
	if !ok {
		return
	}

	if err := h.books.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) borrowBook(c *gin.Context) {
	h.lend(c, "borrow", h.books.Borrow)
}

func (h *Handler) returnBook(c *gin.Context) {
	h.lend(c, "return", h.books.Return)
}

func (h *Handler) lend(c *gin.Context, action string, op func(ctx context.Context, bookID, userID int64) (*domain.Book, error)) {
	bookID, ok := pathID(c, "book")
	if !ok {
		return
	}
	userID, ok := parseID(c, c.Query("user_id"), "user")
	if !ok {
		return
	}

	book, err := op(c.Request.Context(), bookID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	metrics.Loans.WithLabelValues(action).Inc()
	h.requestLogger(c).WithFields(logrus.Fields{
		"book_id": bookID,
		"user_id": userID,
	}).Infof("book %s", action)
	c.JSON(http.StatusOK, bookToResponse(*book))
}
