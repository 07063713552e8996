package repository

import (
	"context"

	"library-api/internal/domain"
)

// BookRepository exposes persistence operations for books and their lending state.
type BookRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, book *domain.Book) (int64, error)
	Update(ctx context.Context, book *domain.Book) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Book, error)
	List(ctx context.Context) ([]domain.Book, error)
	Search(ctx context.Context, filter domain.BookFilter) ([]domain.BookSearchResult, error)
	CountByAuthor(ctx context.Context, authorID int64) (int64, error)
	CountByBorrower(ctx context.Context, userID int64) (int64, error)

	// SetBorrower lends an available book. It returns ErrConflict when the book
	// already has a borrower and ErrNotFound when the book does not exist.
	SetBorrower(ctx context.Context, bookID, userID int64) error
	// ClearBorrower returns a book held by userID. It returns ErrConflict when the
	// book is not held by that user and ErrNotFound when the book does not exist.
	ClearBorrower(ctx context.Context, bookID, userID int64) error
}
