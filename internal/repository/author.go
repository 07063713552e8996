package repository

import (
	"context"

	"library-api/internal/domain"
)

// AuthorRepository defines persistence operations for Author entities.
type AuthorRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, author *domain.Author) (int64, error)
	Update(ctx context.Context, author *domain.Author) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Author, error)
	List(ctx context.Context) ([]domain.Author, error)
}
