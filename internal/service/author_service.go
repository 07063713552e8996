package service

import (
	"context"
	"strings"
	"time"

	"library-api/internal/domain"
	"library-api/internal/repository"
)

// AuthorService manages the author catalog.
type AuthorService interface {
	List(ctx context.Context) ([]domain.Author, error)
	Get(ctx context.Context, id int64) (*domain.Author, error)
	Create(ctx context.Context, name string, birthDate *time.Time) (*domain.Author, error)
	Update(ctx context.Context, id int64, update domain.AuthorUpdate) (*domain.Author, error)
	Delete(ctx context.Context, id int64) error
}

type authorService struct {
	authors repository.AuthorRepository
	books   repository.BookRepository
}

func NewAuthorService(authors repository.AuthorRepository, books repository.BookRepository) AuthorService {
	return &authorService{
		authors: authors,
		books:   books,
	}
}

func (s *authorService) List(ctx context.Context) ([]domain.Author, error) {
	authors, err := s.authors.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(authors) == 0 {
		return nil, notFound("No author has been registered")
	}
	return authors, nil
}

func (s *authorService) Get(ctx context.Context, id int64) (*domain.Author, error) {
	author, err := s.authors.Get(ctx, id)
	if err != nil {
		return nil, orNotFound(err, "Author not registered")
	}
	return author, nil
}

func (s *authorService) Create(ctx context.Context, name string, birthDate *time.Time) (*domain.Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, badRequest("name is required")
	}

	author := &domain.Author{Name: name, BirthDate: birthDate}
	if _, err := s.authors.Create(ctx, author); err != nil {
		return nil, err
	}
	return author, nil
}

func (s *authorService) Update(ctx context.Context, id int64, update domain.AuthorUpdate) (*domain.Author, error) {
	author, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, badRequest("name is required")
		}
		author.Name = name
	}
	if update.BirthDate != nil {
		author.BirthDate = update.BirthDate
	}

	if err := s.authors.Update(ctx, author); err != nil {
		return nil, orNotFound(err, "Author not registered")
	}
	return author, nil
}

// Delete refuses to orphan books: an author is removable only once no book references it.
func (s *authorService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	n, err := s.books.CountByAuthor(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return badRequest("Author has associated books")
	}

	return orNotFound(s.authors.Delete(ctx, id), "Author not registered")
}
