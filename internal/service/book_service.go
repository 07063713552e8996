package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"library-api/internal/domain"
	"library-api/internal/repository"
)

const maxTitleLen = 100

// BookService manages the catalog and the lending workflow.
//
// A book is Available while it has no borrower and Borrowed(uid) while user uid
// holds it. Borrow and Return are the only transitions between the two, and a
// book can be deleted only while Available.
type BookService interface {
	List(ctx context.Context) ([]domain.Book, error)
	Get(ctx context.Context, id int64) (*domain.Book, error)
	Register(ctx context.Context, title string, year *int, authorID int64) (*domain.Book, error)
	Update(ctx context.Context, id int64, update domain.BookUpdate) (*domain.Book, error)
	Delete(ctx context.Context, id int64) error
	Borrow(ctx context.Context, bookID, userID int64) (*domain.Book, error)
	Return(ctx context.Context, bookID, userID int64) (*domain.Book, error)
	Search(ctx context.Context, filter domain.BookFilter) ([]domain.BookSearchResult, error)
}

type bookService struct {
	books   repository.BookRepository
	authors repository.AuthorRepository
	users   repository.UserRepository
}

func NewBookService(books repository.BookRepository, authors repository.AuthorRepository, users repository.UserRepository) BookService {
	return &bookService{
		books:   books,
		authors: authors,
		users:   users,
	}
}

func (s *bookService) List(ctx context.Context) ([]domain.Book, error) {
	books, err := s.books.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, notFound("No books found")
	}
	return books, nil
}

func (s *bookService) Get(ctx context.Context, id int64) (*domain.Book, error) {
	book, err := s.books.Get(ctx, id)
	if err != nil {
		return nil, orNotFound(err, "Book not found")
	}
	return book, nil
}

func (s *bookService) Register(ctx context.Context, title string, year *int, authorID int64) (*domain.Book, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateYear(year); err != nil {
		return nil, err
	}
	if err := s.ensureAuthor(ctx, authorID); err != nil {
		return nil, err
	}

	book := &domain.Book{
		Title:           title,
		PublicationYear: year,
		AuthorID:        authorID,
	}
	if _, err := s.books.Create(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

func (s *bookService) Update(ctx context.Context, id int64, update domain.BookUpdate) (*domain.Book, error) {
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		book.Title = title
	}
	if update.PublicationYear != nil {
		if err := validateYear(update.PublicationYear); err != nil {
			return nil, err
		}
		book.PublicationYear = update.PublicationYear
	}
	if update.AuthorID != nil {
		if err := s.ensureAuthor(ctx, *update.AuthorID); err != nil {
			return nil, err
		}
		book.AuthorID = *update.AuthorID
	}

	if err := s.books.Update(ctx, book); err != nil {
		return nil, orNotFound(err, "Book not found")
	}
	return book, nil
}

func (s *bookService) Delete(ctx context.Context, id int64) error {
	book, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if book.Status() == domain.BookStatusBorrowed {
		return badRequest("Cannot delete a book that is currently borrowed")
	}

	// the repository delete is conditional too, so a borrow racing this call still wins
	if err := s.books.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return badRequest("Cannot delete a book that is currently borrowed")
		}
		return orNotFound(err, "Book not found")
	}
	return nil
}

func (s *bookService) Borrow(ctx context.Context, bookID, userID int64) (*domain.Book, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	book, err := s.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.Status() == domain.BookStatusBorrowed {
		return nil, badRequest("Book is already borrowed")
	}

	if err := s.books.SetBorrower(ctx, bookID, userID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, badRequest("Book is already borrowed")
		}
		return nil, orNotFound(err, "Book not found")
	}

	book.BorrowerID = &userID
	return book, nil
}

func (s *bookService) Return(ctx context.Context, bookID, userID int64) (*domain.Book, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	book, err := s.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.BorrowerID == nil || *book.BorrowerID != userID {
		return nil, badRequest("Book not borrowed by this user")
	}

	if err := s.books.ClearBorrower(ctx, bookID, userID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, badRequest("Book not borrowed by this user")
		}
		return nil, orNotFound(err, "Book not found")
	}

	book.BorrowerID = nil
	return book, nil
}

func (s *bookService) Search(ctx context.Context, filter domain.BookFilter) ([]domain.BookSearchResult, error) {
	results, err := s.books.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, notFound("Books not found")
	}
	return results, nil
}

func (s *bookService) ensureAuthor(ctx context.Context, authorID int64) error {
	if _, err := s.authors.Get(ctx, authorID); err != nil {
		return orNotFound(err, "Author not found")
	}
	return nil
}

func (s *bookService) ensureUser(ctx context.Context, userID int64) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return orNotFound(err, "User not found")
	}
	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n == 0 || n > maxTitleLen {
		return badRequest("title must be between 1 and 100 characters")
	}
	return nil
}

func validateYear(year *int) error {
	if year != nil && *year < 0 {
		return badRequest("publication_year must be greater than or equal to 0")
	}
	return nil
}
