package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"library-api/internal/domain"
	"library-api/internal/repository"
)

var booksSchema = map[Driver][]string{
	DriverSQLite: {`
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	publication_year INTEGER NULL,
	author_id INTEGER NOT NULL REFERENCES authors(id),
	borrower_id INTEGER NULL REFERENCES users(id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_books_author_id ON books(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_books_borrower_id ON books(borrower_id)`,
	},
	DriverPostgres: {`
CREATE TABLE IF NOT EXISTS books (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	publication_year INTEGER NULL,
	author_id BIGINT NOT NULL REFERENCES authors(id),
	borrower_id BIGINT NULL REFERENCES users(id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_books_author_id ON books(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_books_borrower_id ON books(borrower_id)`,
	},
}

type bookRow struct {
	ID              int64         `db:"id"`
	Title           string        `db:"title"`
	PublicationYear sql.NullInt64 `db:"publication_year"`
	AuthorID        int64         `db:"author_id"`
	BorrowerID      sql.NullInt64 `db:"borrower_id"`
}

func (r bookRow) toDomain() domain.Book {
	return domain.Book{
		ID:              r.ID,
		Title:           r.Title,
		PublicationYear: nullIntToPtr(r.PublicationYear),
		AuthorID:        r.AuthorID,
		BorrowerID:      nullInt64ToPtr(r.BorrowerID),
	}
}

type bookSearchRow struct {
	ID              int64         `db:"id"`
	Title           string        `db:"title"`
	PublicationYear sql.NullInt64 `db:"publication_year"`
	AuthorName      string        `db:"author_name"`
	BorrowerID      sql.NullInt64 `db:"borrower_id"`
}

type BookRepository struct {
	db *DB
}

func NewBookRepository(db *DB) repository.BookRepository {
	return &BookRepository{db: db}
}

// Init must run after the users and authors tables exist.
func (r *BookRepository) Init(ctx context.Context) error {
	if err := r.db.execSchema(ctx, booksSchema); err != nil {
		return fmt.Errorf("create books table: %w", err)
	}
	return nil
}

func (r *BookRepository) Create(ctx context.Context, book *domain.Book) (int64, error) {
	id, err := r.db.insert(ctx, "books", goqu.Record{
		"title":            book.Title,
		"publication_year": nullInt(book.PublicationYear),
		"author_id":        book.AuthorID,
		"borrower_id":      nullInt64(book.BorrowerID),
	})
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	book.ID = id
	return id, nil
}

// Update persists the catalog fields. The borrower is only changed through
// SetBorrower and ClearBorrower.
func (r *BookRepository) Update(ctx context.Context, book *domain.Book) error {
	aff, err := r.db.exec(ctx, r.db.dialect.Update("books").
		Set(goqu.Record{
			"title":            book.Title,
			"publication_year": nullInt(book.PublicationYear),
			"author_id":        book.AuthorID,
		}).
		Where(goqu.C("id").Eq(book.ID)).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an available book. A borrowed book is left in place and
// ErrConflict is returned.
func (r *BookRepository) Delete(ctx context.Context, id int64) error {
	aff, err := r.db.exec(ctx, r.db.dialect.Delete("books").
		Where(goqu.C("id").Eq(id), goqu.C("borrower_id").IsNull()).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if aff == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *BookRepository) Get(ctx context.Context, id int64) (*domain.Book, error) {
	var row bookRow
	if err := r.db.get(ctx, &row, r.selectBooks().Where(goqu.C("id").Eq(id))); err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	book := row.toDomain()
	return &book, nil
}

func (r *BookRepository) List(ctx context.Context) ([]domain.Book, error) {
	var rows []bookRow
	if err := r.db.selectAll(ctx, &rows, r.selectBooks().Order(goqu.C("id").Asc())); err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}

	books := make([]domain.Book, len(rows))
	for i := range rows {
		books[i] = rows[i].toDomain()
	}
	return books, nil
}

func (r *BookRepository) Search(ctx context.Context, filter domain.BookFilter) ([]domain.BookSearchResult, error) {
	ds := r.db.dialect.From(goqu.T("books")).
		InnerJoin(goqu.T("authors"), goqu.On(goqu.I("authors.id").Eq(goqu.I("books.author_id")))).
		Select(
			goqu.I("books.id").As("id"),
			goqu.I("books.title").As("title"),
			goqu.I("books.publication_year").As("publication_year"),
			goqu.I("authors.name").As("author_name"),
			goqu.I("books.borrower_id").As("borrower_id"),
		).
		Order(goqu.I("books.id").Asc())

	if title := strings.TrimSpace(filter.Title); title != "" {
		ds = ds.Where(r.containsFold("books.title", title))
	}
	if name := strings.TrimSpace(filter.AuthorName); name != "" {
		ds = ds.Where(r.containsFold("authors.name", name))
	}
	if filter.Year != nil {
		ds = ds.Where(goqu.I("books.publication_year").Eq(*filter.Year))
	}

	var rows []bookSearchRow
	if err := r.db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}

	results := make([]domain.BookSearchResult, len(rows))
	for i, row := range rows {
		results[i] = domain.BookSearchResult{
			ID:              row.ID,
			Title:           row.Title,
			PublicationYear: nullIntToPtr(row.PublicationYear),
			AuthorName:      row.AuthorName,
			BorrowerID:      nullInt64ToPtr(row.BorrowerID),
		}
	}
	return results, nil
}

func (r *BookRepository) CountByAuthor(ctx context.Context, authorID int64) (int64, error) {
	return r.count(ctx, goqu.C("author_id").Eq(authorID))
}

func (r *BookRepository) CountByBorrower(ctx context.Context, userID int64) (int64, error) {
	return r.count(ctx, goqu.C("borrower_id").Eq(userID))
}

func (r *BookRepository) SetBorrower(ctx context.Context, bookID, userID int64) error {
	aff, err := r.db.exec(ctx, r.db.dialect.Update("books").
		Set(goqu.Record{"borrower_id": userID}).
		Where(goqu.C("id").Eq(bookID), goqu.C("borrower_id").IsNull()).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("set book borrower: %w", err)
	}
	if aff == 0 {
		return r.missOrConflict(ctx, bookID)
	}
	return nil
}

func (r *BookRepository) ClearBorrower(ctx context.Context, bookID, userID int64) error {
	aff, err := r.db.exec(ctx, r.db.dialect.Update("books").
		Set(goqu.Record{"borrower_id": nil}).
		Where(goqu.C("id").Eq(bookID), goqu.C("borrower_id").Eq(userID)).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("clear book borrower: %w", err)
	}
	if aff == 0 {
		return r.missOrConflict(ctx, bookID)
	}
	return nil
}

func (r *BookRepository) count(ctx context.Context, where exp.Expression) (int64, error) {
	var n int64
	ds := r.db.dialect.From("books").Select(goqu.COUNT(goqu.Star())).Where(where)
	if err := r.db.get(ctx, &n, ds); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

// missOrConflict explains a conditional write that touched no row.
func (r *BookRepository) missOrConflict(ctx context.Context, id int64) error {
	if _, err := r.Get(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return err
	}
	return repository.ErrConflict
}

func (r *BookRepository) selectBooks() *goqu.SelectDataset {
	return r.db.dialect.From("books").
		Select("id", "title", "publication_year", "author_id", "borrower_id")
}

// containsFold matches col against a case-insensitive substring. Wildcards
// typed by the user are matched literally.
func (r *BookRepository) containsFold(col, term string) exp.Expression {
	if r.db.driver == DriverPostgres {
		return goqu.L(col+` ILIKE ? ESCAPE '\'`, likePattern(term))
	}
	return goqu.L(sqliteLowerFunc+"("+col+`) LIKE ? ESCAPE '\'`, likePattern(term))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullIntToPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullInt64ToPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
