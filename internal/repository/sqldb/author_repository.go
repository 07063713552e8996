package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"library-api/internal/domain"
	"library-api/internal/repository"
)

var authorsSchema = map[Driver][]string{
	DriverSQLite: {`
CREATE TABLE IF NOT EXISTS authors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	birth_date DATE NULL
)`},
	DriverPostgres: {`
CREATE TABLE IF NOT EXISTS authors (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	birth_date DATE NULL
)`},
}

type authorRow struct {
	ID        int64        `db:"id"`
	Name      string       `db:"name"`
	BirthDate sql.NullTime `db:"birth_date"`
}

func (r authorRow) toDomain() domain.Author {
	author := domain.Author{ID: r.ID, Name: r.Name}
	if r.BirthDate.Valid {
		t := r.BirthDate.Time
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		author.BirthDate = &d
	}
	return author
}

type AuthorRepository struct {
	db *DB
}

func NewAuthorRepository(db *DB) repository.AuthorRepository {
	return &AuthorRepository{db: db}
}

func (r *AuthorRepository) Init(ctx context.Context) error {
	if err := r.db.execSchema(ctx, authorsSchema); err != nil {
		return fmt.Errorf("create authors table: %w", err)
	}
	return nil
}

func (r *AuthorRepository) Create(ctx context.Context, author *domain.Author) (int64, error) {
	id, err := r.db.insert(ctx, "authors", goqu.Record{
		"name":       author.Name,
		"birth_date": nullDate(author.BirthDate),
	})
	if err != nil {
		return 0, fmt.Errorf("insert author: %w", err)
	}
	author.ID = id
	return id, nil
}

func (r *AuthorRepository) Update(ctx context.Context, author *domain.Author) error {
	aff, err := r.db.exec(ctx, r.db.dialect.Update("authors").
		Set(goqu.Record{
			"name":       author.Name,
			"birth_date": nullDate(author.BirthDate),
		}).
		Where(goqu.C("id").Eq(author.ID)).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("update author: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AuthorRepository) Delete(ctx context.Context, id int64) error {
	aff, err := r.db.exec(ctx, r.db.dialect.Delete("authors").
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("delete author: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AuthorRepository) Get(ctx context.Context, id int64) (*domain.Author, error) {
	var row authorRow
	if err := r.db.get(ctx, &row, r.selectAuthors().Where(goqu.C("id").Eq(id))); err != nil {
		return nil, fmt.Errorf("get author: %w", err)
	}
	author := row.toDomain()
	return &author, nil
}

func (r *AuthorRepository) List(ctx context.Context) ([]domain.Author, error) {
	var rows []authorRow
	if err := r.db.selectAll(ctx, &rows, r.selectAuthors().Order(goqu.C("id").Asc())); err != nil {
		return nil, fmt.Errorf("query authors: %w", err)
	}

	authors := make([]domain.Author, len(rows))
	for i := range rows {
		authors[i] = rows[i].toDomain()
	}
	return authors, nil
}

func (r *AuthorRepository) selectAuthors() *goqu.SelectDataset {
	return r.db.dialect.From("authors").Select("id", "name", "birth_date")
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
