package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"library-api/internal/domain"
	"library-api/internal/repository"
)

var usersSchema = map[Driver][]string{
	DriverSQLite: {`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	registered_at DATETIME NOT NULL
)`},
	DriverPostgres: {`
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL
)`},
}

type userRow struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	RegisteredAt time.Time `db:"registered_at"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		RegisteredAt: r.RegisteredAt.UTC(),
	}
}

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if err := r.db.execSchema(ctx, usersSchema); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	if user.RegisteredAt.IsZero() {
		user.RegisteredAt = time.Now().UTC()
	}

	id, err := r.db.insert(ctx, "users", goqu.Record{
		"name":          user.Name,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"registered_at": user.RegisteredAt,
	})
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return id, nil
}

// Update persists name, email and password hash. registered_at is never rewritten.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	aff, err := r.db.exec(ctx, r.db.dialect.Update("users").
		Set(goqu.Record{
			"name":          user.Name,
			"email":         user.Email,
			"password_hash": user.PasswordHash,
		}).
		Where(goqu.C("id").Eq(user.ID)).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	aff, err := r.db.exec(ctx, r.db.dialect.Delete("users").
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, goqu.C("id").Eq(id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, goqu.C("email").Eq(email))
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := r.db.selectAll(ctx, &rows, r.selectUsers().Order(goqu.C("id").Asc())); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	users := make([]domain.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toDomain()
	}
	return users, nil
}

func (r *UserRepository) getOne(ctx context.Context, where exp.Expression) (*domain.User, error) {
	var row userRow
	if err := r.db.get(ctx, &row, r.selectUsers().Where(where)); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	user := row.toDomain()
	return &user, nil
}

func (r *UserRepository) selectUsers() *goqu.SelectDataset {
	return r.db.dialect.From("users").
		Select("id", "name", "email", "password_hash", "registered_at")
}
