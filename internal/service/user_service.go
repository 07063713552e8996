package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"library-api/internal/auth"
	"library-api/internal/domain"
	"library-api/internal/repository"
)

const (
	minNameLen = 2
	maxNameLen = 100
)

// UserService describes user lifecycle operations.
type UserService interface {
	Create(ctx context.Context, name, email, password string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// GetByEmail returns nil without error when no user has that email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	Update(ctx context.Context, id int64, update domain.UserUpdate) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
}

type userService struct {
	users repository.UserRepository
	books repository.BookRepository
}

func NewUserService(users repository.UserRepository, books repository.BookRepository) UserService {
	return &userService{
		users: users,
		books: books,
	}
}

func (s *userService) Create(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if err := validateUserName(name); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, badRequest("email is required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, badRequest(err.Error())
	}

	existing, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, conflict("Email already in use")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		RegisteredAt: time.Now().UTC(),
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict("Email already in use")
		}
		return nil, err
	}

	return sanitizeUser(user), nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, notFound("No users registered")
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, orNotFound(err, "User not found")
	}
	return sanitizeUser(user), nil
}

func (s *userService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, unauthorized("Incorrect email or password")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorized("Incorrect email or password")
		}
		return nil, err
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		return nil, unauthorized("Incorrect email or password")
	}

	return sanitizeUser(user), nil
}

func (s *userService) Update(ctx context.Context, id int64, update domain.UserUpdate) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, orNotFound(err, "User not found")
	}

	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if email == "" {
			return nil, badRequest("email is required")
		}
		if email != user.Email {
			owner, err := s.users.GetByEmail(ctx, email)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			if owner != nil && owner.ID != user.ID {
				return nil, badRequest("Email already registered")
			}
			user.Email = email
		}
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if err := validateUserName(name); err != nil {
			return nil, err
		}
		user.Name = name
	}

	if update.Password != nil {
		if err := auth.ValidatePassword(*update.Password); err != nil {
			return nil, badRequest(err.Error())
		}
		hash, err := auth.HashPassword(*update.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, badRequest("Email already registered")
		}
		return nil, orNotFound(err, "User not found")
	}

	return sanitizeUser(user), nil
}

// Delete removes a user that holds no books; returning them first keeps
// borrower references valid.
func (s *userService) Delete(ctx context.Context, id int64) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return orNotFound(err, "User not found")
	}

	held, err := s.books.CountByBorrower(ctx, id)
	if err != nil {
		return err
	}
	if held > 0 {
		return badRequest("User has borrowed books")
	}

	return orNotFound(s.users.Delete(ctx, id), "User not found")
}

func validateUserName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return badRequest("name must be between 2 and 100 characters")
	}
	return nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		RegisteredAt: user.RegisteredAt,
	}
}
