package service

import (
	"context"

	"library-api/internal/auth"
	"library-api/internal/domain"
)

// Token is the login response body.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// AuthService exchanges credentials for bearer tokens and resolves them back to users.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*Token, error)
	CurrentUser(ctx context.Context, rawToken string) (*domain.User, error)
}

type authService struct {
	users  UserService
	tokens *auth.TokenIssuer
}

func NewAuthService(users UserService, tokens *auth.TokenIssuer) AuthService {
	return &authService{
		users:  users,
		tokens: tokens,
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.Email, 0)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: token, TokenType: "bearer"}, nil
}

func (s *authService) CurrentUser(ctx context.Context, rawToken string) (*domain.User, error) {
	if rawToken == "" {
		return nil, unauthorized("Not authenticated")
	}

	claims, err := s.tokens.Parse(rawToken)
	if err != nil {
		return nil, unauthorized("Could not validate credentials")
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, unauthorized("Token without valid subject")
	}

	return s.users.GetByID(ctx, id)
}
