package service

import (
	"errors"

	"library-api/internal/repository"
)

var (
	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate unique value such as an email.
	ErrConflict = errors.New("conflict")
	// ErrBadRequest marks an invalid input, state transition or cross reference.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized marks bad credentials or an invalid token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable marks a store connectivity failure.
	ErrUnavailable = repository.ErrUnavailable
)

// Error pairs an error kind with the message shown to API clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func notFound(msg string) error     { return &Error{Kind: ErrNotFound, Message: msg} }
func conflict(msg string) error     { return &Error{Kind: ErrConflict, Message: msg} }
func badRequest(msg string) error   { return &Error{Kind: ErrBadRequest, Message: msg} }
func unauthorized(msg string) error { return &Error{Kind: ErrUnauthorized, Message: msg} }

// orNotFound replaces a repository miss with an entity specific NotFound and
// passes every other error through.
func orNotFound(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(msg)
	}
	return err
}
