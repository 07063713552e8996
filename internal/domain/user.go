package domain

import "time"

// User represents a registered library member.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	RegisteredAt time.Time
}

// UserUpdate carries a partial user mutation; nil fields are left untouched.
type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string
}
