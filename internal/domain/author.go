package domain

import "time"

// Author represents a book author. BirthDate only carries a calendar date.
type Author struct {
	ID        int64
	Name      string
	BirthDate *time.Time
}

// AuthorUpdate carries a partial author mutation.
type AuthorUpdate struct {
	Name      *string
	BirthDate *time.Time
}
