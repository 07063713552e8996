package domain

type BookStatus string

const (
	BookStatusAvailable BookStatus = "available"
	BookStatusBorrowed  BookStatus = "borrowed"
)

// Book is a catalog entry. BorrowerID is set exactly while the book is lent out.
type Book struct {
	ID              int64
	Title           string
	PublicationYear *int
	AuthorID        int64
	BorrowerID      *int64
}

// Status derives the lending state from BorrowerID.
func (b Book) Status() BookStatus {
	if b.BorrowerID != nil {
		return BookStatusBorrowed
	}
	return BookStatusAvailable
}

// BookUpdate carries a partial book mutation.
type BookUpdate struct {
	Title           *string
	PublicationYear *int
	AuthorID        *int64
}

// BookFilter narrows a catalog search. Empty fields are ignored; set fields are combined with AND.
type BookFilter struct {
	Title      string
	AuthorName string
	Year       *int
}

// BookSearchResult is a book joined with its author's name.
type BookSearchResult struct {
	ID              int64
	Title           string
	PublicationYear *int
	AuthorName      string
	BorrowerID      *int64
}
