// internal/catalog/domain.go
package catalog

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Author writes books. NbreBooks is kept in step with the books table.
type Author struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Nom       string    `json:"nom" db:"nom"`
	Prenom    string    `json:"prenom" db:"prenom"`
	Biography *string   `json:"biography" db:"biography"`
	NbreBooks int       `json:"nbreBooks" db:"nbre_books"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type AuthorDetail struct {
	Author
	Books []BookRef `json:"books"`
}

type AuthorInput struct {
	Nom       string  `json:"nom" validate:"required"`
	Prenom    string  `json:"prenom" validate:"required"`
	Biography *string `json:"biography"`
}

// AuthorQuery filters and sorts the author list.
type AuthorQuery struct {
	Search    string
	SortBy    string
	SortOrder string
}

type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Nom         string    `json:"nom" db:"nom"`
	Description *string   `json:"description" db:"description"`
	Color       string    `json:"color" db:"color"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

type CategoryDetail struct {
	Category
	Books []BookRef `json:"books"`
}

type CategoryInput struct {
	Nom         string  `json:"nom" validate:"required"`
	Description *string `json:"description" validate:"omitempty,min=5"`
	Color       string  `json:"color" validate:"omitempty,rgbhex"`
}

const DefaultColor = "#4CAF50"

type BookRef struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Disponible bool      `json:"disponible" db:"disponible"`
}

type AuthorRef struct {
	ID     uuid.UUID `json:"id"`
	Nom    string    `json:"nom"`
	Prenom string    `json:"prenom"`
}

type CategoryRef struct {
	ID    uuid.UUID `json:"id"`
	Nom   string    `json:"nom"`
	Color string    `json:"color"`
}

// Book is a catalog entry. Disponible is owned by circulation.
type Book struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	ISBN            *string     `json:"isbn"`
	Langue          *string     `json:"langue"`
	NbPages         *int        `json:"nbPages"`
	Edition         *string     `json:"edition"`
	Genre           *string     `json:"genre"`
	Resume          *string     `json:"resume"`
	DatePublication *time.Time  `json:"datePublication"`
	ImageCover      *string     `json:"imageCover"`
	Disponible      bool        `json:"disponible"`
	AuthorID        uuid.UUID   `json:"authorId"`
	CategoryID      uuid.UUID   `json:"categoryId"`
	Author          AuthorRef   `json:"author"`
	Category        CategoryRef `json:"category"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// BookInput carries the writable book fields. Nil fields are left unchanged
// on update; Title, AuthorID and CategoryID are required on create.
type BookInput struct {
	Title           *string
	AuthorID        *uuid.UUID
	CategoryID      *uuid.UUID
	ISBN            *string
	Langue          *string
	NbPages         *int
	Edition         *string
	Genre           *string
	Resume          *string
	DatePublication *time.Time
}

// Upload is a cover image sent with a book form.
type Upload struct {
	Filename string
	Content  io.Reader
}

// BookMatch is a catalog search result.
type BookMatch struct {
	ID     uuid.UUID `json:"id" db:"id"`
	Titre  string    `json:"titre" db:"title"`
	ISBN   *string   `json:"isbn" db:"isbn"`
	Auteur string    `json:"auteur" db:"auteur"`
}
