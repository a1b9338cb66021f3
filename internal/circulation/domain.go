// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

// Loan is a book lent to a student. It is open until ReturnedAt is set, and
// the return is its only mutation.
type Loan struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	BookID     uuid.UUID  `json:"bookId" db:"book_id"`
	StudentID  uuid.UUID  `json:"studentId" db:"student_id"`
	BorrowedAt time.Time  `json:"dateBorrowed" db:"borrowed_at"`
	DueAt      time.Time  `json:"dateDue" db:"due_at"`
	ReturnedAt *time.Time `json:"dateReturned" db:"returned_at"`
	Remarks    *string    `json:"remarks" db:"remarks"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// LoanSummary is what the loan desk shows after a checkout and in the
// recent loans panel.
type LoanSummary struct {
	ID               uuid.UUID `json:"id" db:"id"`
	LivreTitre       string    `json:"livreTitre" db:"livre"`
	Matricule        string    `json:"matricule" db:"matricule"`
	Nom              string    `json:"nom" db:"nom"`
	Prenom           string    `json:"prenom" db:"prenom"`
	DateEmprunt      time.Time `json:"dateEmprunt" db:"borrowed_at"`
	DateRetourPrevue time.Time `json:"dateRetourPrevue" db:"due_at"`
}

// CreateLoanInput is a checkout request. Livre is a book id, an ISBN or
// part of a title.
type CreateLoanInput struct {
	Matricule        string  `json:"matricule" validate:"required"`
	Livre            string  `json:"livre" validate:"required"`
	DateRetourPrevue string  `json:"dateRetourPrevue" validate:"required"`
	Remarques        *string `json:"remarques"`
}

// ReturnLoanInput closes a loan. An empty DateRetourEffective means now.
type ReturnLoanInput struct {
	DateRetourEffective string  `json:"dateRetourEffective"`
	Remarques           *string `json:"remarques"`
}

// ReturnedLoan is a closed loan with the names the return screen needs.
type ReturnedLoan struct {
	Loan
	Book    BookRef    `json:"book"`
	Student StudentRef `json:"student"`
}

type BookRef struct {
	Title string `json:"title"`
}

type StudentRef struct {
	Matricule string `json:"matricule"`
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
}

// LoanFilter narrows the loan listing. Empty fields do not filter.
type LoanFilter struct {
	// Status is one of the Status values.
	Status string
	// Student matches matricule, nom or prenom, case-insensitively.
	Student string
	// Day is a YYYY-MM-DD borrow day in the library time zone.
	Day string
}

// LoanRow is one line of the paginated loan listing.
type LoanRow struct {
	ID          uuid.UUID `json:"id"`
	Nom         string    `json:"nom"`
	Prenom      string    `json:"prenom"`
	Matricule   string    `json:"matricule"`
	Livre       string    `json:"livre"`
	DateEmprunt string    `json:"dateEmprunt"`
	DateRetour  string    `json:"dateRetour"`
	Statut      Status    `json:"statut"`
}

type LoanPage struct {
	Data       []LoanRow `json:"data"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	TotalPages int       `json:"totalPages"`
}

// OpenLoan is a return-screen search hit.
type OpenLoan struct {
	LoanSummary
	LivreID uuid.UUID `json:"livreId" db:"book_id"`
}

// Journal event types.
const (
	EventLoanCreated  = "LoanCreated"
	EventLoanReturned = "LoanReturned"
)

// LoanCreatedEvent is journaled when a loan is opened.
type LoanCreatedEvent struct {
	LoanID     uuid.UUID `json:"loanId"`
	BookID     uuid.UUID `json:"bookId"`
	StudentID  uuid.UUID `json:"studentId"`
	Matricule  string    `json:"matricule"`
	BorrowedAt time.Time `json:"borrowedAt"`
	DueAt      time.Time `json:"dueAt"`
}

// LoanReturnedEvent is journaled when a loan is closed.
type LoanReturnedEvent struct {
	LoanID     uuid.UUID `json:"loanId"`
	BookID     uuid.UUID `json:"bookId"`
	ReturnedAt time.Time `json:"returnedAt"`
	Overdue    bool      `json:"overdue"`
}
