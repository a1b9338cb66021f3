// internal/attendance/domain.go
package attendance

import (
	"time"

	"github.com/google/uuid"
)

// Presence is one library entry scanned at the kiosk. Presences are never
// updated or merged.
type Presence struct {
	ID         uuid.UUID `json:"id" db:"id"`
	StudentID  uuid.UUID `json:"studentId" db:"student_id"`
	Matricule  string    `json:"matricule" db:"matricule"`
	RecordedAt time.Time `json:"date" db:"recorded_at"`
	Heure      string    `json:"heure" db:"-"`
}

type StudentInfo struct {
	Matricule string `json:"matricule" db:"matricule"`
	Nom       string `json:"nom" db:"nom"`
	Prenom    string `json:"prenom" db:"prenom"`
	Telephone string `json:"telephone" db:"telephone"`
	Filiere   string `json:"filiere" db:"filiere"`
	Niveau    string `json:"niveau" db:"niveau"`
}

// PresenceRow is one line of the presence list, with the wall-clock date
// and time in the library time zone.
type PresenceRow struct {
	ID      uuid.UUID   `json:"id"`
	Date    string      `json:"date"`
	Heure   string      `json:"heure"`
	Student StudentInfo `json:"student"`
}

// PresenceFilter narrows the presence list. Hour only applies together with
// Day.
type PresenceFilter struct {
	Day  string
	Hour string
}

// DayCount is the number of presences on one calendar day.
type DayCount struct {
	Date  string `json:"date" db:"date"`
	Count int    `json:"count" db:"count"`
}

const EventPresenceRecorded = "PresenceRecorded"

type PresenceRecordedEvent struct {
	PresenceID uuid.UUID `json:"presenceId"`
	StudentID  uuid.UUID `json:"studentId"`
	Matricule  string    `json:"matricule"`
	RecordedAt time.Time `json:"recordedAt"`
}
