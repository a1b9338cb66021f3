// internal/attendance/implementation.go
package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/database"
	"unilib/internal/daterange"
	"unilib/internal/eventstore"
)

const (
	timeLayout = "15:04:05"
	// MaxSeriesDays bounds a DailyCounts range.
	MaxSeriesDays = 366
)

type service struct {
	db         *sqlx.DB
	eventStore *eventstore.EventStore
	loc        *time.Location
	log        logrus.FieldLogger
	tracer     trace.Tracer
	recorded   metric.Int64Counter
	now        func() time.Time
}

// NewService creates the attendance service. Days and hours are read in loc.
func NewService(db *sqlx.DB, es *eventstore.EventStore, loc *time.Location, log logrus.FieldLogger) Service {
	log = log.WithField("component", "attendance")
	recorded, err := otel.Meter("unilib/attendance").Int64Counter("unilib.presences.recorded",
		metric.WithDescription("Presences recorded at the kiosk"))
	if err != nil {
		log.WithError(err).Warn("failed to create presence counter")
		recorded, _ = noop.Meter{}.Int64Counter("unilib.presences.recorded")
	}

	return &service{
		db:         db,
		eventStore: es,
		loc:        loc,
		log:        log,
		tracer:     otel.Tracer("unilib/attendance"),
		recorded:   recorded,
		now:        time.Now,
	}
}

// RecordPresence logs that a student entered the library now. The presence
// row and its journal entry commit together.
func (s *service) RecordPresence(ctx context.Context, actor auth.Principal, matricule string) (*Presence, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}
	matricule = strings.TrimSpace(matricule)
	if matricule == "" {
		return nil, apperr.InvalidFields("validation failed", map[string]string{"matricule": "is required"})
	}

	ctx, span := s.tracer.Start(ctx, "attendance.record_presence",
		trace.WithAttributes(attribute.String("student.matricule", matricule)))
	defer span.End()

	presence := &Presence{ID: uuid.New(), Matricule: matricule, RecordedAt: s.now()}
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		// Serializes scans of the same student so journal versions stay
		// contiguous.
		err := tx.GetContext(ctx, &presence.StudentID, `
			SELECT id FROM students WHERE matricule = $1 FOR NO KEY UPDATE
		`, matricule)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("student %s not found", matricule)
		}
		if err != nil {
			return apperr.Internal(err, "failed to load student")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO presences (id, student_id, recorded_at) VALUES ($1, $2, $3)
		`, presence.ID, presence.StudentID, presence.RecordedAt); err != nil {
			return apperr.Internal(err, "failed to insert presence")
		}

		event, err := eventstore.NewEvent(EventPresenceRecorded, PresenceRecordedEvent{
			PresenceID: presence.ID,
			StudentID:  presence.StudentID,
			Matricule:  matricule,
			RecordedAt: presence.RecordedAt,
		}, eventstore.Metadata{"actor": actor.UserID.String(), "role": string(actor.Role)})
		if err != nil {
			return apperr.Internal(err, "failed to build presence event")
		}
		if err := s.eventStore.Append(ctx, tx, presence.StudentID, eventstore.AggregateStudent, event); err != nil {
			return apperr.Internal(err, "failed to journal presence")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	presence.Heure = presence.RecordedAt.In(s.loc).Format(timeLayout)
	s.recorded.Add(ctx, 1)
	s.log.WithFields(logrus.Fields{"presence_id": presence.ID, "matricule": matricule}).Info("presence recorded")
	return presence, nil
}

type presenceRow struct {
	ID         uuid.UUID `db:"id"`
	RecordedAt time.Time `db:"recorded_at"`
	StudentInfo
}

// ListPresences returns presences newest first, optionally limited to one
// day or one hour of a day.
func (s *service) ListPresences(ctx context.Context, filter PresenceFilter) ([]PresenceRow, error) {
	ds := database.Dialect.From(goqu.T("presences").As("p")).
		Prepared(true).
		Join(goqu.T("students").As("s"), goqu.On(goqu.I("s.id").Eq(goqu.I("p.student_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("s.user_id")))).
		Join(goqu.T("filieres").As("f"), goqu.On(goqu.I("f.id").Eq(goqu.I("s.filiere_id")))).
		Join(goqu.T("niveaux").As("n"), goqu.On(goqu.I("n.id").Eq(goqu.I("s.niveau_id")))).
		Select(
			goqu.I("p.id"),
			goqu.I("p.recorded_at"),
			goqu.I("s.matricule"),
			goqu.I("u.nom"),
			goqu.I("u.prenom"),
			goqu.I("u.telephone"),
			goqu.I("f.nom").As("filiere"),
			goqu.I("n.nom").As("niveau"),
		).
		Order(goqu.I("p.recorded_at").Desc(), goqu.I("p.id").Desc())

	// An hour without a day is ignored.
	if filter.Day != "" {
		window, err := daterange.Day(filter.Day, s.loc)
		if err != nil {
			return nil, err
		}
		if filter.Hour != "" {
			hour, err := daterange.ParseHour(filter.Hour)
			if err != nil {
				return nil, err
			}
			if window, err = window.Hour(hour); err != nil {
				return nil, err
			}
		}
		ds = ds.Where(
			goqu.I("p.recorded_at").Gte(window.Start),
			goqu.I("p.recorded_at").Lt(window.End),
		)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build presence query")
	}
	var rows []presenceRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Internal(err, "failed to list presences")
	}

	out := make([]PresenceRow, 0, len(rows))
	for _, r := range rows {
		local := r.RecordedAt.In(s.loc)
		out = append(out, PresenceRow{
			ID:      r.ID,
			Date:    local.Format(daterange.DayLayout),
			Heure:   local.Format(timeLayout),
			Student: r.StudentInfo,
		})
	}
	return out, nil
}

// DailyCounts returns one entry per day of [start, end], both YYYY-MM-DD,
// with zero for days without presences.
func (s *service) DailyCounts(ctx context.Context, start, end string) ([]DayCount, error) {
	if start == "" || end == "" {
		return nil, apperr.Invalid("start and end are required")
	}
	from, err := daterange.Day(start, s.loc)
	if err != nil {
		return nil, err
	}
	to, err := daterange.Day(end, s.loc)
	if err != nil {
		return nil, err
	}
	if to.Start.Before(from.Start) {
		return nil, apperr.Invalid("end %s is before start %s", end, start)
	}
	if to.Start.After(from.Start.AddDate(0, 0, MaxSeriesDays-1)) {
		return nil, apperr.Invalid("range exceeds %d days", MaxSeriesDays)
	}

	var counts []DayCount
	err = s.db.SelectContext(ctx, &counts, `
		SELECT to_char(recorded_at AT TIME ZONE $3, 'YYYY-MM-DD') AS date, COUNT(*) AS count
		FROM presences
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY 1
	`, from.Start, to.End, s.loc.String())
	if err != nil {
		return nil, apperr.Internal(err, "failed to count presences")
	}

	byDay := make(map[string]int, len(counts))
	for _, c := range counts {
		byDay[c.Date] = c.Count
	}
	return zeroFill(from.Start, to.Start, byDay), nil
}

// zeroFill lists every calendar day from first to last inclusive.
func zeroFill(first, last time.Time, counts map[string]int) []DayCount {
	out := []DayCount{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(daterange.DayLayout)
		out = append(out, DayCount{Date: key, Count: counts[key]})
	}
	return out
}
