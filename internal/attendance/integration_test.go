package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/database/dbtest"
	"unilib/internal/eventstore"
)

var kiosk = auth.Principal{UserID: uuid.New(), Role: auth.RoleManager}

func TestPresenceLog(t *testing.T) {
	db := dbtest.Open(t, "attendance")
	dbtest.Reset(t, db)
	ctx := context.Background()

	loc, err := time.LoadLocation("Africa/Douala")
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	es := eventstore.NewEventStore(db)
	svc := NewService(db, es, loc, log).(*service)

	student := dbtest.Student(t, db, "ETU002", "Mbarga", "Paul")
	dbtest.Student(t, db, "ETU003", "Ngono", "Awa")

	scans := []struct {
		matricule string
		at        time.Time
	}{
		{"ETU002", time.Date(2024, 1, 15, 9, 0, 0, 0, loc)},
		{"ETU002", time.Date(2024, 1, 15, 9, 5, 0, 0, loc)},
		{"ETU003", time.Date(2024, 1, 15, 14, 30, 0, 0, loc)},
		{"ETU003", time.Date(2024, 1, 17, 8, 0, 0, 0, loc)},
	}
	for _, s := range scans {
		at := s.at
		svc.now = func() time.Time { return at }
		p, err := svc.RecordPresence(ctx, kiosk, s.matricule)
		require.NoError(t, err)
		assert.Equal(t, at.Format("15:04:05"), p.Heure)
	}

	_, err = svc.RecordPresence(ctx, kiosk, "ETU404")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	t.Run("same day keeps both scans", func(t *testing.T) {
		rows, err := svc.ListPresences(ctx, PresenceFilter{Day: "2024-01-15"})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "14:30:00", rows[0].Heure, "newest first")
		assert.Equal(t, "Awa", rows[0].Student.Prenom)
		assert.Equal(t, "2024-01-15", rows[2].Date)
		assert.Equal(t, "09:00:00", rows[2].Heure)
		assert.NotEmpty(t, rows[2].Student.Filiere)
		assert.NotEmpty(t, rows[2].Student.Niveau)
		assert.NotEmpty(t, rows[2].Student.Telephone)
	})

	t.Run("hour narrows the day", func(t *testing.T) {
		rows, err := svc.ListPresences(ctx, PresenceFilter{Day: "2024-01-15", Hour: "09"})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		for _, r := range rows {
			assert.Equal(t, "ETU002", r.Student.Matricule)
		}

		_, err = svc.ListPresences(ctx, PresenceFilter{Day: "2024-01-15", Hour: "24"})
		assert.True(t, apperr.Is(err, apperr.KindInvalid))
	})

	t.Run("hour without day is ignored", func(t *testing.T) {
		rows, err := svc.ListPresences(ctx, PresenceFilter{Hour: "9"})
		require.NoError(t, err)
		assert.Len(t, rows, 4)
	})

	t.Run("daily counts are zero filled", func(t *testing.T) {
		counts, err := svc.DailyCounts(ctx, "2024-01-14", "2024-01-17")
		require.NoError(t, err)
		assert.Equal(t, []DayCount{
			{Date: "2024-01-14", Count: 0},
			{Date: "2024-01-15", Count: 3},
			{Date: "2024-01-16", Count: 0},
			{Date: "2024-01-17", Count: 1},
		}, counts)
	})

	t.Run("each scan is journaled", func(t *testing.T) {
		events, err := es.LoadEvents(ctx, student)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, EventPresenceRecorded, events[0].EventType)
		assert.Equal(t, []int{1, 2}, []int{events[0].Version, events[1].Version})
	})
}
