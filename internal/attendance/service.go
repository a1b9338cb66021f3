// internal/attendance/service.go
package attendance

import (
	"context"

	"unilib/internal/auth"
)

// Service defines the interface for the attendance log.
type Service interface {
	RecordPresence(ctx context.Context, actor auth.Principal, matricule string) (*Presence, error)
	ListPresences(ctx context.Context, filter PresenceFilter) ([]PresenceRow, error)
	DailyCounts(ctx context.Context, start, end string) ([]DayCount, error)
}
