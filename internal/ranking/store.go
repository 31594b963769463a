package ranking

import (
	"context"

	"github.com/gymrank/internal/domain"
)

// RecordStore is the persistence surface the ranking engine needs. The
// PostgreSQL repository satisfies it; tests substitute an in-memory fake.
type RecordStore interface {
	GetUser(ctx context.Context, username string) (*domain.User, error)
	ListEligibleUsers(ctx context.Context, gender domain.Gender, country string) ([]domain.User, error)
	ListTeamUsers(ctx context.Context) ([]domain.User, error)
	ListTeamMembers(ctx context.Context, team string) ([]domain.User, error)
	ListTopByElo(ctx context.Context, limit int) ([]domain.User, error)
	GetLiftHistory(ctx context.Context, username string) ([]domain.LiftRecord, error)
	SetElo(ctx context.Context, username string, elo float64) error
}

// EloMirror is the Redis sorted-set mirror of stored ELO scores. All methods
// are best-effort from the engine's perspective; PostgreSQL remains the
// source of truth.
type EloMirror interface {
	SetScore(ctx context.Context, username string, elo float64) error
	Rename(ctx context.Context, oldName, newName string) error
	Top(ctx context.Context, n int) ([]domain.EloEntry, error)
}

// Notifier pushes ranking changes to connected WebSocket clients. The
// subscriber count lets the engine skip rebuilding standings nobody is
// watching.
type Notifier interface {
	BroadcastPRUpdate(username string, elo float64)
	BroadcastRankingUpdate(channel string, data interface{})
	GetSubscriberCount(channel string) int
}
