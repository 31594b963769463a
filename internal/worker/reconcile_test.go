package worker

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
)

type fakeStore struct {
	users       map[string]domain.User
	histories   map[string][]domain.LiftRecord
	setEloCalls int
}

func (s *fakeStore) ListUsernames(context.Context) ([]string, error) {
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeStore) GetUser(_ context.Context, username string) (*domain.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *fakeStore) GetLiftHistory(_ context.Context, username string) ([]domain.LiftRecord, error) {
	return s.histories[username], nil
}

func (s *fakeStore) SetElo(_ context.Context, username string, elo float64) error {
	s.setEloCalls++
	u := s.users[username]
	// The users table column is NUMERIC(12,2); reads give back the rounded
	// value.
	u.Elo = math.Round(elo*100) / 100
	s.users[username] = u
	return nil
}

func (s *fakeStore) GetAllElo(context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(s.users))
	for name, u := range s.users {
		out[name] = u.Elo
	}
	return out, nil
}

type fakeMirror struct {
	scores   map[string]float64
	rebuilds int
}

func (m *fakeMirror) SetScore(_ context.Context, username string, elo float64) error {
	m.scores[username] = elo
	return nil
}

func (m *fakeMirror) RebuildFrom(_ context.Context, scores map[string]float64) error {
	m.scores = make(map[string]float64, len(scores))
	for name, elo := range scores {
		m.scores[name] = elo
	}
	m.rebuilds++
	return nil
}

func TestRunOnceRepairsDrift(t *testing.T) {
	store := &fakeStore{
		users: map[string]domain.User{
			// Stored score does not match the history: drifted.
			"drifted": {Username: "drifted", Elo: 1000},
			// 1000 + 1.5*100: consistent.
			"intact": {Username: "intact", Elo: 1150},
		},
		histories: map[string][]domain.LiftRecord{
			"drifted": {{LiftType: domain.LiftBench, Weight: 100}},
			"intact":  {{LiftType: domain.LiftSquat, Weight: 100}},
		},
	}
	mirror := &fakeMirror{scores: make(map[string]float64)}
	worker := NewReconcileWorker(store, mirror, &config.ReconcileConfig{}, slog.Default())

	worker.RunOnce(context.Background())

	assert.Equal(t, 1150.0, store.users["drifted"].Elo)
	assert.Equal(t, 1150.0, mirror.scores["drifted"])
	assert.Equal(t, 1150.0, store.users["intact"].Elo)
	assert.NotContains(t, mirror.scores, "intact", "consistent scores are left alone")
}

func TestRunOnceAcceptsFractionalWeights(t *testing.T) {
	// 1000 + 1.5*100.01 = 1150.015, stored as 1150.02. The recompute must
	// agree with the rounded column value or every cycle rewrites the score.
	store := &fakeStore{
		users: map[string]domain.User{
			"lifter": {Username: "lifter", Elo: 1150.02},
		},
		histories: map[string][]domain.LiftRecord{
			"lifter": {{LiftType: domain.LiftBench, Weight: 100.01}},
		},
	}
	worker := NewReconcileWorker(store, nil, &config.ReconcileConfig{}, slog.Default())

	worker.RunOnce(context.Background())
	worker.RunOnce(context.Background())

	assert.Equal(t, 0, store.setEloCalls, "consistent score must not be rewritten")
	assert.Equal(t, 1150.02, store.users["lifter"].Elo)
}

func TestRebuildMirror(t *testing.T) {
	store := &fakeStore{
		users: map[string]domain.User{
			"a": {Username: "a", Elo: 1150},
			"b": {Username: "b", Elo: 1300},
		},
	}
	mirror := &fakeMirror{scores: map[string]float64{"stale": 9999}}
	worker := NewReconcileWorker(store, mirror, &config.ReconcileConfig{}, slog.Default())

	require.NoError(t, worker.RebuildMirror(context.Background()))

	assert.Equal(t, 1, mirror.rebuilds)
	assert.Equal(t, map[string]float64{"a": 1150, "b": 1300}, mirror.scores)
}

func TestRebuildMirrorWithoutMirrorIsNoop(t *testing.T) {
	worker := NewReconcileWorker(&fakeStore{}, nil, &config.ReconcileConfig{}, slog.Default())
	assert.NoError(t, worker.RebuildMirror(context.Background()))
}
