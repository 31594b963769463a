package service

import (
	"context"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
	"github.com/gymrank/internal/ranking"
)

// fakeRepo backs both the record service and the ranking engine in tests.
type fakeRepo struct {
	users   map[string]domain.User
	records map[int64]domain.LiftRecord
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:   make(map[string]domain.User),
		records: make(map[int64]domain.LiftRecord),
	}
}

func (r *fakeRepo) addUser(u domain.User) {
	if u.Elo == 0 {
		u.Elo = 1000
	}
	r.users[u.Username] = u
}

func (r *fakeRepo) GetUser(_ context.Context, username string) (*domain.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r *fakeRepo) InsertLiftRecord(_ context.Context, req *domain.SubmitRecordRequest) (*domain.LiftRecord, error) {
	r.nextID++
	rec := domain.LiftRecord{
		ID:       r.nextID,
		Username: req.Username,
		LiftType: req.LiftType,
		Weight:   req.Weight,
		ProofURL: req.ProofURL,
	}
	r.records[rec.ID] = rec
	return &rec, nil
}

func (r *fakeRepo) UpdateLiftRecord(_ context.Context, id int64, req *domain.EditRecordRequest) (*domain.LiftRecord, error) {
	rec, ok := r.records[id]
	if !ok || rec.Username != req.Username {
		return nil, domain.ErrRecordNotFound
	}
	rec.LiftType = req.LiftType
	rec.Weight = req.Weight
	r.records[id] = rec
	return &rec, nil
}

func (r *fakeRepo) DeleteLiftRecord(_ context.Context, id int64, username string) (string, error) {
	rec, ok := r.records[id]
	if !ok || rec.Username != username {
		return "", domain.ErrRecordNotFound
	}
	delete(r.records, id)
	return rec.ProofURL, nil
}

func (r *fakeRepo) GetLiftHistory(_ context.Context, username string) ([]domain.LiftRecord, error) {
	var out []domain.LiftRecord
	for _, rec := range r.records {
		if rec.Username == username {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeRepo) GetProgress(_ context.Context, username string, liftType domain.LiftType) ([]domain.ProgressPoint, error) {
	points := []domain.ProgressPoint{}
	history, _ := r.GetLiftHistory(context.Background(), username)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].LiftType == liftType {
			points = append(points, domain.ProgressPoint{Weight: history[i].Weight})
		}
	}
	return points, nil
}

func (r *fakeRepo) GetRecentVideos(_ context.Context, limit int) ([]domain.LiftRecord, error) {
	var out []domain.LiftRecord
	for _, rec := range r.records {
		if rec.ProofURL != "" {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) ListEligibleUsers(_ context.Context, gender domain.Gender, country string) ([]domain.User, error) {
	var out []domain.User
	for _, u := range r.users {
		if u.Eligible() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListTeamUsers(context.Context) ([]domain.User, error) { return nil, nil }

func (r *fakeRepo) ListTeamMembers(context.Context, string) ([]domain.User, error) {
	return nil, nil
}

func (r *fakeRepo) ListTopByElo(_ context.Context, limit int) ([]domain.User, error) {
	return nil, nil
}

func (r *fakeRepo) SetElo(_ context.Context, username string, elo float64) error {
	u, ok := r.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Elo = elo
	r.users[username] = u
	return nil
}

type fakeRemover struct {
	removed []string
}

func (f *fakeRemover) Remove(proofURL string) {
	f.removed = append(f.removed, proofURL)
}

func newRecordFixture() (*fakeRepo, *fakeRemover, *RecordService) {
	repo := newFakeRepo()
	remover := &fakeRemover{}
	engine := ranking.NewEngine(repo, nil, nil, &config.LeaderboardConfig{
		Mode: domain.RankingModeDOTS, DefaultLimit: 50, MaxLimit: 500, EloTopN: 10,
	}, slog.Default())
	svc := NewRecordService(repo, engine, remover, slog.Default())
	return repo, remover, svc
}

func TestSubmitRecomputesElo(t *testing.T) {
	repo, _, svc := newRecordFixture()
	repo.addUser(domain.User{Username: "lifter", Bodyweight: 80, Gender: domain.GenderMale})

	result, err := svc.Submit(context.Background(), &domain.SubmitRecordRequest{
		Username: "lifter", LiftType: domain.LiftBench, Weight: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Record)

	assert.Equal(t, 1150.0, result.Elo)
	assert.False(t, result.EloStale)
	assert.Equal(t, 1150.0, repo.users["lifter"].Elo)
}

func TestSubmitRejectsUnknownUser(t *testing.T) {
	_, _, svc := newRecordFixture()
	_, err := svc.Submit(context.Background(), &domain.SubmitRecordRequest{
		Username: "nobody", LiftType: domain.LiftBench, Weight: 100,
	})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSubmitRejectsBadProofURL(t *testing.T) {
	repo, _, svc := newRecordFixture()
	repo.addUser(domain.User{Username: "lifter"})

	_, err := svc.Submit(context.Background(), &domain.SubmitRecordRequest{
		Username: "lifter", LiftType: domain.LiftBench, Weight: 100,
		ProofURL: "https://youtube.com/watch?v=abc",
	})
	assert.True(t, domain.IsValidationError(err))
}

func TestEditByNonOwnerReportsNotFound(t *testing.T) {
	repo, _, svc := newRecordFixture()
	repo.addUser(domain.User{Username: "owner"})
	repo.addUser(domain.User{Username: "intruder"})

	submitted, err := svc.Submit(context.Background(), &domain.SubmitRecordRequest{
		Username: "owner", LiftType: domain.LiftSquat, Weight: 140,
	})
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), submitted.Record.ID, &domain.EditRecordRequest{
		Username: "intruder", LiftType: domain.LiftSquat, Weight: 1,
	})
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	// The record is untouched and the owner can still edit it.
	result, err := svc.Edit(context.Background(), submitted.Record.ID, &domain.EditRecordRequest{
		Username: "owner", LiftType: domain.LiftSquat, Weight: 145,
	})
	require.NoError(t, err)
	assert.Equal(t, 145.0, result.Record.Weight)
}

func TestDeleteRemovesStoredVideoAndRestoresElo(t *testing.T) {
	repo, remover, svc := newRecordFixture()
	repo.addUser(domain.User{Username: "lifter"})

	submitted, err := svc.Submit(context.Background(), &domain.SubmitRecordRequest{
		Username: "lifter", LiftType: domain.LiftDeadlift, Weight: 200,
		ProofURL: "/uploads/abc.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, 1300.0, submitted.Elo)

	result, err := svc.Delete(context.Background(), submitted.Record.ID, "lifter")
	require.NoError(t, err)

	assert.Equal(t, 1000.0, result.Elo)
	assert.Equal(t, []string{"/uploads/abc.mp4"}, remover.removed)
}

func TestDeleteByNonOwnerKeepsRecord(t *testing.T) {
	repo, remover, svc := newRecordFixture()
	repo.addUser(domain.User{Username: "owner"})

	submitted, err := svc.Submit(context.Background(), &domain.SubmitRecordRequest{
		Username: "owner", LiftType: domain.LiftBench, Weight: 100,
	})
	require.NoError(t, err)

	_, err = svc.Delete(context.Background(), submitted.Record.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.Len(t, repo.records, 1)
	assert.Empty(t, remover.removed)
}

func TestProfileAggregatesHistory(t *testing.T) {
	repo, _, svc := newRecordFixture()
	repo.addUser(domain.User{Username: "lifter", Bodyweight: 80, Gender: domain.GenderMale})

	for _, rec := range []domain.SubmitRecordRequest{
		{Username: "lifter", LiftType: domain.LiftBench, Weight: 90},
		{Username: "lifter", LiftType: domain.LiftBench, Weight: 100, ProofURL: "/uploads/pr.mp4"},
		{Username: "lifter", LiftType: domain.LiftSquat, Weight: 150},
		{Username: "lifter", LiftType: domain.LiftDeadlift, Weight: 180},
	} {
		rec := rec
		_, err := svc.Submit(context.Background(), &rec)
		require.NoError(t, err)
	}

	profile, err := svc.Profile(context.Background(), "lifter")
	require.NoError(t, err)

	assert.Equal(t, 100.0, profile.CurrentPRs.Bench)
	assert.Equal(t, 430.0, profile.TotalLifted)
	assert.InDelta(t, 278.47, profile.DotsScore, 0.02)
	assert.Len(t, profile.History, 4)
	require.Len(t, profile.Videos, 1)
	assert.Equal(t, "/uploads/pr.mp4", profile.Videos[0].ProofURL)
}

func TestProfileWithoutBodyweightHasZeroDots(t *testing.T) {
	repo, _, svc := newRecordFixture()
	repo.addUser(domain.User{Username: "lifter"})

	_, err := svc.Submit(context.Background(), &domain.SubmitRecordRequest{
		Username: "lifter", LiftType: domain.LiftBench, Weight: 100,
	})
	require.NoError(t, err)

	profile, err := svc.Profile(context.Background(), "lifter")
	require.NoError(t, err)
	assert.Zero(t, profile.DotsScore)
	assert.Equal(t, 100.0, profile.TotalLifted)
}

func TestProgressValidatesLiftType(t *testing.T) {
	repo, _, svc := newRecordFixture()
	repo.addUser(domain.User{Username: "lifter"})

	_, err := svc.Progress(context.Background(), "lifter", "curl")
	assert.True(t, domain.IsValidationError(err))

	points, err := svc.Progress(context.Background(), "lifter", domain.LiftBench)
	require.NoError(t, err)
	assert.Empty(t, points)
}
