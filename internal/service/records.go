package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gymrank/internal/domain"
	"github.com/gymrank/internal/media"
	"github.com/gymrank/internal/ranking"
	"github.com/gymrank/internal/scoring"
)

// RecordRepo is the persistence surface the record service needs
type RecordRepo interface {
	GetUser(ctx context.Context, username string) (*domain.User, error)
	InsertLiftRecord(ctx context.Context, req *domain.SubmitRecordRequest) (*domain.LiftRecord, error)
	UpdateLiftRecord(ctx context.Context, id int64, req *domain.EditRecordRequest) (*domain.LiftRecord, error)
	DeleteLiftRecord(ctx context.Context, id int64, username string) (string, error)
	GetLiftHistory(ctx context.Context, username string) ([]domain.LiftRecord, error)
	GetProgress(ctx context.Context, username string, liftType domain.LiftType) ([]domain.ProgressPoint, error)
	GetRecentVideos(ctx context.Context, limit int) ([]domain.LiftRecord, error)
}

// MediaRemover deletes stored proof videos that no record references anymore
type MediaRemover interface {
	Remove(proofURL string)
}

// RecordResult is the outcome of a record mutation. Elo carries the freshly
// recomputed score; EloStale is set when the record write succeeded but the
// recompute did not, in which case the reconcile worker repairs the score on
// its next pass.
type RecordResult struct {
	Record   *domain.LiftRecord `json:"record,omitempty"`
	Elo      float64            `json:"elo"`
	EloStale bool               `json:"elo_stale,omitempty"`
}

const (
	profileHistoryLimit = 20
	profileVideoLimit   = 10
)

// RecordService handles PR submissions, edits, deletes and the read views
// built on lift history.
type RecordService struct {
	repo   RecordRepo
	engine *ranking.Engine
	media  MediaRemover // optional
	logger *slog.Logger
}

// NewRecordService creates a RecordService. media may be nil when uploads
// are disabled.
func NewRecordService(repo RecordRepo, engine *ranking.Engine, media MediaRemover, logger *slog.Logger) *RecordService {
	return &RecordService{
		repo:   repo,
		engine: engine,
		media:  media,
		logger: logger,
	}
}

// Submit records a new PR and recomputes the lifter's ELO
func (s *RecordService) Submit(ctx context.Context, req *domain.SubmitRecordRequest) (*RecordResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := validateProofURL(req.ProofURL); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUser(ctx, req.Username); err != nil {
		return nil, err
	}

	rec, err := s.repo.InsertLiftRecord(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &RecordResult{Record: rec}
	s.refreshElo(ctx, req.Username, result)
	return result, nil
}

// Edit updates an existing PR owned by the requester. A record owned by
// someone else reports not found.
func (s *RecordService) Edit(ctx context.Context, id int64, req *domain.EditRecordRequest) (*RecordResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec, err := s.repo.UpdateLiftRecord(ctx, id, req)
	if err != nil {
		return nil, err
	}

	result := &RecordResult{Record: rec}
	s.refreshElo(ctx, req.Username, result)
	return result, nil
}

// Delete removes a PR owned by the requester and cleans up its stored video
func (s *RecordService) Delete(ctx context.Context, id int64, username string) (*RecordResult, error) {
	if username == "" {
		return nil, domain.Validationf("username is required")
	}

	proofURL, err := s.repo.DeleteLiftRecord(ctx, id, username)
	if err != nil {
		return nil, err
	}
	if proofURL != "" && s.media != nil {
		s.media.Remove(proofURL)
	}

	result := &RecordResult{}
	s.refreshElo(ctx, username, result)
	return result, nil
}

// refreshElo recomputes after a mutation; a failure leaves the stored score
// stale rather than failing the whole request.
func (s *RecordService) refreshElo(ctx context.Context, username string, result *RecordResult) {
	elo, err := s.engine.RecomputeElo(ctx, username)
	if err != nil {
		s.logger.Error("elo recompute failed", "username", username, "error", err)
		result.EloStale = true
		return
	}
	result.Elo = elo
}

// Profile builds the detailed per-user view: current PRs, history, proof
// videos and the derived DOTS figures.
func (s *RecordService) Profile(ctx context.Context, username string) (*domain.UserProfile, error) {
	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.GetLiftHistory(ctx, username)
	if err != nil {
		return nil, err
	}

	// Videos and history are capped for the profile view; the /prs endpoint
	// serves the full history.
	videos := make([]domain.LiftRecord, 0, profileVideoLimit)
	for _, rec := range history {
		if rec.ProofURL != "" && len(videos) < profileVideoLimit {
			videos = append(videos, rec)
		}
	}

	agg := scoring.Aggregate(history)
	recent := history
	if len(recent) > profileHistoryLimit {
		recent = recent[:profileHistoryLimit]
	}
	return &domain.UserProfile{
		User:        *user,
		CurrentPRs:  agg,
		History:     recent,
		Videos:      videos,
		DotsScore:   scoring.DOTS(agg.Total, user.Bodyweight, user.Gender),
		TotalLifted: agg.Total,
	}, nil
}

// History returns a user's full lift history, newest first
func (s *RecordService) History(ctx context.Context, username string) ([]domain.LiftRecord, error) {
	if _, err := s.repo.GetUser(ctx, username); err != nil {
		return nil, err
	}
	return s.repo.GetLiftHistory(ctx, username)
}

// Progress returns the chronological weight series for one lift type
func (s *RecordService) Progress(ctx context.Context, username string, liftType domain.LiftType) ([]domain.ProgressPoint, error) {
	if !liftType.Valid() {
		return nil, domain.Validationf("unsupported lift type %q", liftType)
	}
	if _, err := s.repo.GetUser(ctx, username); err != nil {
		return nil, err
	}
	return s.repo.GetProgress(ctx, username, liftType)
}

// RecentVideos returns the newest records carrying a proof URL
func (s *RecordService) RecentVideos(ctx context.Context, limit int) ([]domain.LiftRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.GetRecentVideos(ctx, limit)
}

// validateProofURL accepts stored upload paths and approved external hosts
func validateProofURL(proofURL string) error {
	if proofURL == "" || strings.HasPrefix(proofURL, "/uploads/") {
		return nil
	}
	return media.ValidateExternalURL(proofURL)
}
