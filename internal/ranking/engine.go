package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
	"github.com/gymrank/internal/scoring"
)

// Engine computes leaderboards and keeps stored ELO in step with lift
// history. DOTS standings are derived per request from users and their
// histories; only ELO is persisted, because the legacy board reads it
// directly from the users table and the Redis mirror.
type Engine struct {
	store    RecordStore
	mirror   EloMirror // optional
	notifier Notifier  // optional
	cfg      *config.LeaderboardConfig
	logger   *slog.Logger
}

// NewEngine creates a ranking engine. mirror and notifier may be nil; the
// engine then skips mirror writes and broadcasts.
func NewEngine(store RecordStore, mirror EloMirror, notifier Notifier, cfg *config.LeaderboardConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		mirror:   mirror,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// BuildLeaderboard computes the global leaderboard for the given filter.
func (e *Engine) BuildLeaderboard(ctx context.Context, filter domain.LeaderboardFilter) ([]domain.LeaderboardEntry, error) {
	mode := filter.Mode
	if mode == "" {
		mode = e.cfg.Mode
	}
	if !mode.Valid() {
		return nil, domain.Validationf("unknown leaderboard mode %q", mode)
	}

	if mode == domain.RankingModeEloSimple {
		return e.buildEloBoard(ctx)
	}
	return e.buildDotsBoard(ctx, filter)
}

// buildDotsBoard derives the DOTS standings from scratch: eligible users,
// their aggregated best lifts, then the bodyweight-normalized score.
func (e *Engine) buildDotsBoard(ctx context.Context, filter domain.LeaderboardFilter) ([]domain.LeaderboardEntry, error) {
	users, err := e.store.ListEligibleUsers(ctx, filter.Gender, filter.Country)
	if err != nil {
		return nil, fmt.Errorf("listing eligible users: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, user := range users {
		history, err := e.store.GetLiftHistory(ctx, user.Username)
		if err != nil {
			return nil, fmt.Errorf("loading history for %s: %w", user.Username, err)
		}

		agg := scoring.Aggregate(history)
		if agg.Total == 0 {
			// No recorded lifts: not ranked.
			continue
		}

		entries = append(entries, makeEntry(user, agg))
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DotsScore != entries[j].DotsScore {
			return entries[i].DotsScore > entries[j].DotsScore
		}
		return entries[i].Username < entries[j].Username
	})

	limit := e.clampLimit(filter.Limit)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// buildEloBoard serves the legacy mode: the top stored-ELO users, read from
// the Redis mirror when available and from PostgreSQL otherwise.
func (e *Engine) buildEloBoard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	n := e.cfg.EloTopN

	if e.mirror != nil {
		mirrored, err := e.mirror.Top(ctx, n)
		if err == nil {
			entries := make([]domain.LeaderboardEntry, 0, len(mirrored))
			for _, m := range mirrored {
				user, err := e.store.GetUser(ctx, m.Username)
				if err != nil {
					if errors.Is(err, domain.ErrUserNotFound) {
						// Mirror is stale; the reconcile worker will fix it.
						continue
					}
					return nil, err
				}
				entry := makeEntry(*user, domain.AggregatedLifts{})
				entry.Elo = m.Elo
				entries = append(entries, entry)
			}
			return entries, nil
		}
		e.logger.Warn("elo mirror read failed, falling back to database", "error", err)
	}

	users, err := e.store.ListTopByElo(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("listing top by elo: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, user := range users {
		entries = append(entries, makeEntry(user, domain.AggregatedLifts{}))
	}
	return entries, nil
}

// BuildTeamLeaderboard aggregates stored ELO per team.
func (e *Engine) BuildTeamLeaderboard(ctx context.Context) ([]domain.TeamStanding, error) {
	users, err := e.store.ListTeamUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing team users: %w", err)
	}

	byTeam := make(map[string]*domain.TeamStanding)
	for _, user := range users {
		standing, ok := byTeam[user.Team]
		if !ok {
			standing = &domain.TeamStanding{Team: user.Team}
			byTeam[user.Team] = standing
		}
		standing.MemberCount++
		standing.TotalElo += user.Elo
		if user.Elo > standing.TopElo {
			standing.TopElo = user.Elo
		}
	}

	standings := make([]domain.TeamStanding, 0, len(byTeam))
	for _, standing := range byTeam {
		standing.AvgElo = standing.TotalElo / float64(standing.MemberCount)
		standings = append(standings, *standing)
	}

	sort.Slice(standings, func(i, j int) bool {
		if standings[i].AvgElo != standings[j].AvgElo {
			return standings[i].AvgElo > standings[j].AvgElo
		}
		return standings[i].Team < standings[j].Team
	})
	return standings, nil
}

// TeamMembers returns one team's roster ordered by stored ELO.
func (e *Engine) TeamMembers(ctx context.Context, team string) ([]domain.User, error) {
	if team == "" {
		return nil, domain.Validationf("team is required")
	}
	members, err := e.store.ListTeamMembers(ctx, team)
	if err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", team, err)
	}
	if len(members) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return members, nil
}

// RecomputeElo rescans a user's full lift history, recomputes their ELO and
// persists it. Called after every submit, edit, delete and rename. The
// returned score reflects the history as read; a concurrent writer may win
// the stored value, which the reconcile worker later repairs.
func (e *Engine) RecomputeElo(ctx context.Context, username string) (float64, error) {
	history, err := e.store.GetLiftHistory(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("loading history for %s: %w", username, err)
	}

	elo := scoring.ELO(history)
	if err := e.store.SetElo(ctx, username, elo); err != nil {
		return 0, err
	}

	if e.mirror != nil {
		if err := e.mirror.SetScore(ctx, username, elo); err != nil {
			e.logger.Warn("elo mirror update failed", "username", username, "error", err)
		}
	}
	if e.notifier != nil {
		e.notifier.BroadcastPRUpdate(username, elo)
		e.publishBoards(ctx)
	}

	return elo, nil
}

// Channel names shared with the WebSocket hub.
const (
	channelDots  = "dots"
	channelTeams = "teams"
)

// publishBoards pushes refreshed standings to subscribed clients after a
// mutation. Boards with no subscribers are not rebuilt.
func (e *Engine) publishBoards(ctx context.Context) {
	if e.notifier.GetSubscriberCount(channelDots) > 0 {
		entries, err := e.buildDotsBoard(ctx, domain.LeaderboardFilter{})
		if err != nil {
			e.logger.Warn("dots board broadcast skipped", "error", err)
		} else {
			e.notifier.BroadcastRankingUpdate(channelDots, entries)
		}
	}
	if e.notifier.GetSubscriberCount(channelTeams) > 0 {
		standings, err := e.BuildTeamLeaderboard(ctx)
		if err != nil {
			e.logger.Warn("team board broadcast skipped", "error", err)
		} else {
			e.notifier.BroadcastRankingUpdate(channelTeams, standings)
		}
	}
}

// OnUserRenamed carries the mirrored score over to the new username.
func (e *Engine) OnUserRenamed(ctx context.Context, oldName, newName string) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Rename(ctx, oldName, newName); err != nil {
		e.logger.Warn("elo mirror rename failed", "old", oldName, "new", newName, "error", err)
	}
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return limit
}

func makeEntry(user domain.User, agg domain.AggregatedLifts) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Flag:        user.Flag,
		Team:        user.Team,
		Bodyweight:  user.Bodyweight,
		Gender:      user.Gender,
		Elo:         user.Elo,
		DotsScore:   scoring.DOTS(agg.Total, user.Bodyweight, user.Gender),
		TotalLifted: agg.Total,
		Bench:       agg.Bench,
		Squat:       agg.Squat,
		Deadlift:    agg.Deadlift,
		CreatedAt:   user.CreatedAt,
	}
}
