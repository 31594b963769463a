package domain

import "time"

// RankingMode selects how the global leaderboard is scored
type RankingMode string

const (
	// RankingModeDOTS ranks by bodyweight-normalized DOTS score.
	RankingModeDOTS RankingMode = "dots"
	// RankingModeEloSimple is the legacy mode: top entries by stored ELO,
	// no DOTS computation.
	RankingModeEloSimple RankingMode = "elo_simple"
)

// Valid reports whether m is a known ranking mode.
func (m RankingMode) Valid() bool {
	return m == RankingModeDOTS || m == RankingModeEloSimple
}

// LeaderboardFilter narrows the global leaderboard
type LeaderboardFilter struct {
	Gender  Gender
	Country string
	Limit   int
	Mode    RankingMode
}

// LeaderboardEntry is one row of the global leaderboard. Derived per request
// from the user row and their lift history; never persisted.
type LeaderboardEntry struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Flag        string    `json:"flag"`
	Team        string    `json:"team"`
	Bodyweight  float64   `json:"weight"`
	Gender      Gender    `json:"gender"`
	Elo         float64   `json:"elo"`
	DotsScore   float64   `json:"dots_score"`
	TotalLifted float64   `json:"total_lifted"`
	Bench       float64   `json:"bench"`
	Squat       float64   `json:"squat"`
	Deadlift    float64   `json:"deadlift"`
	CreatedAt   time.Time `json:"created_at"`
}

// TeamStanding is one row of the team leaderboard, aggregated over the
// stored ELO of each member.
type TeamStanding struct {
	Team        string  `json:"team"`
	MemberCount int     `json:"member_count"`
	AvgElo      float64 `json:"avg_elo"`
	TopElo      float64 `json:"top_elo"`
	TotalElo    float64 `json:"total_elo"`
}

// EloEntry is a username/score pair from the ELO board mirror
type EloEntry struct {
	Username string  `json:"username"`
	Elo      float64 `json:"elo"`
}
