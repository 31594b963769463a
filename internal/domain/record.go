package domain

import "time"

// LiftType is one of the three tracked powerlifting movements
type LiftType string

const (
	LiftBench    LiftType = "bench"
	LiftSquat    LiftType = "squat"
	LiftDeadlift LiftType = "deadlift"
)

// Valid reports whether t is a tracked lift type.
func (t LiftType) Valid() bool {
	return t == LiftBench || t == LiftSquat || t == LiftDeadlift
}

// LiftTypes lists all tracked lift types in canonical order.
func LiftTypes() []LiftType {
	return []LiftType{LiftBench, LiftSquat, LiftDeadlift}
}

// LiftRecord is a single personal-record submission. Records are only ever
// removed by an explicit delete; edits mutate lift type and weight in place.
type LiftRecord struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	LiftType  LiftType  `json:"lift_type"`
	Weight    float64   `json:"weight"`
	ProofURL  string    `json:"video_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AggregatedLifts holds a user's best lift per type. A lift type with no
// records contributes zero, never an absent value.
type AggregatedLifts struct {
	Bench    float64 `json:"bench"`
	Squat    float64 `json:"squat"`
	Deadlift float64 `json:"deadlift"`
	Total    float64 `json:"total"`
}

// SubmitRecordRequest carries a new PR submission
type SubmitRecordRequest struct {
	Username string   `json:"username"`
	LiftType LiftType `json:"lift_type"`
	Weight   float64  `json:"weight"`
	ProofURL string   `json:"proof_url,omitempty"`
}

// Validate checks required fields
func (r *SubmitRecordRequest) Validate() error {
	if r.Username == "" || r.LiftType == "" {
		return Validationf("username and lift type are required")
	}
	if !r.LiftType.Valid() {
		return Validationf("unsupported lift type %q", r.LiftType)
	}
	if r.Weight <= 0 {
		return Validationf("weight must be positive")
	}
	return nil
}

// EditRecordRequest carries an edit to an existing PR
type EditRecordRequest struct {
	Username string   `json:"username"`
	LiftType LiftType `json:"lift_type"`
	Weight   float64  `json:"weight"`
}

// Validate checks required fields
func (r *EditRecordRequest) Validate() error {
	if r.Username == "" || r.LiftType == "" {
		return Validationf("username, lift type and weight are required")
	}
	if !r.LiftType.Valid() {
		return Validationf("unsupported lift type %q", r.LiftType)
	}
	if r.Weight <= 0 {
		return Validationf("weight must be positive")
	}
	return nil
}

// ProgressPoint is one sample in a lift-type progress series
type ProgressPoint struct {
	Weight float64   `json:"weight"`
	Date   time.Time `json:"date"`
}

// UserProfile is the detailed per-user view: current PRs, recent history,
// proof videos and the derived DOTS figures. Built per request, never stored.
type UserProfile struct {
	User        User            `json:"user"`
	CurrentPRs  AggregatedLifts `json:"current_prs"`
	History     []LiftRecord    `json:"history"`
	Videos      []LiftRecord    `json:"videos"`
	DotsScore   float64         `json:"dots_score"`
	TotalLifted float64         `json:"total_lifted"`
}
