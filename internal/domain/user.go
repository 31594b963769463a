package domain

import "time"

// Gender of a lifter. Only male and female are accepted because the DOTS
// formula is defined over exactly two coefficient tables.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is one of the accepted gender values.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// DefaultTeam is assigned to users who register without a team.
const DefaultTeam = "Independent"

// User represents a registered lifter
type User struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Flag        string    `json:"flag"`
	Team        string    `json:"team"`
	Bodyweight  float64   `json:"weight"`
	Gender      Gender    `json:"gender,omitempty"`
	Elo         float64   `json:"elo"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Eligible reports whether the user can appear on the DOTS leaderboard.
// A DOTS score is only computable with a positive bodyweight and a gender.
func (u *User) Eligible() bool {
	return u.Bodyweight > 0 && u.Gender.Valid()
}

// RegisterRequest carries a new account registration
type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Flag        string `json:"flag"`
	Team        string `json:"team,omitempty"`
	Gender      Gender `json:"gender"`
}

// Validate checks required fields and applies defaults
func (r *RegisterRequest) Validate() error {
	if r.Username == "" || r.Password == "" || r.Flag == "" || r.Gender == "" {
		return Validationf("username, password, flag, and gender are required")
	}
	if !r.Gender.Valid() {
		return Validationf("gender must be %q or %q", GenderMale, GenderFemale)
	}
	if r.DisplayName == "" {
		r.DisplayName = r.Username
	}
	if r.Team == "" {
		r.Team = DefaultTeam
	}
	return nil
}

// UpdateProfileRequest carries a profile update. NewUsername may equal
// Username; when it differs the rename cascades to all lift records.
type UpdateProfileRequest struct {
	Username    string  `json:"username"`
	NewUsername string  `json:"new_username"`
	Team        string  `json:"team"`
	Bodyweight  float64 `json:"weight"`
	Gender      Gender  `json:"gender"`
}

// Validate checks required fields
func (r *UpdateProfileRequest) Validate() error {
	if r.Username == "" || r.NewUsername == "" || r.Team == "" || r.Gender == "" {
		return Validationf("username, new username, team, and gender are required")
	}
	if !r.Gender.Valid() {
		return Validationf("gender must be %q or %q", GenderMale, GenderFemale)
	}
	if r.Bodyweight < 0 {
		return Validationf("bodyweight cannot be negative")
	}
	return nil
}
