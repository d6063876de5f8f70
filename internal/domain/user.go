// Package domain contains core domain types for the coaching service.
package domain

import (
	"slices"
	"time"
)

// Stats aggregates session telemetry for a user.
type Stats struct {
	TotalSessions int     `json:"totalSessions"`
	TotalSeconds  int     `json:"totalSeconds"`
	DailyMinutes  float64 `json:"dailyMinutes"`
}

// UserProfile is a user's durable gamification profile.
type UserProfile struct {
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	XP             int       `json:"xp"`
	Level          int       `json:"level"`
	Streak         int       `json:"streak"`
	LastActiveDate string    `json:"lastActiveDate,omitempty"`
	Badges         []string  `json:"badges"`
	Stats          Stats     `json:"stats"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewUserProfile returns a fresh level-1 profile.
func NewUserProfile(username string, now time.Time) *UserProfile {
	return &UserProfile{
		Username:  username,
		Level:     1,
		Badges:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasBadge reports whether the badge has already been awarded.
func (p *UserProfile) HasBadge(badge string) bool {
	return slices.Contains(p.Badges, badge)
}

// HasPassword returns true if the profile was registered with credentials.
// Profiles created lazily by the coaching flow have none.
func (p *UserProfile) HasPassword() bool {
	return p.PasswordHash != ""
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	c := *p
	c.Badges = slices.Clone(p.Badges)
	if c.Badges == nil {
		c.Badges = []string{}
	}
	return &c
}
