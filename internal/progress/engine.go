// Package progress applies completed coaching sessions to a user's profile:
// experience, level, daily streak and badges.
package progress

import (
	"time"

	"github.com/ashureev/fluentcoach/internal/domain"
)

// Badge identifiers.
const (
	BadgeFirstStep           = "First Step"
	BadgeDedicatedSpeaker    = "Dedicated Speaker"
	BadgeConsistencyChampion = "Consistency Champion"
	BadgeSmoothSpeaker       = "Smooth Speaker"
	BadgeXPHunter            = "XP Hunter"
)

const (
	dateLayout      = "2006-01-02"
	xpPerLevel      = 100
	baseXP          = 10
	secondsPerXP    = 10
	fluencyBonusXP  = 20
	fluencyBonusMin = 80
)

// Result describes what a single session earned.
type Result struct {
	EarnedXP  int      `json:"earnedXp"`
	NewBadges []string `json:"newBadges"`
}

// Engine mutates profiles from session telemetry. The zero value is not
// usable; construct with NewEngine.
type Engine struct {
	now func() time.Time
	loc *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for date boundaries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		e.loc = loc
	}
}

// NewEngine creates an Engine using the wall clock and local time zone.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now, loc: time.Local}
	for _, o := range opts {
		o(e)
	}
	return e
}

// LevelFor derives the level for an experience total.
func LevelFor(xp int) int {
	return xp/xpPerLevel + 1
}

// Apply records a completed session of durationSeconds with the given fluency
// score on p and returns the XP and badges it earned. p is mutated in place.
func (e *Engine) Apply(p *domain.UserProfile, durationSeconds int, fluencyScore int) Result {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	now := e.now().In(e.loc)
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)

	p.Stats.TotalSessions++
	p.Stats.TotalSeconds += durationSeconds

	// Same-day sessions keep accumulating minutes without touching the streak.
	if p.LastActiveDate != today {
		p.Stats.DailyMinutes = 0
		if p.LastActiveDate == yesterday {
			p.Streak++
		} else {
			p.Streak = 1
		}
		p.LastActiveDate = today
	}
	p.Stats.DailyMinutes += float64(durationSeconds) / 60

	earned := baseXP + durationSeconds/secondsPerXP
	if fluencyScore >= fluencyBonusMin {
		earned += fluencyBonusXP
	}
	p.XP += earned
	p.Level = LevelFor(p.XP)
	p.UpdatedAt = now

	res := Result{EarnedXP: earned, NewBadges: []string{}}
	for _, rule := range badgeRules {
		if p.HasBadge(rule.badge) || !rule.earned(p, fluencyScore) {
			continue
		}
		p.Badges = append(p.Badges, rule.badge)
		res.NewBadges = append(res.NewBadges, rule.badge)
	}
	return res
}

type badgeRule struct {
	badge  string
	earned func(p *domain.UserProfile, fluencyScore int) bool
}

var badgeRules = []badgeRule{
	{BadgeFirstStep, func(p *domain.UserProfile, _ int) bool { return p.Stats.TotalSessions >= 1 }},
	{BadgeDedicatedSpeaker, func(p *domain.UserProfile, _ int) bool { return p.Stats.TotalSessions >= 10 }},
	{BadgeConsistencyChampion, func(p *domain.UserProfile, _ int) bool { return p.Streak >= 3 }},
	{BadgeSmoothSpeaker, func(_ *domain.UserProfile, score int) bool { return score >= 90 }},
	{BadgeXPHunter, func(p *domain.UserProfile, _ int) bool { return p.XP >= 500 }},
}
