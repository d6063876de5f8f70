// Package coach composes heuristic scoring, a language-generation
// collaborator and the progression engine into one coaching exchange.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/fluentcoach/internal/domain"
	"github.com/ashureev/fluentcoach/internal/heuristic"
	"github.com/ashureev/fluentcoach/internal/progress"
	"github.com/ashureev/fluentcoach/internal/shared"
	"github.com/ashureev/fluentcoach/internal/store"
)

// Defaults applied to empty request fields.
const (
	DefaultUserID   = "guest"
	DefaultMode     = "casual"
	DefaultLanguage = "en"

	DefaultTimeout = 30 * time.Second

	// FallbackTip is returned when the collaborator reply cannot be decoded.
	FallbackTip  = "Keep practicing! Try speaking a bit slower and pausing instead of using filler words."
	FallbackTone = "neutral"
)

// Outcomes reported to the Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// SuggestRequest is the input handed to the language collaborator.
type SuggestRequest struct {
	Transcript     string
	Mode           string
	Language       string
	HeuristicScore int
}

// Suggester produces a raw structured suggestion for a transcript.
// The reply is expected to be a JSON object matching domain.Suggestion.
type Suggester interface {
	Suggest(ctx context.Context, req SuggestRequest) (string, error)
}

// Recorder receives coaching telemetry.
type Recorder interface {
	RecordCoach(ctx context.Context, outcome string)
	RecordCollaboratorCall(ctx context.Context, collaborator string, seconds float64, failed bool)
	RecordBadges(ctx context.Context, badges []string)
}

// Request is one finished utterance to coach.
type Request struct {
	UserID          string
	Transcript      string
	Mode            string
	Language        string
	DurationSeconds int
}

// Gamification summarizes the progression applied by one exchange.
type Gamification struct {
	EarnedXP  int      `json:"earnedXp"`
	NewBadges []string `json:"newBadges"`
	Level     int      `json:"level"`
	Streak    int      `json:"streak"`
	XP        int      `json:"xp"`
}

// Response is the composed coaching reply.
type Response struct {
	Session      *domain.CoachingSession `json:"session"`
	UserProfile  *domain.UserProfile     `json:"userProfile"`
	Gamification Gamification            `json:"gamification"`
}

// Orchestrator runs coaching exchanges.
type Orchestrator struct {
	profiles  store.ProfileStore
	ledger    store.SessionLedger
	suggester Suggester
	engine    *progress.Engine
	locks     *shared.KeyedMutex
	timeout   time.Duration
	recorder  Recorder
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds each collaborator call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRecorder attaches telemetry.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithClock overrides the clock used for ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(profiles store.ProfileStore, ledger store.SessionLedger, suggester Suggester, engine *progress.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		profiles:  profiles,
		ledger:    ledger,
		suggester: suggester,
		engine:    engine,
		locks:     shared.NewKeyedMutex(),
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Locks exposes the per-username lock so other profile writers (registration)
// serialize with coaching.
func (o *Orchestrator) Locks() *shared.KeyedMutex {
	return o.locks
}

// Coach scores the transcript, asks the collaborator for a suggestion,
// applies progression and appends a ledger entry.
//
// A collaborator call failure returns domain.ErrUpstream. An undecodable
// reply degrades to a fallback suggestion and never fails the call.
func (o *Orchestrator) Coach(ctx context.Context, req Request) (*Response, error) {
	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		return nil, fmt.Errorf("transcript is required: %w", domain.ErrValidation)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = DefaultUserID
	}
	mode := orDefault(req.Mode, DefaultMode)
	language := orDefault(req.Language, DefaultLanguage)
	duration := max(req.DurationSeconds, 0)

	h := heuristic.Analyze(transcript)

	suggestion, fellBack, err := o.suggest(ctx, SuggestRequest{
		Transcript:     transcript,
		Mode:           mode,
		Language:       language,
		HeuristicScore: h.Score,
	})
	if err != nil {
		o.recordOutcome(ctx, OutcomeError)
		return nil, err
	}

	unlock := o.locks.Lock(userID)
	profile, result, err := o.progress(ctx, userID, duration, h.Score)
	unlock()
	if err != nil {
		o.recordOutcome(ctx, OutcomeError)
		return nil, err
	}

	session := &domain.CoachingSession{
		UserID:          userID,
		Mode:            mode,
		Transcript:      transcript,
		HeuristicScore:  h.Score,
		Confidence:      suggestion.Confidence,
		FluentSentence:  suggestion.FluentSentence,
		Tips:            suggestion.Tips,
		Tone:            suggestion.Tone,
		CreatedAt:       o.now(),
		DurationSeconds: duration,
	}
	if err := o.ledger.AppendSession(ctx, session); err != nil {
		o.recordOutcome(ctx, OutcomeError)
		return nil, fmt.Errorf("append session: %w", err)
	}

	if fellBack {
		o.recordOutcome(ctx, OutcomeFallback)
	} else {
		o.recordOutcome(ctx, OutcomeOK)
	}
	if o.recorder != nil && len(result.NewBadges) > 0 {
		o.recorder.RecordBadges(ctx, result.NewBadges)
	}

	slog.Info("Coaching session recorded",
		"user_id", userID,
		"session_id", session.ID,
		"score", h.Score,
		"earned_xp", result.EarnedXP,
		"level", profile.Level,
	)

	return &Response{
		Session:     session,
		UserProfile: profile,
		Gamification: Gamification{
			EarnedXP:  result.EarnedXP,
			NewBadges: result.NewBadges,
			Level:     profile.Level,
			Streak:    profile.Streak,
			XP:        profile.XP,
		},
	}, nil
}

// progress loads or lazily creates the profile and applies the session.
// Callers hold the username lock.
func (o *Orchestrator) progress(ctx context.Context, userID string, duration, score int) (*domain.UserProfile, progress.Result, error) {
	profile, err := o.profiles.GetProfile(ctx, userID)
	if err != nil {
		slog.Warn("Profile lookup failed, using default profile", "user_id", userID, "error", err)
		profile = nil
	}
	if profile == nil {
		profile = domain.NewUserProfile(userID, o.now())
		slog.Info("Created profile on first coaching call", "user_id", userID)
	}

	result := o.engine.Apply(profile, duration, score)
	profile.UpdatedAt = o.now()

	if err := o.profiles.PutProfile(ctx, profile); err != nil {
		return nil, progress.Result{}, fmt.Errorf("save profile: %w", err)
	}
	return profile, result, nil
}

// suggest calls the collaborator under the configured timeout and decodes
// its reply, falling back on decode failure.
func (o *Orchestrator) suggest(ctx context.Context, req SuggestRequest) (domain.Suggestion, bool, error) {
	if o.suggester == nil {
		return domain.Suggestion{}, false, fmt.Errorf("language service not configured: %w", domain.ErrUpstream)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	raw, err := o.suggester.Suggest(callCtx, req)
	if o.recorder != nil {
		o.recorder.RecordCollaboratorCall(ctx, "llm", time.Since(start).Seconds(), err != nil)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Error("Language service timed out", "timeout", o.timeout)
		} else {
			slog.Error("Language service call failed", "error", err)
		}
		return domain.Suggestion{}, false, fmt.Errorf("suggest: %w: %w", domain.ErrUpstream, err)
	}

	s, err := DecodeSuggestion(raw)
	if err != nil {
		slog.Warn("Undecodable suggestion, using fallback", "error", err)
		return Fallback(req.Transcript, req.HeuristicScore), true, nil
	}
	if s.Confidence <= 0 || s.Confidence > 100 {
		s.Confidence = req.HeuristicScore
	}
	if s.FluentSentence == "" {
		s.FluentSentence = req.Transcript
	}
	if s.Tips == nil {
		s.Tips = []string{}
	}
	return s, false, nil
}

func (o *Orchestrator) recordOutcome(ctx context.Context, outcome string) {
	if o.recorder != nil {
		o.recorder.RecordCoach(ctx, outcome)
	}
}

// Fallback is the degraded suggestion used when the reply cannot be decoded.
func Fallback(transcript string, score int) domain.Suggestion {
	return domain.Suggestion{
		FluentSentence: transcript,
		Tips:           []string{FallbackTip},
		Tone:           FallbackTone,
		Confidence:     score,
	}
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
