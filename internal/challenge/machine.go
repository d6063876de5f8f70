// Package challenge implements the timed "no stutter" challenge: a per-user
// live session fed with successive transcript snapshots that fails on filler
// words, repeated words or stalled speech.
//
// Timeouts are evaluated lazily. A silence longer than the threshold is only
// discovered when the next tick arrives; no timer runs per challenge.
package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/fluentcoach/internal/domain"
	"github.com/ashureev/fluentcoach/internal/shared"
	"github.com/ashureev/fluentcoach/internal/store"
)

// DefaultSilenceTimeout is how long speech may stall before the challenge fails.
const DefaultSilenceTimeout = 3 * time.Second

// Tick outcomes.
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Failure kinds.
const (
	KindFiller  = "filler"
	KindRepeat  = "repeat"
	KindSilence = "silence"
)

var fillerWords = map[string]struct{}{
	"um":   {},
	"uh":   {},
	"like": {},
	"hmm":  {},
	"erm":  {},
	"aa":   {},
	"er":   {},
}

// Result is the outcome of a tick.
type Result struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Kind   string `json:"-"`
}

// Failed reports whether the tick ended the challenge.
func (r Result) Failed() bool {
	return r.Status == StatusFail
}

// OutcomeRecorder receives tick outcomes, e.g. for metrics.
type OutcomeRecorder interface {
	RecordChallengeOutcome(ctx context.Context, status, kind string)
}

// Machine owns live challenges. All operations on one user ID are serialized.
type Machine struct {
	store          store.ChallengeStore
	locks          *shared.KeyedMutex
	now            func() time.Time
	silenceTimeout time.Duration
	recorder       OutcomeRecorder
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithSilenceTimeout overrides DefaultSilenceTimeout.
func WithSilenceTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.silenceTimeout = d
		}
	}
}

// WithRecorder attaches an outcome recorder.
func WithRecorder(r OutcomeRecorder) Option {
	return func(m *Machine) {
		m.recorder = r
	}
}

// NewMachine creates a Machine backed by s.
func NewMachine(s store.ChallengeStore, opts ...Option) *Machine {
	m := &Machine{
		store:          s,
		locks:          shared.NewKeyedMutex(),
		now:            time.Now,
		silenceTimeout: DefaultSilenceTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start begins a challenge for userID, replacing any active one.
func (m *Machine) Start(ctx context.Context, userID string) (*domain.ChallengeSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("userId is required: %w", domain.ErrValidation)
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	now := m.now()
	c := &domain.ChallengeSession{
		UserID:         userID,
		StartTime:      now,
		LastChangeTime: now,
	}
	if err := m.store.PutChallenge(ctx, c); err != nil {
		return nil, fmt.Errorf("start challenge: %w", err)
	}
	slog.Info("Challenge started", "user_id", userID)
	return c, nil
}

// Tick evaluates the latest transcript snapshot for userID.
// Returns domain.ErrNotFound when no challenge is active.
func (m *Machine) Tick(ctx context.Context, userID, transcript string) (Result, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	c, err := m.store.GetChallenge(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load challenge: %w", err)
	}
	if c == nil {
		return Result{}, fmt.Errorf("no active challenge for %q: %w", userID, domain.ErrNotFound)
	}

	now := m.now()
	text := strings.TrimSpace(transcript)

	if !c.IsSpeaking && text != "" {
		c.IsSpeaking = true
		c.LastChangeTime = now
		c.LastTranscript = text
	}

	if text != "" {
		if res, failed := scanDisfluency(text); failed {
			return m.fail(ctx, userID, res)
		}
	}

	if c.IsSpeaking {
		// An empty snapshot is silence, not progress.
		if text != "" && text != c.LastTranscript {
			c.LastChangeTime = now
			c.LastTranscript = text
		} else if now.Sub(c.LastChangeTime) > m.silenceTimeout {
			return m.fail(ctx, userID, Result{
				Status: StatusFail,
				Reason: fmt.Sprintf("Too much silence: no new speech for over %s", m.silenceTimeout),
				Kind:   KindSilence,
			})
		}
	}

	if err := m.store.PutChallenge(ctx, c); err != nil {
		return Result{}, fmt.Errorf("save challenge: %w", err)
	}
	m.record(ctx, StatusOK, "")
	return Result{Status: StatusOK}, nil
}

// Stop abandons userID's challenge and reports whether one was active.
func (m *Machine) Stop(ctx context.Context, userID string) (bool, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	existed, err := m.store.DeleteChallenge(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("stop challenge: %w", err)
	}
	if existed {
		slog.Info("Challenge stopped", "user_id", userID)
	}
	return existed, nil
}

// Active returns userID's live challenge, or nil when none is active.
func (m *Machine) Active(ctx context.Context, userID string) (*domain.ChallengeSession, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.store.GetChallenge(ctx, userID)
}

func (m *Machine) fail(ctx context.Context, userID string, res Result) (Result, error) {
	if _, err := m.store.DeleteChallenge(ctx, userID); err != nil {
		return Result{}, fmt.Errorf("end challenge: %w", err)
	}
	slog.Info("Challenge failed", "user_id", userID, "kind", res.Kind, "reason", res.Reason)
	m.record(ctx, StatusFail, res.Kind)
	return res, nil
}

func (m *Machine) record(ctx context.Context, status, kind string) {
	if m.recorder != nil {
		m.recorder.RecordChallengeOutcome(ctx, status, kind)
	}
}

// scanDisfluency looks for a filler word first, then an adjacent repeat.
// Reasons quote the words as spoken; matching is case-insensitive.
func scanDisfluency(text string) (Result, bool) {
	words := strings.Fields(text)
	folded := make([]string, len(words))
	for i, w := range words {
		folded[i] = strings.ToLower(w)
	}

	for i, w := range folded {
		if _, ok := fillerWords[w]; ok {
			return Result{
				Status: StatusFail,
				Reason: fmt.Sprintf("Filler word detected: %q", words[i]),
				Kind:   KindFiller,
			}, true
		}
	}
	for i := 1; i < len(folded); i++ {
		if folded[i] == folded[i-1] {
			return Result{
				Status: StatusFail,
				Reason: fmt.Sprintf("Repeated word detected: %q", words[i-1]+" "+words[i]),
				Kind:   KindRepeat,
			}, true
		}
	}
	return Result{}, false
}
