package challenge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/fluentcoach/internal/domain"
	"github.com/ashureev/fluentcoach/internal/store"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedOutcome struct {
	status string
	kind   string
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
}

func (r *fakeRecorder) RecordChallengeOutcome(_ context.Context, status, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, recordedOutcome{status, kind})
}

func newTestMachine(t *testing.T) (*Machine, *store.MemoryStore, *fakeClock) {
	t.Helper()
	s := store.NewMemory()
	clock := newFakeClock()
	return NewMachine(s, WithClock(clock.Now)), s, clock
}

func startChallenge(t *testing.T, m *Machine, userID string) {
	t.Helper()
	if _, err := m.Start(context.Background(), userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func assertGone(t *testing.T, s *store.MemoryStore, userID string) {
	t.Helper()
	c, err := s.GetChallenge(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	if c != nil {
		t.Fatalf("expected challenge for %s to be removed, still have %+v", userID, c)
	}
}

func TestStart_RequiresUserID(t *testing.T) {
	m, _, _ := newTestMachine(t)
	if _, err := m.Start(context.Background(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Start(blank) err = %v, want ErrValidation", err)
	}
}

func TestStart_ReplacesExisting(t *testing.T) {
	m, s, clock := newTestMachine(t)
	ctx := context.Background()
	startChallenge(t, m, "u1")
	if _, err := m.Tick(ctx, "u1", "hello there"); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	clock.Advance(time.Minute)
	startChallenge(t, m, "u1")

	c, _ := s.GetChallenge(ctx, "u1")
	if c.IsSpeaking || c.LastTranscript != "" {
		t.Errorf("restart kept old state: %+v", c)
	}
	if !c.StartTime.Equal(clock.Now()) {
		t.Errorf("StartTime = %v, want %v", c.StartTime, clock.Now())
	}
}

func TestTick_NotFound(t *testing.T) {
	m, _, _ := newTestMachine(t)
	_, err := m.Tick(context.Background(), "ghost", "hello")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Tick(no challenge) err = %v, want ErrNotFound", err)
	}
}

func TestTick_RepeatedWordFails(t *testing.T) {
	m, s, _ := newTestMachine(t)
	startChallenge(t, m, "u1")

	res, err := m.Tick(context.Background(), "u1", "I I am fine")
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Status != StatusFail || res.Kind != KindRepeat {
		t.Fatalf("result = %+v, want repeat failure", res)
	}
	if !strings.Contains(res.Reason, "I I") {
		t.Errorf("reason %q does not mention the repeated pair", res.Reason)
	}
	assertGone(t, s, "u1")
}

func TestTick_FillerWordFails(t *testing.T) {
	m, s, _ := newTestMachine(t)
	startChallenge(t, m, "u1")

	res, err := m.Tick(context.Background(), "u1", "um hello")
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Status != StatusFail || res.Kind != KindFiller {
		t.Fatalf("result = %+v, want filler failure", res)
	}
	if !strings.Contains(res.Reason, "um") {
		t.Errorf("reason %q does not mention the filler", res.Reason)
	}
	assertGone(t, s, "u1")
}

func TestTick_FillerCheckedBeforeRepeat(t *testing.T) {
	m, _, _ := newTestMachine(t)
	startChallenge(t, m, "u1")

	res, _ := m.Tick(context.Background(), "u1", "so so er")
	if res.Kind != KindFiller {
		t.Fatalf("Kind = %q, want filler", res.Kind)
	}
}

func TestTick_ChallengeOnlyFillers(t *testing.T) {
	for _, w := range []string{"aa", "er", "Like", "HMM"} {
		m, _, _ := newTestMachine(t)
		startChallenge(t, m, "u1")
		res, _ := m.Tick(context.Background(), "u1", "well "+w+" then")
		if !res.Failed() {
			t.Errorf("%q: expected failure, got %+v", w, res)
		}
	}
}

func TestTick_SilenceTimeout(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want string
	}{
		{"within threshold", 2000 * time.Millisecond, StatusOK},
		{"at threshold", 3000 * time.Millisecond, StatusOK},
		{"past threshold", 3001 * time.Millisecond, StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, s, clock := newTestMachine(t)
			ctx := context.Background()
			startChallenge(t, m, "u1")

			if res, err := m.Tick(ctx, "u1", "hello there"); err != nil || res.Status != StatusOK {
				t.Fatalf("first tick = %+v, %v", res, err)
			}
			clock.Advance(tt.gap)
			res, err := m.Tick(ctx, "u1", "hello there")
			if err != nil {
				t.Fatalf("second tick: %v", err)
			}
			if res.Status != tt.want {
				t.Fatalf("status = %q, want %q (%+v)", res.Status, tt.want, res)
			}
			if res.Failed() {
				if !strings.Contains(strings.ToLower(res.Reason), "silence") {
					t.Errorf("reason %q does not mention silence", res.Reason)
				}
				assertGone(t, s, "u1")
			}
		})
	}
}

func TestTick_ProgressResetsSilenceTimer(t *testing.T) {
	m, _, clock := newTestMachine(t)
	ctx := context.Background()
	startChallenge(t, m, "u1")

	transcripts := []string{"hello", "hello there", "hello there my", "hello there my friend"}
	for _, tr := range transcripts {
		res, err := m.Tick(ctx, "u1", tr)
		if err != nil || res.Status != StatusOK {
			t.Fatalf("tick %q = %+v, %v", tr, res, err)
		}
		clock.Advance(2500 * time.Millisecond)
	}
}

func TestTick_NoTimeoutBeforeSpeaking(t *testing.T) {
	m, s, clock := newTestMachine(t)
	ctx := context.Background()
	startChallenge(t, m, "u1")

	clock.Advance(10 * time.Second)
	res, err := m.Tick(ctx, "u1", "   ")
	if err != nil || res.Status != StatusOK {
		t.Fatalf("silent tick before speaking = %+v, %v", res, err)
	}
	c, _ := s.GetChallenge(ctx, "u1")
	if c == nil || c.IsSpeaking {
		t.Fatalf("challenge should still be waiting for speech: %+v", c)
	}

	res, _ = m.Tick(ctx, "u1", "finally speaking")
	if res.Status != StatusOK {
		t.Fatalf("onset tick = %+v", res)
	}
	c, _ = s.GetChallenge(ctx, "u1")
	if !c.IsSpeaking || c.LastTranscript != "finally speaking" || !c.LastChangeTime.Equal(clock.Now()) {
		t.Errorf("onset not recorded: %+v", c)
	}
}

func TestTick_EmptySnapshotIsSilence(t *testing.T) {
	m, _, clock := newTestMachine(t)
	ctx := context.Background()
	startChallenge(t, m, "u1")

	_, _ = m.Tick(ctx, "u1", "hello")
	clock.Advance(2 * time.Second)
	if res, _ := m.Tick(ctx, "u1", ""); res.Status != StatusOK {
		t.Fatalf("empty tick within threshold = %+v", res)
	}
	clock.Advance(1500 * time.Millisecond)
	if res, _ := m.Tick(ctx, "u1", ""); !res.Failed() || res.Kind != KindSilence {
		t.Fatalf("empty tick past threshold = %+v, want silence failure", res)
	}
}

func TestTick_TrimsTranscript(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()
	startChallenge(t, m, "u1")

	_, _ = m.Tick(ctx, "u1", "  hello world \n")
	c, _ := s.GetChallenge(ctx, "u1")
	if c.LastTranscript != "hello world" {
		t.Errorf("LastTranscript = %q, want trimmed", c.LastTranscript)
	}
}

func TestStop(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()
	startChallenge(t, m, "u1")

	stopped, err := m.Stop(ctx, "u1")
	if err != nil || !stopped {
		t.Fatalf("Stop = %v, %v; want true, nil", stopped, err)
	}
	assertGone(t, s, "u1")

	stopped, _ = m.Stop(ctx, "u1")
	if stopped {
		t.Error("second Stop reported an active challenge")
	}
}

func TestCustomSilenceTimeout(t *testing.T) {
	s := store.NewMemory()
	clock := newFakeClock()
	m := NewMachine(s, WithClock(clock.Now), WithSilenceTimeout(500*time.Millisecond))
	ctx := context.Background()
	startChallenge(t, m, "u1")

	_, _ = m.Tick(ctx, "u1", "hello")
	clock.Advance(600 * time.Millisecond)
	if res, _ := m.Tick(ctx, "u1", "hello"); !res.Failed() {
		t.Fatalf("expected failure with 500ms timeout, got %+v", res)
	}
}

func TestRecorderReceivesOutcomes(t *testing.T) {
	s := store.NewMemory()
	rec := &fakeRecorder{}
	m := NewMachine(s, WithRecorder(rec))
	ctx := context.Background()
	startChallenge(t, m, "u1")

	_, _ = m.Tick(ctx, "u1", "hello")
	_, _ = m.Tick(ctx, "u1", "hello uh")

	want := []recordedOutcome{{StatusOK, ""}, {StatusFail, KindFiller}}
	if len(rec.outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", rec.outcomes, want)
	}
	for i := range want {
		if rec.outcomes[i] != want[i] {
			t.Errorf("outcome %d = %v, want %v", i, rec.outcomes[i], want[i])
		}
	}
}

func TestTick_ConcurrentSameUserIsSerialized(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	startChallenge(t, m, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Tick(ctx, "u1", "steady words")
		}()
	}
	wg.Wait()

	c, err := m.Active(ctx, "u1")
	if err != nil || c == nil {
		t.Fatalf("Active = %+v, %v", c, err)
	}
	if c.LastTranscript != "steady words" {
		t.Errorf("LastTranscript = %q", c.LastTranscript)
	}
}
