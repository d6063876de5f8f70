package coach

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/fluentcoach/internal/domain"
	"github.com/ashureev/fluentcoach/internal/progress"
	"github.com/ashureev/fluentcoach/internal/store"
)

type fakeSuggester struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	calls []SuggestRequest
}

func (f *fakeSuggester) Suggest(ctx context.Context, req SuggestRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	badges   []string
	failed   int
}

func (r *fakeRecorder) RecordCoach(_ context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) RecordCollaboratorCall(_ context.Context, _ string, _ float64, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if failed {
		r.failed++
	}
}

func (r *fakeRecorder) RecordBadges(_ context.Context, badges []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.badges = append(r.badges, badges...)
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(s Suggester, opts ...Option) (*Orchestrator, *store.MemoryStore) {
	mem := store.NewMemory()
	clock := func() time.Time { return fixedNow }
	engine := progress.NewEngine(progress.WithClock(clock), progress.WithLocation(time.UTC))
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewOrchestrator(mem, mem, s, engine, opts...), mem
}

const goodReply = `{"fluentSentence":"I am fine.","tips":["Slow down"],"tone":"friendly","confidence":88}`

func TestCoach_HappyPath(t *testing.T) {
	s := &fakeSuggester{reply: goodReply}
	o, mem := newTestOrchestrator(s)
	ctx := context.Background()

	resp, err := o.Coach(ctx, Request{
		UserID:          "alice",
		Transcript:      "  I I am um fine  ",
		DurationSeconds: 30,
	})
	if err != nil {
		t.Fatalf("Coach: %v", err)
	}

	// one repeat and one filler
	if resp.Session.HeuristicScore != 85 {
		t.Errorf("HeuristicScore = %d, want 85", resp.Session.HeuristicScore)
	}
	if resp.Session.FluentSentence != "I am fine." || resp.Session.Confidence != 88 || resp.Session.Tone != "friendly" {
		t.Errorf("session = %+v", resp.Session)
	}
	if resp.Session.ID != 1 {
		t.Errorf("ID = %d, want 1", resp.Session.ID)
	}
	if resp.Session.Mode != DefaultMode {
		t.Errorf("Mode = %q, want %q", resp.Session.Mode, DefaultMode)
	}

	// 10 base + 3 duration + 20 fluency bonus
	if resp.Gamification.EarnedXP != 33 {
		t.Errorf("EarnedXP = %d, want 33", resp.Gamification.EarnedXP)
	}
	if resp.Gamification.XP != 33 || resp.Gamification.Level != 1 || resp.Gamification.Streak != 1 {
		t.Errorf("gamification = %+v", resp.Gamification)
	}
	if len(resp.Gamification.NewBadges) != 1 || resp.Gamification.NewBadges[0] != progress.BadgeFirstStep {
		t.Errorf("NewBadges = %v, want [%s]", resp.Gamification.NewBadges, progress.BadgeFirstStep)
	}

	if len(s.calls) != 1 {
		t.Fatalf("suggester calls = %d, want 1", len(s.calls))
	}
	call := s.calls[0]
	if call.Transcript != "I I am um fine" || call.Language != DefaultLanguage || call.HeuristicScore != 85 {
		t.Errorf("suggest request = %+v", call)
	}

	stored, _ := mem.GetProfile(ctx, "alice")
	if stored == nil || stored.XP != 33 {
		t.Fatalf("stored profile = %+v", stored)
	}
	sessions, _ := mem.ListSessions(ctx, "alice")
	if len(sessions) != 1 {
		t.Errorf("ledger entries = %d, want 1", len(sessions))
	}
}

func TestCoach_UndecodableReplyFallsBack(t *testing.T) {
	rec := &fakeRecorder{}
	o, _ := newTestOrchestrator(&fakeSuggester{reply: "Sorry, I cannot help with that."}, WithRecorder(rec))

	resp, err := o.Coach(context.Background(), Request{UserID: "bob", Transcript: "uh hello there"})
	if err != nil {
		t.Fatalf("Coach: %v", err)
	}
	if resp.Session.FluentSentence != "uh hello there" {
		t.Errorf("FluentSentence = %q, want original transcript", resp.Session.FluentSentence)
	}
	if resp.Session.Confidence != resp.Session.HeuristicScore || resp.Session.Confidence != 95 {
		t.Errorf("Confidence = %d, want heuristic score 95", resp.Session.Confidence)
	}
	if len(resp.Session.Tips) != 1 || resp.Session.Tips[0] != FallbackTip {
		t.Errorf("Tips = %v", resp.Session.Tips)
	}
	if resp.Session.Tone != FallbackTone {
		t.Errorf("Tone = %q, want %q", resp.Session.Tone, FallbackTone)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != OutcomeFallback {
		t.Errorf("outcomes = %v, want [fallback]", rec.outcomes)
	}
}

func TestCoach_CollaboratorErrorIsUpstream(t *testing.T) {
	rec := &fakeRecorder{}
	o, mem := newTestOrchestrator(&fakeSuggester{err: errors.New("connection refused")}, WithRecorder(rec))

	_, err := o.Coach(context.Background(), Request{UserID: "carol", Transcript: "hello"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if rec.failed != 1 {
		t.Errorf("failed calls = %d, want 1", rec.failed)
	}
	p, _ := mem.GetProfile(context.Background(), "carol")
	if p != nil {
		t.Error("profile should not be created when the collaborator fails")
	}
}

func TestCoach_TimeoutIsUpstream(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeSuggester{reply: goodReply, delay: time.Second}, WithTimeout(20*time.Millisecond))

	_, err := o.Coach(context.Background(), Request{UserID: "dave", Transcript: "hello"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestCoach_NoSuggesterIsUpstream(t *testing.T) {
	o, _ := newTestOrchestrator(nil)
	_, err := o.Coach(context.Background(), Request{Transcript: "hello"})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestCoach_EmptyTranscript(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeSuggester{reply: goodReply})
	_, err := o.Coach(context.Background(), Request{UserID: "erin", Transcript: "   "})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCoach_DefaultUserAndExistingProfile(t *testing.T) {
	o, mem := newTestOrchestrator(&fakeSuggester{reply: goodReply})
	ctx := context.Background()

	existing := domain.NewUserProfile("frank", fixedNow)
	existing.XP = 95
	existing.Level = 1
	existing.PasswordHash = "hash"
	if err := mem.CreateProfile(ctx, existing); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	resp, err := o.Coach(ctx, Request{UserID: "frank", Transcript: "hello world", DurationSeconds: 5})
	if err != nil {
		t.Fatalf("Coach: %v", err)
	}
	// 95 + 10 + 0 + 20
	if resp.UserProfile.XP != 125 || resp.UserProfile.Level != 2 {
		t.Errorf("profile = xp %d level %d, want 125/2", resp.UserProfile.XP, resp.UserProfile.Level)
	}
	stored, _ := mem.GetProfile(ctx, "frank")
	if stored.PasswordHash != "hash" {
		t.Error("password hash lost on progression update")
	}

	resp, err = o.Coach(ctx, Request{Transcript: "hello"})
	if err != nil {
		t.Fatalf("Coach: %v", err)
	}
	if resp.Session.UserID != DefaultUserID {
		t.Errorf("UserID = %q, want %q", resp.Session.UserID, DefaultUserID)
	}
}

func TestCoach_ConfidenceOutOfRangeUsesHeuristic(t *testing.T) {
	for _, reply := range []string{
		`{"fluentSentence":"Hi.","tips":[],"tone":"calm","confidence":250}`,
		`{"fluentSentence":"Hi.","tips":[],"tone":"calm","confidence":0}`,
		`{"fluentSentence":"Hi.","tips":[],"tone":"calm"}`,
	} {
		o, _ := newTestOrchestrator(&fakeSuggester{reply: reply})
		resp, err := o.Coach(context.Background(), Request{UserID: "gina", Transcript: "hi"})
		if err != nil {
			t.Fatalf("Coach: %v", err)
		}
		if resp.Session.Confidence != 100 {
			t.Errorf("reply %s: Confidence = %d, want heuristic 100", reply, resp.Session.Confidence)
		}
	}
}

func TestCoach_ConcurrentSameUserKeepsAllXP(t *testing.T) {
	o, mem := newTestOrchestrator(&fakeSuggester{reply: goodReply})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Coach(ctx, Request{UserID: "hank", Transcript: "hello there"}); err != nil {
				t.Errorf("Coach: %v", err)
			}
		}()
	}
	wg.Wait()

	p, _ := mem.GetProfile(ctx, "hank")
	if p.Stats.TotalSessions != n {
		t.Errorf("TotalSessions = %d, want %d", p.Stats.TotalSessions, n)
	}
	// 30 XP per session (10 base + 20 fluency)
	if p.XP != n*30 {
		t.Errorf("XP = %d, want %d", p.XP, n*30)
	}
	sessions, _ := mem.ListSessions(ctx, "hank")
	if len(sessions) != n {
		t.Errorf("ledger entries = %d, want %d", len(sessions), n)
	}
}
