package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/fluentcoach/internal/domain"
)

// MemoryStore implements Repository and ChallengeStore in process memory.
// Values are copied on the way in and out so callers never share state
// with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	profiles   map[string]*domain.UserProfile
	order      []string
	sessions   []*domain.CoachingSession
	nextID     int64
	challenges map[string]*domain.ChallengeSession
}

var (
	_ Repository     = (*MemoryStore)(nil)
	_ ChallengeStore = (*MemoryStore)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		profiles:   make(map[string]*domain.UserProfile),
		challenges: make(map[string]*domain.ChallengeSession),
		nextID:     1,
	}
}

// GetProfile retrieves a profile by username.
func (m *MemoryStore) GetProfile(_ context.Context, username string) (*domain.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[username]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// CreateProfile inserts a new profile.
func (m *MemoryStore) CreateProfile(_ context.Context, profile *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.Username]; ok {
		return fmt.Errorf("create profile %q: %w", profile.Username, domain.ErrDuplicate)
	}
	m.profiles[profile.Username] = profile.Clone()
	m.order = append(m.order, profile.Username)
	return nil
}

// PutProfile creates or replaces a profile.
func (m *MemoryStore) PutProfile(_ context.Context, profile *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.Username]; !ok {
		m.order = append(m.order, profile.Username)
	}
	m.profiles[profile.Username] = profile.Clone()
	return nil
}

// ListUsernames returns all usernames in registration order.
func (m *MemoryStore) ListUsernames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order), nil
}

// AppendSession stores a ledger entry and assigns its ID.
func (m *MemoryStore) AppendSession(_ context.Context, session *domain.CoachingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.ID = m.nextID
	m.nextID++
	entry := *session
	entry.Tips = slices.Clone(session.Tips)
	m.sessions = append(m.sessions, &entry)
	return nil
}

// ListSessions returns a user's entries, most recent first.
func (m *MemoryStore) ListSessions(_ context.Context, userID string) ([]*domain.CoachingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*domain.CoachingSession{}
	for _, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		entry := *s
		entry.Tips = slices.Clone(s.Tips)
		out = append(out, &entry)
	}
	sortNewestFirst(out)
	return out, nil
}

// GetChallenge retrieves a live challenge.
func (m *MemoryStore) GetChallenge(_ context.Context, userID string) (*domain.ChallengeSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.challenges[userID]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

// PutChallenge creates or replaces a live challenge.
func (m *MemoryStore) PutChallenge(_ context.Context, challenge *domain.ChallengeSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *challenge
	m.challenges[challenge.UserID] = &copied
	return nil
}

// DeleteChallenge removes a live challenge.
func (m *MemoryStore) DeleteChallenge(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.challenges[userID]
	delete(m.challenges, userID)
	return ok, nil
}

// IdleChallenges returns user IDs whose last activity is before cutoff.
func (m *MemoryStore) IdleChallenges(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, c := range m.challenges {
		if c.LastActivity().Before(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func sortNewestFirst(sessions []*domain.CoachingSession) {
	slices.SortStableFunc(sessions, func(a, b *domain.CoachingSession) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case b.ID > a.ID:
			return 1
		case b.ID < a.ID:
			return -1
		}
		return 0
	})
}
