// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/fluentcoach/internal/domain"
)

// ProfileStore persists user profiles keyed by username.
type ProfileStore interface {
	// GetProfile retrieves a profile. Returns nil, nil when absent.
	GetProfile(ctx context.Context, username string) (*domain.UserProfile, error)

	// CreateProfile inserts a new profile. Returns domain.ErrDuplicate if the
	// username is taken.
	CreateProfile(ctx context.Context, profile *domain.UserProfile) error

	// PutProfile creates or replaces a profile.
	PutProfile(ctx context.Context, profile *domain.UserProfile) error

	// ListUsernames returns all usernames in registration order.
	ListUsernames(ctx context.Context) ([]string, error)
}

// SessionLedger is the append-only record of coaching exchanges.
type SessionLedger interface {
	// AppendSession assigns the next sequential ID to session and stores it.
	AppendSession(ctx context.Context, session *domain.CoachingSession) error

	// ListSessions returns a user's entries, most recent first.
	ListSessions(ctx context.Context, userID string) ([]*domain.CoachingSession, error)
}

// ChallengeStore holds live challenge records keyed by user ID.
type ChallengeStore interface {
	// GetChallenge retrieves a challenge. Returns nil, nil when absent.
	GetChallenge(ctx context.Context, userID string) (*domain.ChallengeSession, error)

	// PutChallenge creates or replaces a challenge.
	PutChallenge(ctx context.Context, challenge *domain.ChallengeSession) error

	// DeleteChallenge removes a challenge and reports whether one existed.
	DeleteChallenge(ctx context.Context, userID string) (bool, error)

	// IdleChallenges returns user IDs whose last activity is before cutoff.
	IdleChallenges(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Repository is the durable state of the service.
type Repository interface {
	ProfileStore
	SessionLedger

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing storage.
	Close() error
}
