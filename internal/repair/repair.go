// Package repair replays a fluent rewrite in the speaker's own voice: the
// uploaded sample is cloned, the text synthesized, and the clone discarded.
package repair

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/fluentcoach/internal/domain"
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultMaxBytes = 10 << 20

	cleanupTimeout = 10 * time.Second
)

// VoiceCloner is the voice-cloning and text-to-speech collaborator.
type VoiceCloner interface {
	CloneVoice(ctx context.Context, name string, sample io.Reader, filename string) (string, error)
	Synthesize(ctx context.Context, voiceID, text string, w io.Writer) (int64, error)
	DeleteVoice(ctx context.Context, voiceID string) error
}

// Recorder receives collaborator call telemetry.
type Recorder interface {
	RecordCollaboratorCall(ctx context.Context, collaborator string, seconds float64, failed bool)
}

// Service runs the repair flow.
type Service struct {
	cloner   VoiceCloner
	dir      string
	maxBytes int64
	timeout  time.Duration
	recorder Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds the whole collaborator exchange.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxBytes caps the accepted sample size.
func WithMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithRecorder attaches telemetry.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService creates a Service spooling uploads under dir. A nil cloner
// means the voice service is not configured and every call fails upstream.
func NewService(cloner VoiceCloner, dir string, opts ...Option) *Service {
	if dir == "" {
		dir = os.TempDir()
	}
	s := &Service{
		cloner:   cloner,
		dir:      dir,
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Configured reports whether a voice collaborator is available.
func (s *Service) Configured() bool {
	return s.cloner != nil
}

// Repair clones a voice from sample and streams text spoken in that voice
// into w. The temporary upload and the cloned voice are released on every
// path.
func (s *Service) Repair(ctx context.Context, sample io.Reader, filename, text string, w io.Writer) (int64, error) {
	if s.cloner == nil {
		return 0, fmt.Errorf("voice service not configured: %w", domain.ErrUpstream)
	}
	text = strings.TrimSpace(text)
	if sample == nil || text == "" {
		return 0, fmt.Errorf("audio and fluentText are required: %w", domain.ErrValidation)
	}

	path, err := s.spool(sample, filename)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove upload", "path", path, "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	name := "repair-" + uuid.NewString()
	start := time.Now()
	voiceID, err := s.cloner.CloneVoice(ctx, name, f, filepath.Base(filename))
	s.record(ctx, start, err)
	if err != nil {
		slog.Error("Voice clone failed", "error", err)
		return 0, fmt.Errorf("clone voice: %w: %w", domain.ErrUpstream, err)
	}
	defer s.deleteVoice(ctx, voiceID)

	start = time.Now()
	n, err := s.cloner.Synthesize(ctx, voiceID, text, w)
	s.record(ctx, start, err)
	if err != nil {
		slog.Error("Speech synthesis failed", "voice_id", voiceID, "bytes_written", n, "error", err)
		return n, fmt.Errorf("synthesize: %w: %w", domain.ErrUpstream, err)
	}

	slog.Info("Repair audio streamed", "voice_id", voiceID, "bytes", n)
	return n, nil
}

// spool copies the upload to a uniquely named file under the upload dir.
func (s *Service) spool(sample io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.dir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(sample, s.maxBytes+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("write upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("write upload: %w", closeErr)
	case n == 0:
		err = fmt.Errorf("audio sample is empty: %w", domain.ErrValidation)
	case n > s.maxBytes:
		err = fmt.Errorf("audio sample exceeds %d bytes: %w", s.maxBytes, domain.ErrValidation)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// deleteVoice runs detached from ctx so the clone is removed even when the
// request deadline already expired.
func (s *Service) deleteVoice(ctx context.Context, voiceID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.cloner.DeleteVoice(ctx, voiceID); err != nil {
		slog.Warn("Failed to delete cloned voice", "voice_id", voiceID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, start time.Time, err error) {
	if s.recorder != nil {
		s.recorder.RecordCollaboratorCall(ctx, "voice", time.Since(start).Seconds(), err != nil)
	}
}
