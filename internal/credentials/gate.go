package credentials

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Gate decides whether a usable API key is selected before billable calls.
type Gate interface {
	HasCredential(ctx context.Context) bool
	// RequestCredential runs the selection flow. It reports no outcome beyond
	// errors; callers treat a nil return as "a key is now selected".
	RequestCredential(ctx context.Context) error
}

// Invalidator is implemented by gates that can forget a key once a call has
// shown it to be bad. Revision changes whenever the held key does, so a key
// picked after a workflow started is not cleared by that workflow's failure.
type Invalidator interface {
	Revision() uint64
	Invalidate(rev uint64) bool
}

// Source yields the key the host currently has configured.
type Source func() string

// EnvSource reads name from the process environment on every call.
func EnvSource(name string) Source {
	return func() string {
		return os.Getenv(name)
	}
}

// Store is the process-wide key holder. The key is never verified here; the
// generation workflow is the only validator.
type Store struct {
	source Source
	logger *log.Logger

	mu       sync.RWMutex
	key      string
	rev      uint64
	rejected string
}

func NewStore(initial string, source Source) *Store {
	return &Store{
		source: source,
		logger: log.With("component", "credentials"),
		key:    strings.TrimSpace(initial),
	}
}

func (s *Store) HasCredential(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != ""
}

// RequestCredential falls back to the source only when no key is held. A
// source value equal to the last rejected key is ignored.
func (s *Store) RequestCredential(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.source == nil || s.HasCredential(ctx) {
		return nil
	}

	key := strings.TrimSpace(s.source())
	if key == "" {
		s.logger.Warn("credential source returned no key")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.key != "":
		// picked while the source was read
		return nil
	case key == s.rejected:
		s.logger.Warn("credential source still holds the rejected key")
		return nil
	}
	s.set(key)
	s.logger.Info("credential selected from source")
	return nil
}

// Select stores a key picked by the user.
func (s *Store) Select(key string) {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	s.set(key)
	s.mu.Unlock()
	s.logger.Info("credential selected", "present", key != "")
}

func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Invalidate clears the key if it is still the one held at rev.
func (s *Store) Invalidate(rev uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rev != s.rev {
		s.logger.Info("credential changed since rejection, keeping it")
		return false
	}
	if s.key != "" {
		s.rejected = s.key
	}
	s.set("")
	s.logger.Warn("credential invalidated")
	return true
}

func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

func (s *Store) set(key string) {
	s.key = key
	s.rev++
}

var (
	_ Gate        = (*Store)(nil)
	_ Invalidator = (*Store)(nil)
)
