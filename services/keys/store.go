package keys

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEmptyProvider = errors.New("provider name is required")
	ErrEmptyKey      = errors.New("key is required")
)

// Store holds provider credentials in memory. Values never leave the
// process through List.
type Store struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewStore creates a store seeded with the given provider -> key pairs.
// Empty keys are skipped.
func NewStore(seed map[string]string) *Store {
	s := &Store{keys: make(map[string]string)}
	for provider, key := range seed {
		_ = s.Set(provider, key)
	}
	return s
}

// Set stores or replaces the credential for provider.
func (s *Store) Set(provider, key string) error {
	provider = normalize(provider)
	if provider == "" {
		return ErrEmptyProvider
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	s.keys[provider] = key
	s.mu.Unlock()
	return nil
}

// Get returns the credential for provider.
func (s *Store) Get(provider string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[normalize(provider)]
	return key, ok
}

// Delete removes the credential for provider.
func (s *Store) Delete(provider string) {
	s.mu.Lock()
	delete(s.keys, normalize(provider))
	s.mu.Unlock()
}

// List returns the providers with a stored credential, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providers := make([]string, 0, len(s.keys))
	for p := range s.keys {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
