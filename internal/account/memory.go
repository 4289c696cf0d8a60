package account

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. Used by tests
// and the smoke tool; production deployments use the Postgres store.
type InMemory struct {
	mu      sync.RWMutex
	accts   map[string]*Account // login -> account
	byToken map[string]string   // session token -> login
	writes  int
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		accts:   make(map[string]*Account),
		byToken: make(map[string]string),
	}
}

// Writes reports how many mutating operations the store has performed.
// Exposed so tests can assert reconciliation idempotence.
func (s *InMemory) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *InMemory) GetByLogin(ctx context.Context, login string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accts[login]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAccount(a), nil
}

func (s *InMemory) GetByToken(ctx context.Context, token string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token == "" {
		return nil, ErrNotFound
	}
	login, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAccount(s.accts[login]), nil
}

func (s *InMemory) Create(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := copyAccount(a)
	stored.Grants = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.accts[stored.Login] = stored
	if stored.SessionToken != "" {
		s.byToken[stored.SessionToken] = stored.Login
	}
	s.writes++
	return nil
}

func (s *InMemory) SetSuperUser(ctx context.Context, login string, super bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accts[login]
	if !ok {
		return ErrNotFound
	}
	a.SuperUser = super
	s.writes++
	return nil
}

func (s *InMemory) GrantAccess(ctx context.Context, login string, role Role, resourceIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accts[login]
	if !ok {
		return ErrNotFound
	}
	for _, id := range resourceIDs {
		if a.Covers(id) {
			continue
		}
		a.Grants = append(a.Grants, AccessGrant{
			Login:      login,
			ResourceID: id,
			Role:       role,
			CreatedAt:  time.Now().UTC(),
		})
		s.writes++
	}
	return nil
}

func (s *InMemory) ListAccessForResource(ctx context.Context, resourceID string) (map[string]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Role)
	for login, a := range s.accts {
		for _, g := range a.Grants {
			if g.ResourceID == resourceID {
				out[login] = g.Role
			}
		}
	}
	return out, nil
}

func copyAccount(a *Account) *Account {
	out := *a
	out.Grants = make([]AccessGrant, len(a.Grants))
	copy(out.Grants, a.Grants)
	return &out
}
