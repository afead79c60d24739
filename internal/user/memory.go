package user

import (
	"context"
	"sync"
	"time"
)

type resetEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is an in-process CredentialStore. It backs development runs
// without a database and the auth tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string // normalized email -> id
	resets  map[string]resetEntry
	now     func() time.Time
}

var _ CredentialStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		resets:  make(map[string]resetEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.copyOf(id), nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.byID[id]; !ok {
		return nil, ErrNotFound
	}
	return m.copyOf(id), nil
}

func (m *MemoryStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := NormalizeEmail(u.Email)
	if _, exists := m.byEmail[email]; exists {
		return ErrDuplicateEmail
	}

	now := m.now().UTC()
	stored := *u
	stored.Email = email
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.byID[stored.ID] = &stored
	m.byEmail[email] = stored.ID

	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (m *MemoryStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	u.LastLogin = &at
	u.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) StoreResetToken(_ context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = NormalizeEmail(email)
	if _, ok := m.byEmail[email]; !ok {
		return nil
	}
	m.resets[email] = resetEntry{token: token, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) ValidateResetToken(_ context.Context, email, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.resets[NormalizeEmail(email)]
	if !ok {
		return false, nil
	}
	return entry.token == token && m.now().Before(entry.expiresAt), nil
}

func (m *MemoryStore) ClearResetToken(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.resets, NormalizeEmail(email))
	return nil
}

func (m *MemoryStore) ConsumeResetToken(_ context.Context, email, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = NormalizeEmail(email)
	entry, ok := m.resets[email]
	if !ok || entry.token != token || !m.now().Before(entry.expiresAt) {
		return false, nil
	}
	delete(m.resets, email)
	return true, nil
}

func (m *MemoryStore) UpdatePassword(_ context.Context, email, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return ErrNotFound
	}
	u := m.byID[id]
	u.PasswordHash = passwordHash
	u.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) PurgeExpiredResetTokens(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for email, entry := range m.resets {
		if !now.Before(entry.expiresAt) {
			delete(m.resets, email)
			n++
		}
	}
	return n, nil
}

// SetRole applies an administrative role change.
func (m *MemoryStore) SetRole(id string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

// SetActive toggles the account's active flag.
func (m *MemoryStore) SetActive(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

// callers must hold mu
func (m *MemoryStore) copyOf(id string) *User {
	u := *m.byID[id]
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	return &u
}
