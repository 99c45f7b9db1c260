package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
)

type memIdentities struct {
	mu   sync.Mutex
	rows map[string]models.Credential
	err  error
}

func newMemIdentities() *memIdentities {
	return &memIdentities{rows: map[string]models.Credential{}}
}

func (m *memIdentities) Create(_ context.Context, cred models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Email == cred.Email {
			return repository.ErrEmailTaken
		}
	}
	m.rows[cred.ID] = cred
	return nil
}

func (m *memIdentities) GetByID(_ context.Context, id string) (models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Credential{}, m.err
	}
	row, ok := m.rows[id]
	if !ok {
		return models.Credential{}, repository.ErrIdentityNotFound
	}
	return row, nil
}

func (m *memIdentities) FindByEmail(_ context.Context, email string) (models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Credential{}, m.err
	}
	for _, row := range m.rows {
		if row.Email == email {
			return row, nil
		}
	}
	return models.Credential{}, repository.ErrIdentityNotFound
}

func (m *memIdentities) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrIdentityNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memIdentities) UpdatePasswordHash(_ context.Context, id string, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return repository.ErrIdentityNotFound
	}
	row.PasswordHash = hash
	m.rows[id] = row
	return nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[string]models.Session{}}
}

func (m *memSessions) Create(_ context.Context, s models.Session, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt = time.Now()
	s.LastSeenAt = s.CreatedAt
	m.rows[s.ID] = s
	if keep <= 0 {
		return 0, nil
	}

	var mine []models.Session
	for _, row := range m.rows {
		if row.UserID == s.UserID {
			mine = append(mine, row)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].LastSeenAt.After(mine[j].LastSeenAt) })
	var pruned int64
	for i := keep; i < len(mine); i++ {
		delete(m.rows, mine[i].ID)
		pruned++
	}
	return pruned, nil
}

func (m *memSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return row, nil
}

func (m *memSessions) FindByRefreshHash(_ context.Context, hash []byte) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if string(row.RefreshTokenHash) == string(hash) {
			return row, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (m *memSessions) Rotate(_ context.Context, id string, hash []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	row.RefreshTokenHash = hash
	row.ExpiresAt = expiresAt
	m.rows[id] = row
	return nil
}

func (m *memSessions) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memSessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, row := range m.rows {
		if row.UserID == userID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) CountByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memSessions) Touch(_ context.Context, id string, ip, userAgent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	row.IPAddress = ip
	row.UserAgent = userAgent
	m.rows[id] = row
	return nil
}

func (m *memSessions) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, row := range m.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AuthEvent
	subs   []func(models.AuthEvent)
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.AuthEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	subs := append([]func(models.AuthEvent){}, p.subs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

func (p *recordingPublisher) Subscribe(fn func(models.AuthEvent)) func() {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
	return func() {}
}

func (p *recordingPublisher) types() []models.AuthEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.AuthEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type memStorage struct {
	mu      sync.Mutex
	rows    map[string]models.AuthSession
	loadErr error
}

func newMemStorage() *memStorage {
	return &memStorage{rows: map[string]models.AuthSession{}}
}

func (m *memStorage) Load(_ context.Context, key string) (*models.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	row, ok := m.rows[key]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memStorage) Save(_ context.Context, key string, s models.AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[key] = s
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, key)
	return nil
}
