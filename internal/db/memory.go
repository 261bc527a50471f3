package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickwarner/civicreport/internal/models"
)

// MemoryStore is a thread-safe in-process Store used by tests and by local
// runs with POSTGRES_DSN=memory.
type MemoryStore struct {
	mu     sync.RWMutex
	issues map[int64]models.IssueReport
	users  map[int64]models.User
	nextID struct{ issue, user int64 }
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues: make(map[int64]models.IssueReport),
		users:  make(map[int64]models.User),
		now:    time.Now,
	}
}

// withReporter fills the denormalized reporter fields. Callers hold mu.
func (m *MemoryStore) withReporter(r models.IssueReport) models.IssueReport {
	r.Reporter, r.ReporterEmail = "", ""
	if r.ReporterID != nil {
		if u, ok := m.users[*r.ReporterID]; ok {
			r.Reporter = u.Username
			r.ReporterEmail = u.Email
		}
	}
	return r
}

func (m *MemoryStore) CreateIssue(_ context.Context, r *models.IssueReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID.issue++
	r.ID = m.nextID.issue
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	if r.Severity == "" {
		r.Severity = models.SeverityMedium
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	m.issues[r.ID] = *r
	*r = m.withReporter(*r)
	return nil
}

func (m *MemoryStore) GetIssue(_ context.Context, id int64) (models.IssueReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.issues[id]
	if !ok {
		return models.IssueReport{}, models.ErrNotFound
	}
	return m.withReporter(r), nil
}

func (m *MemoryStore) matching(f models.IssueFilter) []models.IssueReport {
	m.mu.RLock()
	out := make([]models.IssueReport, 0, len(m.issues))
	for _, r := range m.issues {
		r = m.withReporter(r)
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryStore) ListIssues(_ context.Context, f models.IssueFilter) (models.Page, error) {
	all := m.matching(f)
	f = f.Normalize()
	start := f.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PerPage
	if end > len(all) {
		end = len(all)
	}
	return models.NewPage(all[start:end], len(all), f), nil
}

func (m *MemoryStore) AllIssues(_ context.Context, f models.IssueFilter) ([]models.IssueReport, error) {
	return m.matching(f), nil
}

func (m *MemoryStore) UpdateIssueStatus(_ context.Context, id int64, status models.Status) (models.IssueReport, error) {
	if !status.Valid() {
		return models.IssueReport{}, models.ErrInvalidStatus
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.issues[id]
	if !ok {
		return models.IssueReport{}, models.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = m.now().UTC()
	m.issues[id] = r
	return m.withReporter(r), nil
}

func (m *MemoryStore) AttachMedia(_ context.Context, id int64, kind models.MediaKind, ref models.MediaRef, annotated string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.issues[id]
	if !ok {
		return models.ErrNotFound
	}
	switch kind {
	case models.MediaImage:
		r.Image = &ref
		r.AnnotatedImage = annotated
	case models.MediaVideo:
		r.Video = &ref
		r.AnnotatedVideo = annotated
	}
	r.UpdatedAt = m.now().UTC()
	m.issues[id] = r
	return nil
}

func (m *MemoryStore) DeleteIssue(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.issues, id)
	return nil
}

func (m *MemoryStore) CountByReporter(_ context.Context, reporterID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.issues {
		if r.ReporterID != nil && *r.ReporterID == reporterID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CloseResolvedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.now().UTC()
	for id, r := range m.issues {
		if r.Status == models.StatusResolved && r.UpdatedAt.Before(cutoff) {
			r.Status = models.StatusClosed
			r.UpdatedAt = now
			m.issues[id] = r
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return models.ErrDuplicateUsername
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return models.ErrDuplicateEmail
		}
	}
	m.nextID.user++
	u.ID = m.nextID.user
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now().UTC()
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id int64) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) findUser(match func(models.User) bool) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, models.ErrNotFound
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	return m.findUser(func(u models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	return m.findUser(func(u models.User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *MemoryStore) UpdateUser(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return models.ErrNotFound
	}
	for id, existing := range m.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return models.ErrDuplicateEmail
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) TopReporters(_ context.Context, limit int) ([]models.ReporterCount, error) {
	m.mu.RLock()
	counts := make(map[int64]int)
	for _, r := range m.issues {
		if r.ReporterID != nil {
			counts[*r.ReporterID]++
		}
	}
	out := make([]models.ReporterCount, 0, len(counts))
	for id, n := range counts {
		u := m.users[id]
		out = append(out, models.ReporterCount{UserID: id, Username: u.Username, Email: u.Email, Count: n})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Count > out[j].Count
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
