package session

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

// DefaultSessionTTL is how long an idle setup session is kept.
const DefaultSessionTTL = 24 * time.Hour

// Store persists setup conversations keyed by an opaque session ID.
type Store interface {
	Get(ctx context.Context, id string) (models.SetupSession, error)
	Save(ctx context.Context, s models.SetupSession) error
	Delete(ctx context.Context, id string) error
}

type memoryItem struct {
	session   models.SetupSession
	expiresAt time.Time
}

// MemoryStore is a process-local Store with idle expiry.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl takes DefaultSessionTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{ttl: ttl, items: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (models.SetupSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return models.SetupSession{}, ErrSessionNotFound
	}
	if m.now().After(item.expiresAt) {
		delete(m.items, id)
		return models.SetupSession{}, ErrSessionNotFound
	}
	return cloneSession(item.session), nil
}

func (m *MemoryStore) Save(ctx context.Context, s models.SetupSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ID] = memoryItem{session: cloneSession(s), expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func cloneSession(s models.SetupSession) models.SetupSession {
	msgs := make([]models.ChatMessage, len(s.Messages))
	copy(msgs, s.Messages)
	s.Messages = msgs
	return s
}

// NewSetupSession builds an empty session for studyID with a fresh ID.
func NewSetupSession(id, studyID string, now time.Time) models.SetupSession {
	return models.SetupSession{
		ID:        id,
		StudyID:   studyID,
		Messages:  []models.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
