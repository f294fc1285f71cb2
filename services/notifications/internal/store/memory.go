package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/learning-platform/services/notifications/internal/domain"
)

type recipientKey struct {
	notificationID string
	userID         string
}

// InMemoryStore is a development-only implementation.
type InMemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]domain.Notification
	readAt        map[recipientKey]*time.Time
	byUser        map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		notifications: make(map[string]domain.Notification),
		readAt:        make(map[recipientKey]*time.Time),
		byUser:        make(map[string][]string),
	}
}

func (s *InMemoryStore) Create(_ context.Context, n domain.Notification, recipients []string) (domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
	for _, uid := range recipients {
		k := recipientKey{n.ID, uid}
		if _, dup := s.readAt[k]; dup {
			continue
		}
		s.readAt[k] = nil
		s.byUser[uid] = append(s.byUser[uid], n.ID)
	}
	return n, nil
}

func (s *InMemoryStore) ListForUser(_ context.Context, userID string, limit int, unreadOnly bool) ([]domain.InboxItem, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	items := make([]domain.InboxItem, 0, len(s.byUser[userID]))
	for _, id := range s.byUser[userID] {
		read := s.readAt[recipientKey{id, userID}]
		if unreadOnly && read != nil {
			continue
		}
		items = append(items, domain.InboxItem{Notification: s.notifications[id], UserID: userID, ReadAt: read})
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *InMemoryStore) MarkRead(_ context.Context, userID, notificationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recipientKey{notificationID, userID}
	read, ok := s.readAt[k]
	if !ok {
		return ErrNotFound
	}
	if read == nil {
		t := at.UTC()
		s.readAt[k] = &t
	}
	return nil
}

func (s *InMemoryStore) UnreadCount(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.byUser[userID] {
		if s.readAt[recipientKey{id, userID}] == nil {
			n++
		}
	}
	return n, nil
}

// InMemoryDirectory maps user ids to roles.
type InMemoryDirectory struct {
	mu    sync.RWMutex
	roles map[string]string
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{roles: make(map[string]string)}
}

func (d *InMemoryDirectory) Put(userID, role string) {
	d.mu.Lock()
	d.roles[userID] = role
	d.mu.Unlock()
}

func (d *InMemoryDirectory) UserIDs(_ context.Context, role string) ([]string, error) {
	d.mu.RLock()
	out := make([]string, 0, len(d.roles))
	for uid, r := range d.roles {
		if role == "" || r == role {
			out = append(out, uid)
		}
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}
