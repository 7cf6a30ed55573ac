package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

// MemoryStore is an in-memory Store. It backs tests and the "memory" database driver.
type MemoryStore struct {
	mu            sync.RWMutex
	contracts     map[int64]*model.Contract
	documents     map[int64]*model.Document
	users         map[int64]*model.User
	notifications map[int64]*model.Notification
	nextID        int64
	now           func() time.Time
}

var (
	_ Store    = (*MemoryStore)(nil)
	_ Sessions = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	slog.Info("memory store initialized")
	return &MemoryStore{
		contracts:     make(map[int64]*model.Contract),
		documents:     make(map[int64]*model.Document),
		users:         make(map[int64]*model.User),
		notifications: make(map[int64]*model.Notification),
		now:           now,
	}
}

// Session implements Sessions; the memory store has nothing to release.
func (s *MemoryStore) Session(ctx context.Context) (Store, func(), error) {
	return s, func() {}, nil
}

// Must be called with lock held
func (s *MemoryStore) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) ListContracts(ctx context.Context, q ContractQuery) ([]model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Contract, 0)
	for _, c := range s.contracts {
		if q.Matches(c) {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return Window(result, q.Limit, q.Offset), nil
}

func (s *MemoryStore) GetContract(ctx context.Context, id int64) (model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return model.Contract{}, ErrNotFound
	}
	return *c, nil
}

func (s *MemoryStore) CreateContract(ctx context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.newID()
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	stored := *c
	s.contracts[c.ID] = &stored
	return nil
}

func (s *MemoryStore) UpdateContract(ctx context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = s.now()
	stored := *c
	s.contracts[c.ID] = &stored
	return nil
}

func (s *MemoryStore) DeleteContract(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[id]; !ok {
		return ErrNotFound
	}
	delete(s.contracts, id)
	// Mirror ON DELETE SET NULL.
	for _, d := range s.documents {
		if d.ContractID != nil && *d.ContractID == id {
			d.ContractID = nil
		}
	}
	for _, n := range s.notifications {
		if n.RelatedContractID != nil && *n.RelatedContractID == id {
			n.RelatedContractID = nil
		}
	}
	return nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, q DocumentQuery) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Document, 0)
	for _, d := range s.documents {
		if q.Matches(d) {
			result = append(result, cloneDocument(d))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return Window(result, q.Limit, q.Offset), nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id int64) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return model.Document{}, ErrNotFound
	}
	return cloneDocument(d), nil
}

func (s *MemoryStore) CreateDocument(ctx context.Context, d *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = s.newID()
	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	stored := cloneDocument(d)
	s.documents[d.ID] = &stored
	return nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, d *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[d.ID]; !ok {
		return ErrNotFound
	}
	d.UpdatedAt = s.now()
	stored := cloneDocument(d)
	s.documents[d.ID] = &stored
	return nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrNotFound
	}
	delete(s.documents, id)
	for _, n := range s.notifications {
		if n.RelatedDocumentID != nil && *n.RelatedDocumentID == id {
			n.RelatedDocumentID = nil
		}
	}
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, q UserQuery) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.User, 0)
	for _, u := range s.users {
		if q.Matches(u) {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return *u, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return *u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.newID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

// ListNotifications returns matches newest first.
func (s *MemoryStore) ListNotifications(ctx context.Context, q NotificationQuery) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Notification, 0)
	for _, n := range s.notifications {
		if q.Matches(n) {
			result = append(result, *n)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return Window(result, q.Limit, q.Offset), nil
}

func (s *MemoryStore) GetNotification(ctx context.Context, id int64) (model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, ErrNotFound
	}
	return *n, nil
}

func (s *MemoryStore) ExistsNotification(ctx context.Context, q NotificationQuery) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if q.Matches(n) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = s.newID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	stored := *n
	s.notifications[n.ID] = &stored
	return nil
}

func (s *MemoryStore) SetNotificationRead(ctx context.Context, id int64, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = read
	return nil
}

func (s *MemoryStore) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) DeleteNotification(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[id]; !ok {
		return ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

func (s *MemoryStore) DeleteNotifications(ctx context.Context, q NotificationQuery) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, n := range s.notifications {
		if q.Matches(n) {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored notifications
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

func cloneDocument(d *model.Document) model.Document {
	out := *d
	out.Tags = append([]string(nil), d.Tags...)
	if d.ExpiryDate != nil {
		exp := *d.ExpiryDate
		out.ExpiryDate = &exp
	}
	return out
}
