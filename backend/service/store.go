package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable indicates the entity store could not be reached.
	ErrStoreUnavailable = errors.New("entity store unavailable")
)

// ContractQuery filters contracts. Set fields are combined with AND; date bounds are inclusive.
type ContractQuery struct {
	Statuses []model.ContractStatus
	EndFrom  *time.Time
	EndTo    *time.Time
	StartTo  *time.Time
	Limit    int
	Offset   int
}

// Matches reports whether c satisfies the query predicate.
func (q ContractQuery) Matches(c *model.Contract) bool {
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, c.Status) {
		return false
	}
	if q.EndFrom != nil && c.EndDate.Before(*q.EndFrom) {
		return false
	}
	if q.EndTo != nil && c.EndDate.After(*q.EndTo) {
		return false
	}
	if q.StartTo != nil && c.StartDate.After(*q.StartTo) {
		return false
	}
	return true
}

// DocumentQuery filters documents. Any expiry bound excludes documents without an expiry date.
type DocumentQuery struct {
	ExpiryFrom *time.Time
	ExpiryTo   *time.Time
	ContractID *int64
	Search     string
	Tags       []string
	Limit      int
	Offset     int
}

// Matches reports whether d satisfies the query predicate.
func (q DocumentQuery) Matches(d *model.Document) bool {
	if q.ExpiryFrom != nil || q.ExpiryTo != nil {
		if d.ExpiryDate == nil {
			return false
		}
		if q.ExpiryFrom != nil && d.ExpiryDate.Before(*q.ExpiryFrom) {
			return false
		}
		if q.ExpiryTo != nil && d.ExpiryDate.After(*q.ExpiryTo) {
			return false
		}
	}
	if q.ContractID != nil && (d.ContractID == nil || *d.ContractID != *q.ContractID) {
		return false
	}
	if s := strings.TrimSpace(q.Search); s != "" && !strings.Contains(strings.ToLower(d.Title), strings.ToLower(s)) {
		return false
	}
	for _, tag := range q.Tags {
		if !d.HasTag(tag) {
			return false
		}
	}
	return true
}

// UserQuery filters users.
type UserQuery struct {
	ActiveOnly bool
	Role       string
	IDs        []int64
}

// Matches reports whether u satisfies the query predicate.
func (q UserQuery) Matches(u *model.User) bool {
	if q.ActiveOnly && !u.Active {
		return false
	}
	if q.Role != "" && u.Role != q.Role {
		return false
	}
	if len(q.IDs) > 0 && !containsID(q.IDs, u.ID) {
		return false
	}
	return true
}

// NotificationQuery filters notifications. CreatedFrom is inclusive, CreatedBefore exclusive.
type NotificationQuery struct {
	UserID            *int64
	Type              string
	RelatedContractID *int64
	RelatedDocumentID *int64
	CreatedFrom       *time.Time
	CreatedBefore     *time.Time
	Read              *bool
	Limit             int
	Offset            int
}

// Matches reports whether n satisfies the query predicate.
func (q NotificationQuery) Matches(n *model.Notification) bool {
	if q.UserID != nil && n.UserID != *q.UserID {
		return false
	}
	if q.Type != "" && n.Type != q.Type {
		return false
	}
	if q.RelatedContractID != nil && (n.RelatedContractID == nil || *n.RelatedContractID != *q.RelatedContractID) {
		return false
	}
	if q.RelatedDocumentID != nil && (n.RelatedDocumentID == nil || *n.RelatedDocumentID != *q.RelatedDocumentID) {
		return false
	}
	if q.CreatedFrom != nil && n.CreatedAt.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedBefore != nil && !n.CreatedAt.Before(*q.CreatedBefore) {
		return false
	}
	if q.Read != nil && n.Read != *q.Read {
		return false
	}
	return true
}

// Store is the entity store boundary: contracts, documents, users and notifications.
type Store interface {
	ListContracts(ctx context.Context, q ContractQuery) ([]model.Contract, error)
	GetContract(ctx context.Context, id int64) (model.Contract, error)
	CreateContract(ctx context.Context, c *model.Contract) error
	UpdateContract(ctx context.Context, c *model.Contract) error
	DeleteContract(ctx context.Context, id int64) error

	ListDocuments(ctx context.Context, q DocumentQuery) ([]model.Document, error)
	GetDocument(ctx context.Context, id int64) (model.Document, error)
	CreateDocument(ctx context.Context, d *model.Document) error
	UpdateDocument(ctx context.Context, d *model.Document) error
	DeleteDocument(ctx context.Context, id int64) error

	ListUsers(ctx context.Context, q UserQuery) ([]model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreateUser(ctx context.Context, u *model.User) error

	ListNotifications(ctx context.Context, q NotificationQuery) ([]model.Notification, error)
	GetNotification(ctx context.Context, id int64) (model.Notification, error)
	ExistsNotification(ctx context.Context, q NotificationQuery) (bool, error)
	CreateNotification(ctx context.Context, n *model.Notification) error
	SetNotificationRead(ctx context.Context, id int64, read bool) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)
	DeleteNotification(ctx context.Context, id int64) error
	DeleteNotifications(ctx context.Context, q NotificationQuery) (int64, error)
}

// Sessions hands out one scoped store handle. The release func must be called
// exactly once, on every exit path.
type Sessions interface {
	Session(ctx context.Context) (Store, func(), error)
}

func containsStatus(list []model.ContractStatus, s model.ContractStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// Window applies offset/limit paging to an already filtered, ordered slice.
func Window[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
