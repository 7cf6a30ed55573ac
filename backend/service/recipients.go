package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

// Subject is the entity a notification is raised for. Exactly one field is set
// for expiry and payment events; custom events need neither.
type Subject struct {
	Contract *model.Contract
	Document *model.Document
}

// ResolveRecipients returns the deduplicated user ids to notify for event.
// An empty result is valid. Errors only come from the store.
func ResolveRecipients(ctx context.Context, store Store, event model.Event, subject Subject) ([]int64, error) {
	var ids []int64

	switch event.Kind {
	case model.EventContractExpiry, model.EventPaymentDue:
		users, err := store.ListUsers(ctx, UserQuery{ActiveOnly: true})
		if err != nil {
			return nil, fmt.Errorf("resolve %s recipients: %w", event, err)
		}
		for _, u := range users {
			ids = append(ids, u.ID)
		}
	case model.EventDocumentExpiry:
		if subject.Document == nil {
			return nil, errors.New("resolve document_expiry recipients: no document")
		}
		// The uploader is notified even when deactivated.
		ids = append(ids, subject.Document.UploadedBy)
		admins, err := store.ListUsers(ctx, UserQuery{ActiveOnly: true, Role: model.RoleAdmin})
		if err != nil {
			return nil, fmt.Errorf("resolve %s recipients: %w", event, err)
		}
		for _, u := range admins {
			ids = append(ids, u.ID)
		}
	case model.EventCustom:
		ids = append(ids, event.Recipients...)
	default:
		return nil, fmt.Errorf("resolve recipients: unknown event kind %d", event.Kind)
	}

	return uniqueIDs(ids), nil
}

// uniqueIDs keeps the first occurrence of each non-zero id.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
