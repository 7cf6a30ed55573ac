package service

import (
	"context"
	"fmt"
	"time"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

// AlreadyNotified reports whether a notification of the event's type was
// already created for the related entity at or after since. The key is the
// type tag plus the entity id; the lookahead tier plays no part.
func AlreadyNotified(ctx context.Context, store Store, event model.Event, related model.Related, since time.Time) (bool, error) {
	q := NotificationQuery{CreatedFrom: &since}

	switch event.Kind {
	case model.EventContractExpiry, model.EventPaymentDue:
		if related.ContractID == nil {
			return false, fmt.Errorf("dedup %s: missing contract reference", event)
		}
		q.RelatedContractID = related.ContractID
	case model.EventDocumentExpiry:
		if related.DocumentID == nil {
			return false, fmt.Errorf("dedup %s: missing document reference", event)
		}
		q.RelatedDocumentID = related.DocumentID
	case model.EventCustom:
		if related.ContractID == nil && related.DocumentID == nil {
			return false, nil
		}
		q.RelatedContractID = related.ContractID
		q.RelatedDocumentID = related.DocumentID
	default:
		return false, fmt.Errorf("dedup: unknown event kind %d", event.Kind)
	}
	q.Type = event.Tag()

	exists, err := store.ExistsNotification(ctx, q)
	if err != nil {
		return false, fmt.Errorf("dedup %s: %w", event, err)
	}
	return exists, nil
}

// CooldownStart returns the earliest creation time that still counts as recent.
func CooldownStart(now time.Time, cooldown time.Duration) time.Time {
	return now.Add(-cooldown)
}
