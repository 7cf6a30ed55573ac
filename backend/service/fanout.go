package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
)

// Message is the rendered title and body of a notification.
type Message struct {
	Title string
	Body  string
}

// Emit persists one notification per recipient and returns how many were created.
// Inserts are independent: a failed recipient is logged and the rest are still
// attempted. The returned error joins every per-recipient failure.
func Emit(ctx context.Context, store Store, event model.Event, related model.Related, recipients []int64, msg Message, now time.Time) (int, error) {
	related = scopeRelated(event, related)
	tag := event.Tag()

	created := 0
	var errs []error
	for _, userID := range recipients {
		n := &model.Notification{
			UserID:            userID,
			Title:             msg.Title,
			Message:           msg.Body,
			Type:              tag,
			RelatedContractID: related.ContractID,
			RelatedDocumentID: related.DocumentID,
			CreatedAt:         now,
		}
		if err := store.CreateNotification(ctx, n); err != nil {
			logger.Warn(ctx, "failed to create notification", "event_type", tag, "user_id", userID, "error", err)
			fanoutFailuresTotal.WithLabelValues(metricLabel(event)).Inc()
			errs = append(errs, fmt.Errorf("notify user %d: %w", userID, err))
			continue
		}
		created++
	}

	notificationsCreatedTotal.WithLabelValues(metricLabel(event)).Add(float64(created))
	return created, errors.Join(errs...)
}

// scopeRelated keeps only the reference that matches the event kind.
func scopeRelated(event model.Event, related model.Related) model.Related {
	switch {
	case event.ContractScoped():
		return model.Related{ContractID: related.ContractID}
	case event.Kind == model.EventDocumentExpiry:
		return model.Related{DocumentID: related.DocumentID}
	default:
		return related
	}
}

func metricLabel(event model.Event) string {
	if event.Kind == model.EventCustom {
		return "custom"
	}
	return event.Tag()
}
