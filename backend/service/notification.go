package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
)

// ErrInvalidInput indicates a caller supplied arguments the service cannot act on.
var ErrInvalidInput = errors.New("invalid input")

// Options tunes the notification policy.
type Options struct {
	Cooldown           time.Duration
	ContractStatuses   []model.ContractStatus
	PaymentWindowStart int
	PaymentWindowEnd   int
	Location           *time.Location
	Clock              func() time.Time
	Currency           string
}

// DefaultOptions returns the standard policy: seven day cooldown, payment
// reminders on days 5 through 10, UTC calendar.
func DefaultOptions() Options {
	return Options{
		Cooldown:           7 * 24 * time.Hour,
		ContractStatuses:   model.ExpiryEligibleStatuses,
		PaymentWindowStart: 5,
		PaymentWindowEnd:   10,
		Location:           time.UTC,
		Clock:              time.Now,
		Currency:           "KZT",
	}
}

// CustomNotification is an ad-hoc notice sent to an explicit recipient list.
type CustomNotification struct {
	UserIDs    []int64 `json:"user_ids"`
	Title      string  `json:"title"`
	Message    string  `json:"message"`
	Type       string  `json:"type"`
	ContractID *int64  `json:"related_contract_id,omitempty"`
	DocumentID *int64  `json:"related_document_id,omitempty"`
}

// NotificationService runs the scan, dedup, resolve and emit steps for each
// event type. It keeps no state between calls; every method works against the
// store handle it is given.
type NotificationService struct {
	opts   Options
	render *Renderer
}

func NewNotificationService(opts Options) *NotificationService {
	def := DefaultOptions()
	if opts.Cooldown <= 0 {
		opts.Cooldown = def.Cooldown
	}
	if len(opts.ContractStatuses) == 0 {
		opts.ContractStatuses = def.ContractStatuses
	}
	if opts.PaymentWindowStart == 0 {
		opts.PaymentWindowStart = def.PaymentWindowStart
	}
	if opts.PaymentWindowEnd == 0 {
		opts.PaymentWindowEnd = def.PaymentWindowEnd
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	return &NotificationService{
		opts:   opts,
		render: NewRenderer(opts.Currency),
	}
}

// Today returns the current calendar date in the configured location.
func (s *NotificationService) Today() time.Time {
	return model.DateOf(s.opts.Clock(), s.opts.Location)
}

// Renderer exposes the message renderer for callers composing their own notices.
func (s *NotificationService) Renderer() *Renderer {
	return s.render
}

// NotifyContractExpiry notifies every active user about contracts ending within
// days. Contracts notified inside the cooldown are skipped.
func (s *NotificationService) NotifyContractExpiry(ctx context.Context, store Store, days int) (int, error) {
	now := s.opts.Clock()
	today := model.DateOf(now, s.opts.Location)

	contracts, err := ScanContracts(ctx, store, today, days, s.opts.ContractStatuses)
	if err != nil {
		return 0, err
	}

	since := CooldownStart(now, s.opts.Cooldown)
	created := 0
	for i := range contracts {
		c := &contracts[i]
		n, err := s.notifyOne(ctx, store, model.ContractExpiry, model.RelatedContract(c.ID), Subject{Contract: c}, since, now,
			func() Message { return s.render.ContractExpiry(c, model.DaysBetween(today, c.EndDate)) })
		created += n
		if err != nil {
			return created, err
		}
	}

	logger.Info(ctx, fmt.Sprintf("created %d contract expiry notifications", created), "lookahead_days", days)
	return created, nil
}

// NotifyDocumentExpiry notifies uploaders and active admins about documents
// expiring within days.
func (s *NotificationService) NotifyDocumentExpiry(ctx context.Context, store Store, days int) (int, error) {
	now := s.opts.Clock()
	today := model.DateOf(now, s.opts.Location)

	documents, err := ScanDocuments(ctx, store, today, days)
	if err != nil {
		return 0, err
	}

	since := CooldownStart(now, s.opts.Cooldown)
	created := 0
	for i := range documents {
		d := &documents[i]
		n, err := s.notifyOne(ctx, store, model.DocumentExpiry, model.RelatedDocument(d.ID), Subject{Document: d}, since, now,
			func() Message { return s.render.DocumentExpiry(d, model.DaysBetween(today, *d.ExpiryDate)) })
		created += n
		if err != nil {
			return created, err
		}
	}

	logger.Info(ctx, fmt.Sprintf("created %d document expiry notifications", created), "lookahead_days", days)
	return created, nil
}

// NotifyPaymentDue reminds active users about rent for in-term active contracts.
// It only acts while today falls inside the payment window, and a contract is
// reminded at most once per calendar month.
func (s *NotificationService) NotifyPaymentDue(ctx context.Context, store Store) (int, error) {
	now := s.opts.Clock()
	today := model.DateOf(now, s.opts.Location)

	if day := today.Day(); day < s.opts.PaymentWindowStart || day > s.opts.PaymentWindowEnd {
		logger.Debug(ctx, "outside payment reminder window", "day", day)
		return 0, nil
	}

	contracts, err := store.ListContracts(ctx, ContractQuery{
		Statuses: []model.ContractStatus{model.StatusActive},
		StartTo:  &today,
		EndFrom:  &today,
	})
	if err != nil {
		return 0, fmt.Errorf("list in-term contracts: %w", err)
	}

	since := model.FirstOfMonth(now, s.opts.Location)
	created := 0
	for i := range contracts {
		c := &contracts[i]
		if err := c.Validate(); err != nil {
			logger.Warn(ctx, "skipping contract with invalid state", "contract_id", c.ID, "error", err)
			continue
		}
		if !c.InTerm(today) {
			continue
		}
		n, err := s.notifyOne(ctx, store, model.PaymentDue, model.RelatedContract(c.ID), Subject{Contract: c}, since, now,
			func() Message { return s.render.PaymentDue(c, s.opts.PaymentWindowEnd) })
		created += n
		if err != nil {
			return created, err
		}
	}

	logger.Info(ctx, fmt.Sprintf("created %d payment reminders", created))
	return created, nil
}

// notifyOne runs dedup, resolve and emit for a single entity. Store errors from
// dedup or resolution are returned; emit failures are logged and counted as partial.
func (s *NotificationService) notifyOne(ctx context.Context, store Store, event model.Event, related model.Related, subject Subject, since, now time.Time, msg func() Message) (int, error) {
	notified, err := AlreadyNotified(ctx, store, event, related, since)
	if err != nil {
		return 0, err
	}
	if notified {
		notificationsSuppressedTotal.WithLabelValues(metricLabel(event)).Inc()
		return 0, nil
	}

	recipients, err := ResolveRecipients(ctx, store, event, subject)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		logger.Debug(ctx, "no recipients", "event_type", event.Tag())
		return 0, nil
	}

	n, err := Emit(ctx, store, event, related, recipients, msg(), now)
	if err != nil {
		logger.Warn(ctx, "partial notification fanout", "event_type", event.Tag(), "created", n, "recipients", len(recipients), "error", err)
	}
	return n, nil
}

// SendCustom creates one notification per listed user, skipping scan, dedup and
// recipient resolution.
func (s *NotificationService) SendCustom(ctx context.Context, store Store, in CustomNotification) (int, error) {
	title := strings.TrimSpace(in.Title)
	body := strings.TrimSpace(in.Message)
	if title == "" || body == "" {
		return 0, fmt.Errorf("%w: title and message are required", ErrInvalidInput)
	}

	event := model.Custom(in.Type, in.UserIDs...)
	recipients, err := ResolveRecipients(ctx, store, event, Subject{})
	if err != nil {
		return 0, err
	}

	related := model.Related{ContractID: in.ContractID, DocumentID: in.DocumentID}
	return Emit(ctx, store, event, related, recipients, Message{Title: title, Body: body}, s.opts.Clock())
}

// CleanupOldNotifications deletes read notifications created more than daysOld
// days ago and returns how many were removed.
func (s *NotificationService) CleanupOldNotifications(ctx context.Context, store Store, daysOld int) (int64, error) {
	if daysOld < 0 {
		return 0, fmt.Errorf("%w: negative retention %d", ErrInvalidInput, daysOld)
	}

	cutoff := s.opts.Clock().AddDate(0, 0, -daysOld)
	read := true
	deleted, err := store.DeleteNotifications(ctx, NotificationQuery{Read: &read, CreatedBefore: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}

	notificationsCleanedTotal.Add(float64(deleted))
	logger.Info(ctx, fmt.Sprintf("deleted %d old notifications", deleted), "days_old", daysOld)
	return deleted, nil
}
