package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kzh_notifications_created_total",
			Help: "Total notifications persisted by event type.",
		},
		[]string{"event_type"},
	)
	fanoutFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kzh_notification_fanout_failures_total",
			Help: "Total per-recipient notification inserts that failed, by event type.",
		},
		[]string{"event_type"},
	)
	notificationsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kzh_notifications_suppressed_total",
			Help: "Entities skipped because a notification was issued within the cooldown.",
		},
		[]string{"event_type"},
	)
	notificationsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kzh_notifications_cleaned_total",
			Help: "Total read notifications removed by retention cleanup.",
		},
	)
)
