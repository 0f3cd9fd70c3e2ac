package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PayoutsTotal sums credited amounts by transaction type
	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binarynet_payouts_amount_total",
			Help: "Total amount paid out by type",
		},
		[]string{"type"},
	)

	Placements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binarynet_placements_total",
			Help: "Total number of committed tree placements",
		},
		[]string{"action"},
	)

	InvestmentsApproved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binarynet_investments_approved_total",
			Help: "Total number of approved investments by package",
		},
		[]string{"package"},
	)

	ReferralCodesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binarynet_referral_codes_issued_total",
			Help: "Total number of referral codes issued",
		},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binarynet_notifications_dropped_total",
			Help: "Notifications dropped because the sink queue was full",
		},
		[]string{"sink"},
	)

	// HTTPRequests counts API requests by route and status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "binarynet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "binarynet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
