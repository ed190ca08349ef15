package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_started_total",
			Help: "Payments created, by kind",
		},
		[]string{"kind"},
	)

	PaymentConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_confirmations_total",
			Help: "Payment confirmation attempts, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RefundsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refund requests, by outcome",
		},
		[]string{"outcome"},
	)

	RefundedCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refunded_cents_total",
			Help: "Total amount refunded through the gateway, in cents",
		},
	)

	CreditDebits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_debits_total",
			Help: "Credit ledger debits, by outcome",
		},
		[]string{"outcome"},
	)

	CreditDebitConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_debit_version_conflicts_total",
			Help: "Ledger commits retried because the account version moved",
		},
	)

	CreditGrantedCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_granted_cents_total",
			Help: "Credit granted, by type, in cents",
		},
		[]string{"type"},
	)

	ReferralRewards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_rewards_total",
			Help: "First-order reward calls, by outcome",
		},
		[]string{"outcome"},
	)

	SweepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_transitions_total",
			Help: "Rows moved by background sweeps, by sweep",
		},
		[]string{"sweep"},
	)
)
