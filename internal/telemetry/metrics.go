package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/bookstore"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session metrics
	SessionOperationsTotal metric.Int64Counter

	// Subscription ledger metrics
	SubscriptionsCreatedTotal  metric.Int64Counter
	SubscriptionsRemovedTotal  metric.Int64Counter
	SubscriptionConflictsTotal metric.Int64Counter

	// Plan catalog metrics
	PlanDeletesRejectedTotal metric.Int64Counter

	// Store metrics
	StoreUnavailableTotal metric.Int64Counter
	RequestDuration       metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments are bound to whichever meter provider is global at first call; with
// no provider installed they are no-ops.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.SessionOperationsTotal, _ = meter.Int64Counter(
		"bookstore.sessions.operations.total",
		metric.WithDescription("Total number of session store operations by kind"),
		metric.WithUnit("{operation}"),
	)

	m.SubscriptionsCreatedTotal, _ = meter.Int64Counter(
		"bookstore.subscriptions.created.total",
		metric.WithDescription("Total number of successful subscribe calls"),
		metric.WithUnit("{subscription}"),
	)

	m.SubscriptionsRemovedTotal, _ = meter.Int64Counter(
		"bookstore.subscriptions.removed.total",
		metric.WithDescription("Total number of successful unsubscribe calls"),
		metric.WithUnit("{subscription}"),
	)

	m.SubscriptionConflictsTotal, _ = meter.Int64Counter(
		"bookstore.subscriptions.conflicts.total",
		metric.WithDescription("Total number of subscribe/unsubscribe calls rejected by ledger state"),
		metric.WithUnit("{conflict}"),
	)

	m.PlanDeletesRejectedTotal, _ = meter.Int64Counter(
		"bookstore.plans.delete_rejected.total",
		metric.WithDescription("Total number of plan deletes rejected because of active subscribers"),
		metric.WithUnit("{delete}"),
	)

	m.StoreUnavailableTotal, _ = meter.Int64Counter(
		"bookstore.store.unavailable.total",
		metric.WithDescription("Total number of operations failed by an unavailable backing store"),
		metric.WithUnit("{error}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"bookstore.http.request.duration",
		metric.WithDescription("Duration of HTTP API requests"),
		metric.WithUnit("s"),
	)

	return m
}
