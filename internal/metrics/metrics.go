// Package metrics exposes the controller's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the controller's counters and gauges. Each controller
// instance registers against its own Registerer so tests can run several
// controllers side by side.
type Metrics struct {
	PlacementsTotal    *prometheus.CounterVec
	PlacementsDeferred prometheus.Counter
	PlacementsDropped  prometheus.Counter

	MigrationsPlanned   prometheus.Counter
	MigrationsCompleted prometheus.Counter

	PStateChanges prometheus.Counter
	SleepRequests prometheus.Counter
	WakeRequests  prometheus.Counter

	ActiveMachines prometheus.Gauge
	QueuedTasks    prometheus.Gauge
	ClusterEnergy  prometheus.Gauge
}

// New creates and registers the controller metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PlacementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_placements_total",
				Help: "Tasks placed on a VM, by SLA tier.",
			},
			[]string{"sla"},
		),
		PlacementsDeferred: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_placements_deferred_total",
				Help: "Tasks deferred to the pending queue.",
			},
		),
		PlacementsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_placements_dropped_total",
				Help: "Tasks dropped because no VM or machine could host them.",
			},
		),
		MigrationsPlanned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_migrations_planned_total",
				Help: "VM migrations issued to the cluster.",
			},
		),
		MigrationsCompleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_migrations_completed_total",
				Help: "VM migrations reported complete by the cluster.",
			},
		),
		PStateChanges: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_pstate_changes_total",
				Help: "Core performance transitions issued by the governor, placement and migration planner.",
			},
		),
		SleepRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_sleep_requests_total",
				Help: "Machine sleep transitions requested by the governor.",
			},
		),
		WakeRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_wake_requests_total",
				Help: "Machine wake-ups requested for placement or migration.",
			},
		),
		ActiveMachines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduler_active_machines",
				Help: "Machines currently in the controller's active set.",
			},
		),
		QueuedTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduler_queued_tasks",
				Help: "Tasks waiting in the pending queue.",
			},
		),
		ClusterEnergy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduler_cluster_energy_kwh",
				Help: "Total cluster energy consumed, in KW-Hour.",
			},
		),
	}
}
