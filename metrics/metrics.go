// Package metrics exposes scheduler/process counters to Prometheus, the
// profiling surface spec.md §4.12 wires in behind --profile. The gauge
// and counter shapes mirror the metrics registered by the example
// corpus's backend services (a request counter plus a handful of
// gauges) rather than anything the teacher repo does, since the
// teacher's register VM has no such surface to borrow from.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the run's counters and gauges. The scheduler and
// processes do not update it; cmd/ttvm increments ProcessesSpawned.
type Collector struct {
	ProcessesSpawned  prometheus.Counter
	ProcessesExited   prometheus.Counter
	ActiveProcesses   prometheus.Gauge
	ReductionsRun     prometheus.Counter
	MessagesDelivered prometheus.Counter
}

// NewCollector registers every metric against a fresh registry so
// repeated test construction doesn't panic on duplicate registration.
func NewCollector() (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		ProcessesSpawned: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttvm_processes_spawned_total",
			Help: "Total number of processes spawned since startup.",
		}),
		ProcessesExited: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttvm_processes_exited_total",
			Help: "Total number of processes that have exited.",
		}),
		ActiveProcesses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ttvm_active_processes",
			Help: "Number of processes currently running or waiting.",
		}),
		ReductionsRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttvm_reductions_total",
			Help: "Total number of instruction reductions executed.",
		}),
		MessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttvm_messages_delivered_total",
			Help: "Total number of mailbox deliveries.",
		}),
	}, reg
}

// Handler returns an http.Handler serving reg in the Prometheus text
// exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
