package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for the controller. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	runsStarted       prometheus.Counter
	runsEnded         *prometheus.CounterVec
	catchUpIncrements *prometheus.CounterVec
	catchUpFailures   prometheus.Counter
	configUpdates     prometheus.Counter
	oracleRequests    *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	timeLeft          prometheus.Gauge
	valveOpen         prometheus.Gauge
	clockSynced       prometheus.Gauge
}

// NewMetrics creates and registers the collectors with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "water_timer_runs_started_total",
			Help: "Total number of watering runs started",
		}),
		runsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "water_timer_runs_ended_total",
			Help: "Total number of watering runs ended by reason",
		}, []string{"reason"}),
		catchUpIncrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "water_timer_catch_up_increments_total",
			Help: "Total number of schedule periods advanced by strategy",
		}, []string{"strategy"}),
		catchUpFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "water_timer_catch_up_failures_total",
			Help: "Total number of catch-up advances aborted",
		}),
		configUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "water_timer_config_updates_total",
			Help: "Total number of applied schedule updates",
		}),
		oracleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "water_timer_oracle_requests_total",
			Help: "Total number of time oracle requests by operation and outcome",
		}, []string{"op", "outcome"}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "water_timer_persistence_errors_total",
			Help: "Total number of failed schedule writes by operation",
		}, []string{"op"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "water_timer_events_dropped_total",
			Help: "Total number of watering events dropped because the queue was full",
		}),
		timeLeft: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "water_timer_time_left_seconds",
			Help: "Seconds until the next scheduled run",
		}),
		valveOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "water_timer_valve_open",
			Help: "1 while the valve output is high",
		}),
		clockSynced: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "water_timer_clock_synced",
			Help: "1 when the last time sync succeeded",
		}),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsEnded,
		m.catchUpIncrements,
		m.catchUpFailures,
		m.configUpdates,
		m.oracleRequests,
		m.persistenceErrors,
		m.eventsDropped,
		m.timeLeft,
		m.valveOpen,
		m.clockSynced,
	)
	return m
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
	m.valveOpen.Set(1)
}

// RunEnded counts a finished run and marks the valve closed.
func (m *Metrics) RunEnded(reason string) {
	if m == nil {
		return
	}
	m.runsEnded.WithLabelValues(reason).Inc()
	m.valveOpen.Set(0)
}

// CatchUp adds n advanced periods for strategy.
func (m *Metrics) CatchUp(strategy string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.catchUpIncrements.WithLabelValues(strategy).Add(float64(n))
}

func (m *Metrics) CatchUpFailed() {
	if m == nil {
		return
	}
	m.catchUpFailures.Inc()
}

func (m *Metrics) ConfigUpdated() {
	if m == nil {
		return
	}
	m.configUpdates.Inc()
}

// OracleRequest satisfies timesync.RequestObserver.
func (m *Metrics) OracleRequest(op, outcome string) {
	if m == nil {
		return
	}
	m.oracleRequests.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) PersistenceError(op string) {
	if m == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) SetTimeLeft(seconds int64) {
	if m == nil {
		return
	}
	m.timeLeft.Set(float64(seconds))
}

func (m *Metrics) SetClockSynced(ok bool) {
	if m == nil {
		return
	}
	m.clockSynced.Set(boolToFloat(ok))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
