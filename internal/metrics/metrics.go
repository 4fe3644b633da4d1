// Package metrics exposes Prometheus collectors for the trading loop:
//
//	upbot_orders_total{side,type}         orders accepted by the venue
//	upbot_exits_total{reason}             closed slots by exit reason
//	upbot_slots{status}                   slots per status after each tick
//	upbot_tick_errors_total               ticks that ended in an error or panic
//	upbot_tick_duration_seconds           wall time of one tick
//	upbot_scan_candidates{set}            size of the last scan (all|eligible)
//	upbot_admission_safe                  1 while the market filter admits entries
//	upbot_realized_pnl                    sum of realized PnL in quote currency
//	upbot_paused                          1 while new entries are paused
//	upbot_breaker_state{name}             0 closed, 1 open, 2 half-open
//
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	orders       *prometheus.CounterVec
	exits        *prometheus.CounterVec
	slots        *prometheus.GaugeVec
	tickErrors   prometheus.Counter
	tickDuration prometheus.Histogram
	candidates   *prometheus.GaugeVec
	admission    prometheus.Gauge
	realizedPnL  prometheus.Gauge
	paused       prometheus.Gauge
	breaker      *prometheus.GaugeVec
}

// New builds the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upbot_orders_total",
			Help: "Orders accepted by the venue",
		}, []string{"side", "type"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upbot_exits_total",
			Help: "Closed slots by exit reason",
		}, []string{"reason"}),
		slots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upbot_slots",
			Help: "Slots per status",
		}, []string{"status"}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upbot_tick_errors_total",
			Help: "Ticks that ended in an error or panic",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upbot_tick_duration_seconds",
			Help:    "Wall time of one controller tick",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		candidates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upbot_scan_candidates",
			Help: "Candidates in the last scan",
		}, []string{"set"}),
		admission: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upbot_admission_safe",
			Help: "1 while the market admission filter admits entries",
		}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upbot_realized_pnl",
			Help: "Realized PnL in quote currency since start",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upbot_paused",
			Help: "1 while new entries are paused",
		}),
		breaker: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "upbot_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"name"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.orders, m.exits, m.slots, m.tickErrors, m.tickDuration,
		m.candidates, m.admission, m.realizedPnL, m.paused, m.breaker,
	)
	return m
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) OrderPlaced(side, typ string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(side, typ).Inc()
}

func (m *Metrics) SlotClosed(reason string, pnl float64) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(reason).Inc()
	m.realizedPnL.Add(pnl)
}

func (m *Metrics) SetSlots(byStatus map[string]int) {
	if m == nil {
		return
	}
	m.slots.Reset()
	for status, n := range byStatus {
		m.slots.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) ObserveTick(seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(seconds)
	if failed {
		m.tickErrors.Inc()
	}
}

func (m *Metrics) SetScan(all, eligible int) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues("all").Set(float64(all))
	m.candidates.WithLabelValues("eligible").Set(float64(eligible))
}

func (m *Metrics) SetAdmission(safe bool) {
	if m == nil {
		return
	}
	m.admission.Set(boolGauge(safe))
}

func (m *Metrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	m.paused.Set(boolGauge(paused))
}

func (m *Metrics) SetBreaker(name string, state int) {
	if m == nil {
		return
	}
	m.breaker.WithLabelValues(name).Set(float64(state))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
