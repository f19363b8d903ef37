package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the plugin manager's Prometheus collectors.
type Metrics struct {
	DiscoveredTotal   *prometheus.CounterVec
	ActivationsTotal  *prometheus.CounterVec
	FailuresTotal     *prometheus.CounterVec
	SweepsTotal       prometheus.Counter
	SweptEntriesTotal prometheus.Counter
	ActivePlugins     prometheus.Gauge
	LoadedPlugins     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DiscoveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkedit_plugins_discovered_total",
				Help: "Total number of plugins discovered by load passes",
			},
			[]string{"origin"},
		),
		ActivationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkedit_plugin_activations_total",
				Help: "Total number of plugin activation attempts",
			},
			[]string{"result"},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkedit_plugin_failures_total",
				Help: "Total number of plugin lifecycle failures",
			},
			[]string{"phase"},
		),
		SweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "apkedit_plugin_sweeps_total",
				Help: "Total number of owner sweeps performed on deactivation",
			},
		),
		SweptEntriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "apkedit_plugin_swept_entries_total",
				Help: "Total number of registry entries removed by owner sweeps",
			},
		),
		ActivePlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "apkedit_plugins_active",
				Help: "Number of currently active plugins",
			},
		),
		LoadedPlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "apkedit_plugins_loaded",
				Help: "Number of currently loaded plugins",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.DiscoveredTotal,
			m.ActivationsTotal,
			m.FailuresTotal,
			m.SweepsTotal,
			m.SweptEntriesTotal,
			m.ActivePlugins,
			m.LoadedPlugins,
		)
	}

	return m
}

func (m *Metrics) discovered(origin Origin) {
	m.DiscoveredTotal.WithLabelValues(origin.String()).Inc()
}

func (m *Metrics) activation(ok bool) {
	if ok {
		m.ActivationsTotal.WithLabelValues("success").Inc()
		m.ActivePlugins.Inc()
		return
	}
	m.ActivationsTotal.WithLabelValues("failure").Inc()
	m.FailuresTotal.WithLabelValues("activate").Inc()
}

func (m *Metrics) deactivated(hookErr error, swept int) {
	if hookErr != nil {
		m.FailuresTotal.WithLabelValues("deactivate").Inc()
	}
	m.ActivePlugins.Dec()
	m.SweepsTotal.Inc()
	m.SweptEntriesTotal.Add(float64(swept))
}
