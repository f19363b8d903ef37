package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/apkedit/internal/plugin"
)

// Metrics holds the application's Prometheus registry and collectors.
type Metrics struct {
	Registry *prometheus.Registry
	Plugins  *plugin.Metrics

	FilesOpenedTotal *prometheus.CounterVec
	FormatsTotal     *prometheus.CounterVec
	FormatDuration   prometheus.Histogram
	ReloadsTotal     *prometheus.CounterVec
	CommandsTotal    *prometheus.CounterVec
}

// NewMetrics creates a private registry with the process, Go runtime,
// plugin manager and application collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		Plugins:  plugin.NewMetrics(reg),
		FilesOpenedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkedit_files_opened_total",
				Help: "Total number of files opened, by who took them",
			},
			[]string{"via"},
		),
		FormatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkedit_formats_total",
				Help: "Total number of format requests",
			},
			[]string{"language", "result"},
		),
		FormatDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "apkedit_format_duration_seconds",
				Help:    "Time spent in formatters",
				Buckets: prometheus.DefBuckets,
			},
		),
		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkedit_plugin_reloads_total",
				Help: "Total number of plugin set reloads",
			},
			[]string{"result"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkedit_commands_total",
				Help: "Total number of executed commands",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.FilesOpenedTotal, m.FormatsTotal, m.FormatDuration, m.ReloadsTotal, m.CommandsTotal)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
