package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exposes a Collector's snapshot on every scrape.
type PrometheusCollector struct {
	source *Collector

	opCount   *prometheus.Desc
	opErrors  *prometheus.Desc
	opSeconds *prometheus.Desc
	counter   *prometheus.Desc
	uptime    *prometheus.Desc
}

// NewPrometheusCollector creates a prometheus.Collector backed by source.
func NewPrometheusCollector(source *Collector) *PrometheusCollector {
	return &PrometheusCollector{
		source: source,
		opCount: prometheus.NewDesc(
			"serpcluster_operation_total",
			"Number of operations performed, by operation",
			[]string{"op"}, nil,
		),
		opErrors: prometheus.NewDesc(
			"serpcluster_operation_errors_total",
			"Number of failed operations, by operation",
			[]string{"op"}, nil,
		),
		opSeconds: prometheus.NewDesc(
			"serpcluster_operation_seconds_total",
			"Total time spent in operations, by operation",
			[]string{"op"}, nil,
		),
		counter: prometheus.NewDesc(
			"serpcluster_events_total",
			"Pipeline event counters",
			[]string{"event"}, nil,
		),
		uptime: prometheus.NewDesc(
			"serpcluster_uptime_seconds",
			"Seconds since the collector was created",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.opCount
	ch <- p.opErrors
	ch <- p.opSeconds
	ch <- p.counter
	ch <- p.uptime
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.source.Snapshot()

	for op, s := range snap.Operations {
		ch <- prometheus.MustNewConstMetric(p.opCount, prometheus.CounterValue, float64(s.Count), op)
		ch <- prometheus.MustNewConstMetric(p.opErrors, prometheus.CounterValue, float64(s.Errors), op)
		ch <- prometheus.MustNewConstMetric(p.opSeconds, prometheus.CounterValue, float64(s.TotalTimeMs)/1000, op)
	}
	for name, v := range snap.Counters {
		ch <- prometheus.MustNewConstMetric(p.counter, prometheus.CounterValue, float64(v), name)
	}
	ch <- prometheus.MustNewConstMetric(p.uptime, prometheus.GaugeValue, snap.UptimeSeconds)
}

// NewRegistry returns a registry with the pipeline collector and the Go runtime collectors.
func NewRegistry(source *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewPrometheusCollector(source),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}
