// Package metrics exposes a Prometheus scrape endpoint mirroring the
// LSStats/PoolStats/SessionStats surface defined in
// original_source/src/stats.hpp, grounded on sa6mwa-lockd's telemetry.go
// promhttp wiring but built directly against client_golang rather than
// OpenTelemetry's Prometheus bridge, since LServer has no tracing surface
// to justify carrying the rest of that stack.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/server"
)

// Source is the subset of Manager's read surface the collector samples on
// every scrape. It is pull-based rather than update-as-you-go: each Collect
// call re-derives gauge values straight from the same snapshot RPCs the
// control plane uses, so the two surfaces can never drift apart.
type Source interface {
	GetStats() map[server.Handle]stats.Sample
	GetServersInfo() map[server.Handle]stats.ServerInfo
}

type collector struct {
	source Source

	acceptedCnt      *prometheus.Desc
	poolTotal        *prometheus.Desc
	poolInFlight     *prometheus.Desc
	transactionsCnt  *prometheus.Desc
	bytesReceived    *prometheus.Desc
	bytesSent        *prometheus.Desc
	contextActive    *prometheus.Desc
	contextSessions  *prometheus.Desc
	contextThreads   *prometheus.Desc
	strandPoolSize   *prometheus.Desc
	strandInFlight   *prometheus.Desc
}

func newCollector(source Source) *collector {
	const ns = "lserver"
	handleLabel := []string{"server"}
	contextLabels := []string{"server", "context"}
	return &collector{
		source: source,
		acceptedCnt: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "server", "accepted_total"),
			"Total connections accepted by this server since start.", handleLabel, nil),
		poolTotal: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "session_pool", "items_total"),
			"Current number of session objects this server's pool has created.", handleLabel, nil),
		poolInFlight: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "session_pool", "items_in_flight"),
			"Current number of session objects on loan from this server's pool.", handleLabel, nil),
		transactionsCnt: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "session", "transactions_total"),
			"Transactions completed across this server's sessions since the last scrape.", handleLabel, nil),
		bytesReceived: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "session", "bytes_received_total"),
			"Bytes received across this server's sessions since the last scrape.", handleLabel, nil),
		bytesSent: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "session", "bytes_sent_total"),
			"Bytes sent across this server's sessions since the last scrape.", handleLabel, nil),
		contextActive: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "context", "active"),
			"Whether this context currently accepts new sessions (1) or has been deactivated (0).", contextLabels, nil),
		contextSessions: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "context", "sessions"),
			"Sessions currently bound to this context.", contextLabels, nil),
		contextThreads: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "context", "threads"),
			"Worker goroutines backing this context.", contextLabels, nil),
		strandPoolSize: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "context", "strand_pool_size"),
			"Strands this context's pool has created.", contextLabels, nil),
		strandInFlight: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "context", "strand_pool_in_flight"),
			"Strands currently on loan from this context's pool.", contextLabels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acceptedCnt
	ch <- c.poolTotal
	ch <- c.poolInFlight
	ch <- c.transactionsCnt
	ch <- c.bytesReceived
	ch <- c.bytesSent
	ch <- c.contextActive
	ch <- c.contextSessions
	ch <- c.contextThreads
	ch <- c.strandPoolSize
	ch <- c.strandInFlight
}

// Collect implements prometheus.Collector, re-sampling the Manager on every
// scrape rather than tracking its own running counters.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for h, sample := range c.source.GetStats() {
		label := handleLabel(h)
		ch <- prometheus.MustNewConstMetric(c.acceptedCnt, prometheus.CounterValue, float64(sample.AcceptedCnt), label...)
		ch <- prometheus.MustNewConstMetric(c.poolTotal, prometheus.GaugeValue, float64(sample.SessionPoolStats.NumItemsTotal), label...)
		ch <- prometheus.MustNewConstMetric(c.poolInFlight, prometheus.GaugeValue, float64(sample.SessionPoolStats.NumItemsInFlight), label...)
		ch <- prometheus.MustNewConstMetric(c.transactionsCnt, prometheus.CounterValue, float64(sample.SessionStatsDelta.TransactionsCnt), label...)
		ch <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue, float64(sample.SessionStatsDelta.BytesReceived), label...)
		ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(sample.SessionStatsDelta.BytesSent), label...)
	}

	for h, info := range c.source.GetServersInfo() {
		srvLabel := handleLabel(h)
		for _, ctx := range info.Contexts {
			labels := []string{srvLabel[0], fmt.Sprintf("%d", ctx.Index)}
			active := 0.0
			if ctx.Active {
				active = 1.0
			}
			ch <- prometheus.MustNewConstMetric(c.contextActive, prometheus.GaugeValue, active, labels...)
			ch <- prometheus.MustNewConstMetric(c.contextSessions, prometheus.GaugeValue, float64(ctx.ActiveSessionsCnt), labels...)
			ch <- prometheus.MustNewConstMetric(c.contextThreads, prometheus.GaugeValue, float64(ctx.ThreadsCnt), labels...)
			ch <- prometheus.MustNewConstMetric(c.strandPoolSize, prometheus.GaugeValue, float64(ctx.StrandPoolSize), labels...)
			ch <- prometheus.MustNewConstMetric(c.strandInFlight, prometheus.GaugeValue, float64(ctx.StrandPoolInFlight), labels...)
		}
	}
}

func handleLabel(h server.Handle) []string {
	return []string{fmt.Sprintf("%d", uint64(h))}
}

// Server wraps an *http.Server exposing /metrics for a Source.
type Server struct {
	httpSrv *http.Server
	ln      net.Listener
}

// Start registers a fresh Prometheus registry against source, listens on
// addr, and begins serving /metrics in the background. It is a no-op
// returning (nil, nil) if addr is empty.
func Start(addr string, source Source) (*Server, error) {
	if addr == "" {
		return nil, nil
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(source))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Handler: mux}

	go httpSrv.Serve(ln) //nolint:errcheck // Shutdown below always returns http.ErrServerClosed here

	return &Server{httpSrv: httpSrv, ln: ln}, nil
}

// Shutdown stops the metrics HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
