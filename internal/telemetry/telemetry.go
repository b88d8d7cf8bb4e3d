// Package telemetry exposes Prometheus metrics for tool calls, SIEM
// queries, cache activity and provider failures, plus an optional
// /metrics listener.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dshield_mcp",
		Name:      "tool_calls_total",
		Help:      "Tool invocations by tool name and outcome.",
	}, []string{"tool", "status"})

	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dshield_mcp",
		Name:      "tool_call_duration_seconds",
		Help:      "Tool call latency.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"tool"})

	SIEMQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dshield_mcp",
		Name:      "siem_queries_total",
		Help:      "SIEM search operations by outcome.",
	}, []string{"status"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dshield_mcp",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by outcome (hit or miss).",
	}, []string{"outcome"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dshield_mcp",
		Name:      "provider_errors_total",
		Help:      "Threat-intelligence provider failures by source.",
	}, []string{"source"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dshield_mcp",
		Name:      "active_connections",
		Help:      "Open TCP transport connections.",
	})
)

// Server serves /metrics when a listen address is configured.
type Server struct {
	srv *http.Server
}

// NewServer returns nil when addr is empty, which disables the listener.
func NewServer(addr string) *Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() {
	log.Info().Str("addr", s.srv.Addr).Msg("Starting metrics listener")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics listener failed")
	}
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
