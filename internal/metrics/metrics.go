// Package metrics exposes Prometheus collectors for handled turns.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Turn outcomes.
const (
	OutcomeReplied = "replied"
	OutcomeFailed  = "failed"
)

// Boundaries timed by ObserveBoundary.
const (
	BoundaryContext    = "context"
	BoundaryDocuments  = "documents"
	BoundaryTopic      = "topic"
	BoundaryCompletion = "completion"
	BoundarySend       = "send"
)

// Collectors groups the bot's metrics. A nil *Collectors is a no-op.
type Collectors struct {
	registry *prometheus.Registry
	turns    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	chunks   prometheus.Counter
	tokens   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nomic_lawyer",
			Name:      "turns_total",
			Help:      "Handled trigger messages by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nomic_lawyer",
			Name:      "boundary_duration_seconds",
			Help:      "Latency of external calls made during a turn.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"boundary", "result"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nomic_lawyer",
			Name:      "reply_chunks_total",
			Help:      "Reply chunks delivered to the chat platform.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nomic_lawyer",
			Name:      "completion_tokens_total",
			Help:      "Tokens reported by the completion provider.",
		}, []string{"direction"}),
	}
	c.registry.MustRegister(c.turns, c.latency, c.chunks, c.tokens)
	return c
}

func (c *Collectors) Turn(outcome string) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(outcome).Inc()
}

// ObserveBoundary records the duration of one external call.
func (c *Collectors) ObserveBoundary(boundary string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.latency.WithLabelValues(boundary, result).Observe(d.Seconds())
}

func (c *Collectors) ChunksSent(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.chunks.Add(float64(n))
}

func (c *Collectors) Tokens(input, output int) {
	if c == nil {
		return
	}
	c.tokens.WithLabelValues("input").Add(float64(input))
	c.tokens.WithLabelValues("output").Add(float64(output))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collectors) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
