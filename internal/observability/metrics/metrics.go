package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/episode"
)

const namespace = "sim"

var (
	registry = prometheus.NewRegistry()

	actionRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "action_records_total",
		Help:      "Action log records by status and action name.",
	}, []string{"status", "action"})

	steps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "steps_total",
		Help:      "Completed simulation steps.",
	})

	stepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Wall clock duration of a simulation step.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	activeAgents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_agents",
		Help:      "Agents activated in the latest step.",
	})

	agentOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_outcomes_total",
		Help:      "Per-agent step outcomes.",
	}, []string{"outcome"})

	simTick = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clock_tick",
		Help:      "Number of steps the shared clock has advanced.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		actionRecords, steps, stepDuration, activeAgents, agentOutcomes, simTick,
		httpRequests, httpDuration,
	)
}

// Registry 返回本进程使用的指标注册表。
func Registry() *prometheus.Registry { return registry }

// ObserveRecord 统计一条动作记录，可直接作为 actionlog.Observer 使用。
func ObserveRecord(rec actionlog.Record) {
	status := string(rec.Status)
	if status == "" {
		status = "unknown"
	}
	actionRecords.WithLabelValues(status, rec.Action).Inc()
}

// ObserveStep 统计一步的执行情况，可直接作为 episode.Observer 使用。
func ObserveStep(r *episode.Report) {
	if r == nil {
		return
	}
	steps.Inc()
	stepDuration.Observe(r.Duration.Seconds())
	activeAgents.Set(float64(len(r.Active)))
	for _, a := range r.Agents {
		agentOutcomes.WithLabelValues(string(a.Outcome)).Inc()
	}
	if r.Advanced {
		simTick.Set(float64(r.Tick + 1))
	}
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
