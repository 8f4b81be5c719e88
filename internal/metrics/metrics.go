// Package metrics exposes arena counters and gauges to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillm/agent-arena/pkg/utils"
)

// Cycle outcomes
const (
	OutcomeHold      = "hold"
	OutcomeTraded    = "traded"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomePersist   = "persistence_failed"
	OutcomeAborted   = "aborted"
	OutcomeLeaseHeld = "lease_held"
)

// Metrics holds the arena collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	trades           *prometheus.CounterVec
	tradeFailures    *prometheus.CounterVec
	slippage         *prometheus.CounterVec
	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	taskRetries      prometheus.Counter
	taskFailures     prometheus.Counter
	portfolioValue   *prometheus.GaugeVec
	agentRank        *prometheus.GaugeVec
	liveTournaments  prometheus.Gauge
	killSwitchActive prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "trades_total",
			Help:      "Executed trades by action and token.",
		}, []string{"action", "token"}),
		tradeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "trade_failures_total",
			Help:      "Trades that failed at the swap executor.",
		}, []string{"action", "token"}),
		slippage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "slippage_exceeded_total",
			Help:      "Fills whose price deviated from the quote beyond the policy threshold.",
		}, []string{"token"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "decision_cycles_total",
			Help:      "Decision cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arena",
			Name:      "decision_cycle_duration_seconds",
			Help:      "Wall time of a decision cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		taskRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "task_retries_total",
			Help:      "Task attempts scheduled for retry.",
		}),
		taskFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "task_failures_total",
			Help:      "Tasks that failed for good.",
		}),
		portfolioValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "portfolio_value_usd",
			Help:      "Total portfolio value per agent.",
		}, []string{"tournament", "agent"}),
		agentRank: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "agent_rank",
			Help:      "Current rank per agent.",
		}, []string{"tournament", "agent"}),
		liveTournaments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "live_tournaments",
			Help:      "Tournaments currently live.",
		}),
		killSwitchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "kill_switch_active",
			Help:      "1 while the kill switch halts execution.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.trades,
		m.tradeFailures,
		m.slippage,
		m.cycles,
		m.cycleDuration,
		m.taskRetries,
		m.taskFailures,
		m.portfolioValue,
		m.agentRank,
		m.liveTournaments,
		m.killSwitchActive,
	)
	return m
}

func (m *Metrics) TradeExecuted(action, token string) {
	m.trades.WithLabelValues(action, token).Inc()
}

func (m *Metrics) TradeFailed(action, token string) {
	m.tradeFailures.WithLabelValues(action, token).Inc()
}

func (m *Metrics) SlippageExceeded(token string) {
	m.slippage.WithLabelValues(token).Inc()
}

// CycleFinished records one decision cycle
func (m *Metrics) CycleFinished(outcome string, took time.Duration) {
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(took.Seconds())
}

func (m *Metrics) TaskRetried() {
	m.taskRetries.Inc()
}

func (m *Metrics) TaskFailed() {
	m.taskFailures.Inc()
}

// PortfolioValue sets the agent's total value
func (m *Metrics) PortfolioValue(tournamentID, agentID string, value float64) {
	m.portfolioValue.WithLabelValues(tournamentID, agentID).Set(value)
}

// Rank sets the agent's rank
func (m *Metrics) Rank(tournamentID, agentID string, rank int) {
	m.agentRank.WithLabelValues(tournamentID, agentID).Set(float64(rank))
}

// ForgetTournament drops per-agent series of a finished tournament
func (m *Metrics) ForgetTournament(tournamentID string) {
	m.portfolioValue.DeletePartialMatch(prometheus.Labels{"tournament": tournamentID})
	m.agentRank.DeletePartialMatch(prometheus.Labels{"tournament": tournamentID})
}

func (m *Metrics) LiveTournaments(n int) {
	m.liveTournaments.Set(float64(n))
}

func (m *Metrics) KillSwitch(active bool) {
	if active {
		m.killSwitchActive.Set(1)
		return
	}
	m.killSwitchActive.Set(0)
}

// Registry exposes the registry, e.g. for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, logger *utils.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutCtx)
	}()

	logger.Info("Metrics server listening on %s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
