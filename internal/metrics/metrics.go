package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds the custody core's Prometheus collectors. All methods are
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	DepositActivities  *prometheus.CounterVec
	WebhookRequests    *prometheus.CounterVec
	WithdrawalOutcomes *prometheus.CounterVec
	ProcessorRuns      *prometheus.CounterVec
	ProcessorDuration  prometheus.Histogram
	HotWalletBalance   prometheus.Gauge
}

// NewMetrics registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DepositActivities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_deposit_activities_total",
			Help: "Webhook transfer activities by reconciliation outcome",
		}, []string{"outcome"}),

		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_webhook_requests_total",
			Help: "Deposit webhook requests by response class",
		}, []string{"result"}),

		WithdrawalOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_withdrawal_outcomes_total",
			Help: "Withdrawals handled by the processor, by result status",
		}, []string{"status"}),

		ProcessorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_processor_runs_total",
			Help: "Withdrawal processor runs by result",
		}, []string{"result"}),

		ProcessorDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "custody_processor_run_duration_seconds",
			Help:    "Wall time of one withdrawal processor run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		HotWalletBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custody_hot_wallet_balance",
			Help: "Hot wallet token balance observed at the start of the last run",
		}),
	}
}

func (m *Metrics) DepositActivity(outcome string) {
	if m == nil {
		return
	}
	m.DepositActivities.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WebhookRequest(result string) {
	if m == nil {
		return
	}
	m.WebhookRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) WithdrawalOutcome(status string) {
	if m == nil {
		return
	}
	m.WithdrawalOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) ProcessorRun(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.ProcessorRuns.WithLabelValues(result).Inc()
	m.ProcessorDuration.Observe(took.Seconds())
}

func (m *Metrics) SetHotWalletBalance(balance decimal.Decimal) {
	if m == nil {
		return
	}
	m.HotWalletBalance.Set(balance.InexactFloat64())
}
