package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record API
// activity per module and method.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldredirect",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldredirect",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "yieldredirect",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldredirect",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// VaultMetrics tracks ledger operations and the vault's balances.
type VaultMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	conversions  *prometheus.CounterVec
	converted    *prometheus.CounterVec
	payouts      *prometheus.CounterVec
	tvl          prometheus.Gauge
	accumulators *prometheus.GaugeVec
}

// Vault returns the singleton ledger metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldredirect",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "yieldredirect",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency of ledger operations including the commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldredirect",
				Subsystem: "distributor",
				Name:      "conversions_total",
				Help:      "Successful profit conversions segmented by target token.",
			}, []string{"token"}),
			converted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldredirect",
				Subsystem: "distributor",
				Name:      "converted_amount_total",
				Help:      "Target token units received from conversions, before fees.",
			}, []string{"token"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldredirect",
				Subsystem: "distributor",
				Name:      "payout_amount_total",
				Help:      "Reward units paid to depositors segmented by token.",
			}, []string{"token"}),
			tvl: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "yieldredirect",
				Subsystem: "vault",
				Name:      "total_deposited",
				Help:      "Sum of depositor principal held by the vault.",
			}),
			accumulators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "yieldredirect",
				Subsystem: "distributor",
				Name:      "acc_reward_per_share",
				Help:      "Current accumulator index per reward pool, unscaled.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.latency,
			vaultRegistry.conversions,
			vaultRegistry.converted,
			vaultRegistry.payouts,
			vaultRegistry.tvl,
			vaultRegistry.accumulators,
		)
	})
	return vaultRegistry
}

// ObserveOperation records the outcome and latency of a ledger operation.
func (m *VaultMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "success"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordConversion counts a conversion and the amount it received.
func (m *VaultMetrics) RecordConversion(token string, received *big.Int) {
	if m == nil {
		return
	}
	token = normalizeLabel(token)
	m.conversions.WithLabelValues(token).Inc()
	m.converted.WithLabelValues(token).Add(bigToFloat(received))
}

// RecordPayout adds amount to the paid-out counter of token.
func (m *VaultMetrics) RecordPayout(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(token)).Add(bigToFloat(amount))
}

// SetTotalDeposited publishes the vault's principal sum.
func (m *VaultMetrics) SetTotalDeposited(total *big.Int) {
	if m == nil {
		return
	}
	m.tvl.Set(bigToFloat(total))
}

// SetAccumulator publishes a pool's index divided by its scale.
func (m *VaultMetrics) SetAccumulator(token string, index, scale *big.Int) {
	if m == nil || index == nil || scale == nil || scale.Sign() == 0 {
		return
	}
	value, _ := new(big.Rat).SetFrac(index, scale).Float64()
	m.accumulators.WithLabelValues(normalizeLabel(token)).Set(value)
}

func normalizeLabel(token string) string {
	normalized := strings.ToUpper(strings.TrimSpace(token))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func bigToFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return math.MaxFloat64
	}
	return f
}
