package lending

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики координатора транзакций
// ============================================================
//
// Использование:
// - Grafana дашборды: доля failed по действиям, латентность подтверждений
// - Alertmanager: всплеск failed-транзакций или зависшие approve

// ============ Счётчики транзакций ============

// TransactionsTotal - транзакции по действиям и результатам
var TransactionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "morpho",
		Subsystem: "lending",
		Name:      "transactions_total",
		Help:      "Total number of submitted transactions",
	},
	[]string{"action", "result"}, // result: confirmed, failed
)

// ApprovalsTotal - approve-шаги: выданные и пропущенные по достаточному allowance
var ApprovalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "morpho",
		Subsystem: "lending",
		Name:      "approvals_total",
		Help:      "Approval steps by outcome",
	},
	[]string{"action", "outcome"}, // outcome: granted, skipped
)

// ============ Латентность подтверждений ============

// ConfirmLatency - время от отправки до подтверждения on-chain.
// Buckets рассчитаны на блочное время mainnet (секунды, не миллисекунды)
var ConfirmLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "morpho",
		Subsystem: "lending",
		Name:      "confirm_latency_seconds",
		Help:      "Time from submission to on-chain confirmation in seconds",
		Buckets:   []float64{2, 5, 12, 24, 36, 60, 120, 300},
	},
	[]string{"action", "step"}, // step: approve, action
)

// ============ Метрики состояния ============

// ActiveCoordinators - координаторы в нетерминальной фазе
var ActiveCoordinators = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "morpho",
		Subsystem: "lending",
		Name:      "active_coordinators",
		Help:      "Number of coordinators with a transaction in flight",
	},
)

// MarketsTracked - рынки в каталоге
var MarketsTracked = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "morpho",
		Subsystem: "catalog",
		Name:      "markets_tracked",
		Help:      "Number of markets currently tracked in the catalog",
	},
)

// ============ Вспомогательные функции ============

// RecordTransaction записывает исход транзакции
func RecordTransaction(action, result string) {
	TransactionsTotal.WithLabelValues(action, result).Inc()
}

// RecordApproval записывает исход approve-шага
func RecordApproval(action, outcome string) {
	ApprovalsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordConfirmLatency записывает латентность подтверждения
func RecordConfirmLatency(action, step string, d time.Duration) {
	ConfirmLatency.WithLabelValues(action, step).Observe(d.Seconds())
}

// UpdateActiveCoordinators обновляет число координаторов в полёте
func UpdateActiveCoordinators(count int64) {
	ActiveCoordinators.Set(float64(count))
}

// UpdateMarketsTracked обновляет размер каталога рынков
func UpdateMarketsTracked(count int) {
	MarketsTracked.Set(float64(count))
}
