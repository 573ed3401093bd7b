package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах
// - Анализ поведения движка в production

// ============ Метрики анализа ============

// DealsTracked - количество монет с открытым арбитражным маршрутом
var DealsTracked = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "analyst",
		Name:      "deals_tracked",
		Help:      "Number of coins with an open arbitrage route",
	},
)

// BestBenefit - выгода лучшего текущего маршрута
var BestBenefit = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "analyst",
		Name:      "best_benefit",
		Help:      "Benefit of the best currently tracked deal",
	},
)

// RecommendationsTotal - рекомендации Brain по типам
var RecommendationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "brain",
		Name:      "recommendations_total",
		Help:      "Total recommendations issued by type",
	},
	[]string{"exchange", "type"}, // type: wait, trade, transfer
)

// ============ Метрики исполнения ============

// TradesTotal - исполненные ордера по биржам
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "manager",
		Name:      "trades_total",
		Help:      "Total market orders submitted",
	},
	[]string{"exchange", "side", "result"}, // result: success, failed
)

// TransfersTotal - межбиржевые переводы
var TransfersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "manager",
		Name:      "transfers_total",
		Help:      "Total cross-exchange transfers attempted",
	},
	[]string{"departure", "destination", "result"},
)

// TransferFeesTotal - суммарные комиссии переводов в единицах монеты
var TransferFeesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "manager",
		Name:      "transfer_fees_total",
		Help:      "Accumulated transfer fees by coin",
	},
	[]string{"coin"},
)

// ============ Метрики инфраструктуры ============

// ExchangeConnections - статус подключений к биржам
var ExchangeConnections = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "exchange",
		Name:      "connection_status",
		Help:      "Exchange connection status (1=connected, 0=disconnected)",
	},
	[]string{"exchange"},
)

// ObserverRestartsTotal - перезапуски наблюдателей супервизором
var ObserverRestartsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "supervisor",
		Name:      "observer_restarts_total",
		Help:      "Observer restarts performed by the supervisor",
	},
	[]string{"task"},
)

// CycleRestartsTotal - перезапуски полного цикла бота
var CycleRestartsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "bot",
		Name:      "cycle_restarts_total",
		Help:      "Full bot cycle restarts",
	},
)

// ============ Вспомогательные функции ============

// RecordRecommendation записывает рекомендацию Brain
func RecordRecommendation(exchange, kind string) {
	RecommendationsTotal.WithLabelValues(exchange, kind).Inc()
}

// RecordTradeMetric записывает исполненный или отклоненный ордер
func RecordTradeMetric(exchange, side string, ok bool) {
	result := "success"
	if !ok {
		result = "failed"
	}
	TradesTotal.WithLabelValues(exchange, side, result).Inc()
}

// RecordTransferMetric записывает попытку перевода
func RecordTransferMetric(departure, destination, coin string, fee float64, ok bool) {
	result := "success"
	if !ok {
		result = "failed"
	}
	TransfersTotal.WithLabelValues(departure, destination, result).Inc()
	if ok && fee > 0 {
		TransferFeesTotal.WithLabelValues(coin).Add(fee)
	}
}

// UpdateExchangeStatus обновляет статус подключения биржи
func UpdateExchangeStatus(exchange string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	ExchangeConnections.WithLabelValues(exchange).Set(v)
}

// RecordObserverRestart записывает перезапуск наблюдателя
func RecordObserverRestart(task string) {
	ObserverRestartsTotal.WithLabelValues(task).Inc()
}
