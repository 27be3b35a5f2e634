package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cronwheel"

// Метрики scanner.
var (
	// ScansTotal — количество сканирований по результату (ok, empty, error).
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Schedule scans by result",
	}, []string{"result"})

	// ScanDuration — длительность одного сканирования вместе с ожиданием блокировки.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Duration of one locked scan cycle",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// JobsScanned — количество задач, прочитанных за сканирования.
	JobsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_scanned_total",
		Help:      "Jobs returned by due-or-soon-due queries",
	})

	// MisfiresTotal — пропущенные срабатывания по принятому решению.
	MisfiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "misfires_total",
		Help:      "Misfired occurrences by action",
	}, []string{"action"})

	// CalcErrorsTotal — ошибки вычисления следующего срабатывания.
	CalcErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "next_fire_errors_total",
		Help:      "Malformed schedules encountered while recomputing next fire time",
	})

	// SchedulesExhausted — задачи, остановленные из-за исчерпания расписания.
	SchedulesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedules_exhausted_total",
		Help:      "Jobs stopped because no further occurrence exists",
	})
)

// Метрики кольца и dispatcher.
var (
	// RingEntries — текущее количество записей в кольце.
	RingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ring_entries",
		Help:      "Occurrences waiting in the time ring",
	})

	// RingLateTotal — записи, забранные из кольца позже окна lookback.
	RingLateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ring_late_entries_total",
		Help:      "Ring entries drained outside the lookback window",
	})
)

// Метрики передачи срабатываний.
var (
	// TriggersTotal — переданные в пул срабатывания по причине.
	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "triggers_total",
		Help:      "Trigger hand-offs accepted by the pool by cause",
	}, []string{"cause"})

	// TriggersDropped — срабатывания, не переданные исполнителю.
	TriggersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "triggers_dropped_total",
		Help:      "Trigger hand-offs that were not delivered by reason",
	}, []string{"reason"})

	// TriggerSendDuration — длительность отправки срабатывания по полосе пула.
	TriggerSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "trigger_send_duration_seconds",
		Help:      "Duration of a single trigger send by pool lane",
		Buckets:   prometheus.DefBuckets,
	}, []string{"lane"})
)

// Метрики API управления задачами.
var (
	// APIRequestsTotal — запросы к API по маршруту и коду ответа.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Job admin API requests by route and status code",
	}, []string{"route", "code"})
)
