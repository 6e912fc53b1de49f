package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Relay.
//
// Регистрируются в глобальном prometheus registry и отдаются
// через /metrics каждого процесса.
var (
	// RunsSubmitted — количество принятых запросов на запуск.
	RunsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_runs_submitted_total",
		Help: "Total number of run requests accepted by the dispatcher.",
	})

	// RunsRejected — количество отклонённых запросов (очередь переполнена).
	RunsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_runs_rejected_total",
		Help: "Total number of run requests rejected due to overload.",
	})

	// RunsFinished — завершённые runs по статусу.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_runs_finished_total",
		Help: "Total number of finished runs by terminal status.",
	}, []string{"status"})

	// ActiveActors — количество активных task actors.
	ActiveActors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_actors",
		Help: "Number of task actors currently executing runs.",
	})

	// QueueDepth — глубина очереди dispatcher.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_dispatch_queue_depth",
		Help: "Number of run requests waiting in the dispatch queue.",
	})

	// StepAttempts — попытки выполнения шагов по результату.
	StepAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_step_attempts_total",
		Help: "Total number of step execution attempts by outcome.",
	}, []string{"outcome"})

	// OutboundDuration — длительность исходящих HTTP вызовов.
	OutboundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_outbound_call_duration_seconds",
		Help:    "Duration of outbound HTTP calls.",
		Buckets: prometheus.DefBuckets,
	})

	// TokenRefreshes — обновления исходящих токенов по причине.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_token_refreshes_total",
		Help: "Total number of outbound token refreshes by reason.",
	}, []string{"reason"})

	// JWKSRefreshes — обновления кэша ключей identity provider.
	JWKSRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_jwks_refreshes_total",
		Help: "Total number of JWKS cache refreshes.",
	})
)
