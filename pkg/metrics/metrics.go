package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geosync_connections_active",
		Help: "The current number of active websocket connections.",
	})
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosync_sessions_created_total",
		Help: "The total number of sessions created.",
	})
	SessionsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosync_sessions_deleted_total",
		Help: "The total number of sessions deleted after both slots emptied.",
	})
	Joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_joins_total",
		Help: "The total number of successful joins by assigned role.",
	}, []string{"role"})
	StatesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosync_states_relayed_total",
		Help: "The total number of accepted map states relayed to peers.",
	})
	StatesThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosync_states_throttled_total",
		Help: "The total number of publishes suppressed by the server-side throttle.",
	})
	StatesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosync_states_rejected_total",
		Help: "The total number of publishes rejected by payload validation.",
	})
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosync_store_errors_total",
		Help: "The total number of session store failures by operation.",
	}, []string{"op"})
	StoreFallback = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geosync_store_fallback",
		Help: "1 when the in-memory fallback store is active instead of Redis.",
	})
)
