package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LiveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "teamfocus_live_subscribers",
		Help: "Current number of live room subscriptions",
	})
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "teamfocus_active_rooms",
		Help: "Number of room actors currently running",
	})
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamfocus_events_published_total",
		Help: "Realtime events published, by kind",
	}, []string{"kind"})
	LaggedSubscribers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "teamfocus_lagged_subscribers_total",
		Help: "Subscriptions closed because they fell behind",
	})
	HydrationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "teamfocus_hydration_failures_total",
		Help: "Notifications that could not be hydrated after retries",
	})
	SessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "teamfocus_session_transitions_total",
		Help: "Session state transitions, by target state",
	}, []string{"state"})
	MessagesInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "teamfocus_messages_inserted_total",
		Help: "Messages committed to the store",
	})
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "teamfocus_rate_limited_total",
		Help: "Requests rejected by the per-identity rate limiter",
	})
)

func init() {
	prometheus.MustRegister(
		LiveSubscribers,
		ActiveRooms,
		EventsPublished,
		LaggedSubscribers,
		HydrationFailures,
		SessionTransitions,
		MessagesInserted,
		RateLimited,
	)
}

// NewServer returns the scrape endpoint server. drift routes only drift handlers,
// so the exporter runs on its own listener.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
