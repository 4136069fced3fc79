package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	FeedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinfeed", Subsystem: "feed", Name: "messages_total",
		Help: "Streaming messages received, by handling result",
	}, []string{"result"})

	FeedConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinfeed", Subsystem: "feed", Name: "connects_total",
		Help: "Streaming connection attempts, by outcome",
	}, []string{"status"})

	FeedTransportErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coinfeed", Subsystem: "feed", Name: "transport_errors_total",
		Help: "Transport level errors reported by the streaming connection",
	})

	FeedRetriesExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coinfeed", Subsystem: "feed", Name: "retries_exhausted_total",
		Help: "Times the feed gave up reconnecting",
	})

	FeedState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinfeed", Subsystem: "feed", Name: "state",
		Help: "Current connection state (0 disconnected, 1 connecting, 2 open, 3 pending retry, 4 exhausted)",
	})

	ReconnectDelay = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coinfeed", Subsystem: "feed", Name: "reconnect_delay_seconds",
		Help:    "Scheduled reconnect delays",
		Buckets: []float64{0.5, 1, 2, 3, 4, 5, 10},
	})

	BusDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coinfeed", Subsystem: "bus", Name: "deliveries_total",
		Help: "Payloads delivered to bus handlers",
	})

	BusHandlerFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coinfeed", Subsystem: "bus", Name: "handler_failures_total",
		Help: "Bus handlers that returned an error or panicked",
	})

	RelayErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coinfeed", Subsystem: "relay", Name: "errors_total",
		Help: "Failed writes to the redis relay",
	})

	RelayDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coinfeed", Subsystem: "relay", Name: "dropped_total",
		Help: "Quotes dropped because the relay queue was full",
	})
)

// Register registers all collectors once. With no argument the default
// registerer is used.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer = prometheus.DefaultRegisterer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		}
		reg.MustRegister(
			FeedMessages,
			FeedConnects,
			FeedTransportErrors,
			FeedRetriesExhausted,
			FeedState,
			ReconnectDelay,
			BusDeliveries,
			BusHandlerFailures,
			RelayErrors,
			RelayDropped,
		)
	})
}
