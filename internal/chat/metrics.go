package chat

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of currently connected clients",
	})

	RoomOccupancy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_room_occupants",
		Help: "Number of logged-in users per room",
	}, []string{"room"})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total broadcasts processed by type",
	}, []string{"type"})

	BroadcastDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_broadcast_seconds",
		Help:    "Time to fan out one broadcast to a room",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	DroppedDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_deliveries_total",
		Help: "Lines dropped because a recipient's outbound queue was full or closed",
	})

	RejectedConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rejected_connections_total",
		Help: "Connections refused because the server was at capacity",
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(RoomOccupancy)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(BroadcastDuration)
	prometheus.MustRegister(DroppedDeliveries)
	prometheus.MustRegister(RejectedConnections)
}

// NewMetricsServer exposes the default registry at /metrics.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
