package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_relay_ws_connections",
		Help: "Current number of active websocket connections",
	})
	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_relay_rooms_active",
		Help: "Current number of rooms in the directory",
	})
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_messages_total",
		Help: "Total number of chat messages accepted for relay",
	})
	DeliveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_deliveries_total",
		Help: "Total number of per-connection message deliveries",
	})
	DroppedWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_dropped_writes_total",
		Help: "Total number of frames dropped on slow or closed connections",
	})
	FriendEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_relay_friend_events_total",
		Help: "Total number of friend lifecycle events pushed",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		RoomsActive,
		MessagesTotal,
		DeliveriesTotal,
		DroppedWritesTotal,
		FriendEventsTotal,
	)
}
