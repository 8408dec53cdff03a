package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HsiangNianian/gamehub/internal/protocol"
)

// OtherType labels every message type outside the hub protocol. Types
// come from frames, so they are never used as label values directly.
const OtherType = "other"

func typeLabel(msgType string) string {
	switch msgType {
	case protocol.TypeUserInfo,
		protocol.TypeThemeConfig,
		protocol.TypeGameControl,
		protocol.TypeGameAchievement,
		protocol.TypeGameProgress:
		return msgType
	default:
		return OtherType
	}
}

var (
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_bridge_messages_received_total",
			Help: "Inbound frame messages accepted for dispatch, by type",
		},
		[]string{"type"},
	)

	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_bridge_messages_dropped_total",
			Help: "Inbound frame messages dropped before dispatch, by reason",
		},
		[]string{"reason"}, // origin|malformed
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_bridge_messages_sent_total",
			Help: "Messages posted to the active frame, by type",
		},
		[]string{"type"},
	)

	sendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gamehub_bridge_send_failures_total",
		Help: "Messages that could not be posted to the active frame",
	})

	listenerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamehub_bridge_listener_errors_total",
			Help: "Listener invocations that returned an error or panicked, by type",
		},
		[]string{"type"},
	)

	framesConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gamehub_frames_connected",
		Help: "Number of game frames currently connected",
	})

	framesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gamehub_frame_messages_dropped_total",
		Help: "Outbound messages dropped because the target origin did not match or the buffer was full",
	})
)

// Register registers all gamehub collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		messagesReceived,
		messagesDropped,
		messagesSent,
		sendFailures,
		listenerErrors,
		framesConnected,
		framesDropped,
	)
}

func IncReceived(msgType string)      { messagesReceived.WithLabelValues(typeLabel(msgType)).Inc() }
func IncDropped(reason string)        { messagesDropped.WithLabelValues(reason).Inc() }
func IncSent(msgType string)          { messagesSent.WithLabelValues(typeLabel(msgType)).Inc() }
func IncSendFailure()                 { sendFailures.Inc() }
func IncListenerError(msgType string) { listenerErrors.WithLabelValues(typeLabel(msgType)).Inc() }
func AddFrames(delta float64)         { framesConnected.Add(delta) }
func IncFrameDropped()                { framesDropped.Inc() }
