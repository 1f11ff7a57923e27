package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	framesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swap",
		Name:      "frames_received_total",
		Help:      "Radio frames received, by function.",
	}, []string{"function"})

	framesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swap",
		Name:      "frames_dropped_total",
		Help:      "Radio frames dropped, by reason.",
	}, []string{"reason"})

	framesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swap",
		Name:      "frames_sent_total",
		Help:      "Radio frames sent, by function.",
	}, []string{"function"})

	ackTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swap",
		Name:      "ack_timeouts_total",
		Help:      "Acknowledgement waits that timed out.",
	})

	rolloutFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swap",
		Name:      "rollout_failures_total",
		Help:      "Motes that did not acknowledge a network parameter rollout.",
	}, []string{"param"})

	motesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swap",
		Name:      "motes",
		Help:      "Motes currently known to the gateway.",
	})
)

func init() {
	prometheus.MustRegister(framesReceived, framesDropped, framesSent, ackTimeouts, rolloutFailures, motesGauge)
}
