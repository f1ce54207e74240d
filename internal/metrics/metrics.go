// Package metrics holds the Prometheus collectors shared by the client and
// the side-channel relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "connectra"

var (
	joinTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "join_total",
	}, []string{"outcome"})
	joinDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "join_duration_ms",
		Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 15000},
	})
	remoteParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "remote_participants",
	})
	rosterPollTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "roster",
		Name:      "poll_total",
	}, []string{"result"})
	rosterDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "roster",
		Name:      "degraded",
	})
	sideChannelMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sidechannel",
		Name:      "messages_total",
		Help:      "Side-channel messages by direction and outcome.",
	}, []string{"direction", "outcome"})
	relayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "connections",
	})
	relayFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "frames_total",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(joinTotal)
	prometheus.MustRegister(joinDuration)
	prometheus.MustRegister(remoteParticipants)
	prometheus.MustRegister(rosterPollTotal)
	prometheus.MustRegister(rosterDegraded)
	prometheus.MustRegister(sideChannelMessages)
	prometheus.MustRegister(relayConnections)
	prometheus.MustRegister(relayFrames)
}

// ObserveJoin records a finished join attempt. outcome is "ok", "cancelled"
// or an error kind.
func ObserveJoin(outcome string, took time.Duration) {
	joinTotal.WithLabelValues(outcome).Inc()
	joinDuration.Observe(float64(took.Milliseconds()))
}

func SetRemoteParticipants(n int) {
	remoteParticipants.Set(float64(n))
}

func ObserveRosterPoll(err error) {
	if err != nil {
		rosterPollTotal.WithLabelValues("error").Inc()
		return
	}
	rosterPollTotal.WithLabelValues("ok").Inc()
}

func SetRosterDegraded(degraded bool) {
	if degraded {
		rosterDegraded.Set(1)
		return
	}
	rosterDegraded.Set(0)
}

func SideChannelSent(err error) {
	if err != nil {
		sideChannelMessages.WithLabelValues("out", "error").Inc()
		return
	}
	sideChannelMessages.WithLabelValues("out", "ok").Inc()
}

// SideChannelReceived counts an inbound frame; outcome is "ok", "unknown",
// "malformed" or "foreign".
func SideChannelReceived(outcome string) {
	sideChannelMessages.WithLabelValues("in", outcome).Inc()
}

func RelayConnectionOpened() { relayConnections.Inc() }
func RelayConnectionClosed() { relayConnections.Dec() }

// RelayFrame counts a fanned-out frame; outcome is "sent", "dropped" or "limited".
func RelayFrame(outcome string, n int) {
	relayFrames.WithLabelValues(outcome).Add(float64(n))
}
