// Package metrics registers the Prometheus collectors GET /metrics (spec.md
// §6) exposes, grounded on the pack's own Prometheus-instrumented repo
// (_examples/luxfi-consensus/metrics): a single struct of named collectors
// built with promauto against a private registry that New creates rather
// than the global default, so every New call starts from a fresh registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spadina"

// Metrics holds every collector this server publishes. Grouped by the
// component each counts against (spec.md §4's controller numbering),
// mirroring _examples/luxfi-consensus/metrics.Metrics's
// "one struct, promauto-registered fields" shape.
type Metrics struct {
	registry *prometheus.Registry

	// Realm controller (C3) / self-hosted controller (C4)
	LiveRealms      prometheus.Gauge
	LiveSelfHosted  prometheus.Gauge
	PuzzleRounds    prometheus.Counter
	PuzzleDivergent *prometheus.CounterVec // label: reason

	// Session (C8)
	ConnectedPlayers prometheus.Gauge

	// Peer layer (C7)
	PeerState   *prometheus.GaugeVec // labels: peer, state
	PeerFrames  *prometheus.CounterVec // labels: peer, direction, kind
	DMQueueSize *prometheus.GaugeVec // label: peer
}

// New builds and registers every collector against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LiveRealms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_realms",
			Help:      "Number of realm controllers currently resident in memory.",
		}),
		LiveSelfHosted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_self_hosted",
			Help:      "Number of self-hosted controllers currently resident in memory.",
		}),
		PuzzleRounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puzzle_batch_rounds_total",
			Help:      "Total puzzle graph Process rounds run across all realms.",
		}),
		PuzzleDivergent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puzzle_batch_divergent_total",
			Help:      "Puzzle batches that hit the round cap without reaching a fixed point, by reason.",
		}, []string{"reason"}),

		ConnectedPlayers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_players",
			Help:      "Number of players with an open client session on this node.",
		}),

		PeerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_state",
			Help:      "1 if the peer connection is currently in the given state, 0 otherwise.",
		}, []string{"peer", "state"}),
		PeerFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_frames_total",
			Help:      "Frames sent or received over peer links, by peer, direction, and frame kind.",
		}, []string{"peer", "direction", "kind"}),
		DMQueueSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dm_queue_size",
			Help:      "Number of direct messages queued for delivery to a peer.",
		}, []string{"peer"}),
	}
}

// Handler serves GET /metrics in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetPeerState records a peer's new connection state, clearing every other
// state label for that peer so exactly one is 1 at a time (spec.md §4.7
// "Peer... Idle/Connecting/Online/Offline/Killed").
func (m *Metrics) SetPeerState(peer, state string, allStates []string) {
	for _, s := range allStates {
		if s == state {
			m.PeerState.WithLabelValues(peer, s).Set(1)
		} else {
			m.PeerState.WithLabelValues(peer, s).Set(0)
		}
	}
}
