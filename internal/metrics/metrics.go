package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pairgrid/tictactoe-backend/internal/entity"
)

const namespace = "tictactoe"

// Metrics holds the process-wide game collectors. All collectors are
// registered against the injected registerer so tests can use private
// registries.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	PlayersWaiting    prometheus.Gauge
	SessionsActive    prometheus.Gauge
	MovesTotal        prometheus.Counter
	gamesFinished     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open client connections.",
		}),
		PlayersWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_waiting",
			Help:      "Number of registered players without a partner.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live game sessions.",
		}),
		MovesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Number of accepted moves.",
		}),
		gamesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Number of finished games by outcome.",
		}, []string{"outcome"}),
	}
}

func (that *Metrics) GameFinished(outcome entity.Outcome) {
	var label string

	switch outcome {
	case entity.OutcomeX:
		label = "x_win"
	case entity.OutcomeO:
		label = "o_win"
	case entity.OutcomeDraw:
		label = "draw"
	default:
		return
	}

	that.gamesFinished.WithLabelValues(label).Inc()
}
