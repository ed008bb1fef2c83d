package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(conversationTurns, conversationCompactions, conversationTerminations)
}

var (
	conversationTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Accepted user turns, labeled by topic.",
		},
		[]string{"topic"},
	)

	conversationCompactions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_memory_compactions_total",
			Help: "Times a session's raw history was folded into its summary.",
		},
	)

	conversationTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_terminations_total",
			Help: "Sessions reaching a terminal state, labeled by reason.",
		},
		[]string{"reason"}, // auto_complete | explicit | max_turns | idle_timeout | cancelled
	)
)

func IncTurn(topic string)              { conversationTurns.WithLabelValues(norm(topic)).Inc() }
func IncCompaction()                    { conversationCompactions.Inc() }
func IncTermination(reason string)      { conversationTerminations.WithLabelValues(norm(reason)).Inc() }
