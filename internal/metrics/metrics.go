package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	StreamsStarted    prometheus.Counter
	StreamsCompleted  prometheus.Counter
	StreamsFailed     prometheus.Counter
	StreamDuration    prometheus.Histogram
	DebitsTotal       prometheus.Counter
	InsufficientFunds prometheus.Counter
	TurnsPersisted    prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			StreamsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditchat",
				Name:      "relay_streams_started_total",
				Help:      "Total upstream completion streams opened",
			}),
			StreamsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditchat",
				Name:      "relay_streams_completed_total",
				Help:      "Total completion streams finished successfully",
			}),
			StreamsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditchat",
				Name:      "relay_streams_failed_total",
				Help:      "Total completion streams aborted on upstream failure",
			}),
			StreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "creditchat",
				Name:      "relay_stream_duration_seconds",
				Help:      "Wall-clock duration of completion streams",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			}),
			DebitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditchat",
				Name:      "ledger_debits_total",
				Help:      "Total successful chat debits",
			}),
			InsufficientFunds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditchat",
				Name:      "ledger_insufficient_funds_total",
				Help:      "Total debits rejected for insufficient balance",
			}),
			TurnsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditchat",
				Name:      "conversation_turns_total",
				Help:      "Total chat turns appended to the conversation log",
			}),
		}
		prometheus.MustRegister(
			global.StreamsStarted,
			global.StreamsCompleted,
			global.StreamsFailed,
			global.StreamDuration,
			global.DebitsTotal,
			global.InsufficientFunds,
			global.TurnsPersisted,
		)
	})
	return global
}
