package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/infra/metrics"
)

type jobPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type sessionExpirer interface {
	ExpireIdle(ctx context.Context, topicID model.TopicID, cutoff time.Time) (int64, error)
}

// RetentionWorker periodically drops jobs past their TTL and settles
// conversations whose idle window lapsed without another request hitting
// them. Both rules are also enforced at read time; the sweep is what keeps
// the tables from accumulating dead rows.
type RetentionWorker struct {
	interval time.Duration
	jobs     jobPurger
	sessions sessionExpirer
	log      *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, jobs jobPurger, sessions sessionExpirer, logger *zerolog.Logger) *RetentionWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	retLog := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{interval: interval, jobs: jobs, sessions: sessions, log: &retLog}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RetentionWorker) sweep(ctx context.Context) {
	if n, err := w.jobs.PurgeExpired(ctx); err != nil {
		w.log.Error().Err(err).Msg("job purge failed")
	} else if n > 0 {
		w.log.Info().Int64("count", n).Msg("expired jobs purged")
	}

	now := time.Now()
	for _, topic := range model.AllTopics() {
		if topic.Kind != model.TopicKindConversational || topic.IdleTimeout <= 0 {
			continue
		}
		n, err := w.sessions.ExpireIdle(ctx, topic.ID, now.Add(-topic.IdleTimeout))
		if err != nil {
			w.log.Error().Err(err).Str("topic", string(topic.ID)).Msg("idle sweep failed")
			continue
		}
		for i := int64(0); i < n; i++ {
			metrics.IncTermination("idle_timeout")
		}
		if n > 0 {
			w.log.Info().Int64("count", n).Str("topic", string(topic.ID)).Msg("idle sessions expired")
		}
	}
}
