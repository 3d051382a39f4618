package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"makerwatch/internal/model"
)

// Publisher is the subset of a redis client used for pub/sub.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Envelope is the JSON message published per event.
type Envelope struct {
	Kind    model.EventKind `json:"kind"`
	SentAt  time.Time       `json:"sent_at"`
	Payload model.Event     `json:"payload"`
}

// Redis publishes events to a channel. Nothing is stored.
type Redis struct {
	client  Publisher
	channel string
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRedis builds a pub/sub presenter.
func NewRedis(client Publisher, channel string, logger zerolog.Logger) *Redis {
	return &Redis{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "presenter_redis").Str("channel", channel).Logger(),
		now:     time.Now,
	}
}

// Present implements Presenter.
func (r *Redis) Present(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(Envelope{Kind: ev.Kind(), SentAt: r.now().UTC(), Payload: ev})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}

	receivers, err := r.client.Publish(ctx, r.channel, body).Result()
	if err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind(), err)
	}
	r.logger.Debug().Str("kind", string(ev.Kind())).Int64("receivers", receivers).Msg("event published")
	return nil
}

var _ Publisher = (*redis.Client)(nil)
