package notification

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/stanstork/reconciler/internal/models"
)

// Publisher is the subset of *redis.Client used by RedisNotifier.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes progress events as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  Publisher
	channel string
}

func NewRedisNotifier(client Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = "reconciliation:progress"
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) String() string { return "redis:" + n.channel }

func (n *RedisNotifier) Notify(ctx context.Context, evt models.ProgressEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encode progress event")
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", n.channel)
	}
	return nil
}
