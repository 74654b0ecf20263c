// Package notify carries best-effort wake-up signals from enqueuers to
// worker pools over Redis pub/sub. Postgres remains the source of truth;
// losing a wake-up only delays a job until the next poll.
package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultChannel = "provisioning:jobs:wake"

// Publisher wakes subscribed pools after an enqueue.
type Publisher struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewPublisher(rdb *redis.Client, log *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, channel: defaultChannel, log: log}
}

// Wake publishes a single wake-up. Errors are logged and dropped; the
// durable queue does not depend on delivery.
func (p *Publisher) Wake(ctx context.Context) {
	if err := p.rdb.Publish(ctx, p.channel, "1").Err(); err != nil {
		p.log.Debug("wake publish failed", zap.Error(err))
	}
}

// Subscriber converts the Redis subscription into a channel the worker
// pool can select on. The channel is buffered to one pending signal;
// coalescing bursts is fine since one claim drains a whole batch.
type Subscriber struct {
	pubsub *redis.PubSub
	ch     chan struct{}
}

func NewSubscriber(ctx context.Context, rdb *redis.Client) *Subscriber {
	s := &Subscriber{
		pubsub: rdb.Subscribe(ctx, defaultChannel),
		ch:     make(chan struct{}, 1),
	}
	go s.pump()
	return s
}

func (s *Subscriber) pump() {
	for range s.pubsub.Channel() {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
	close(s.ch)
}

func (s *Subscriber) Chan() <-chan struct{} {
	return s.ch
}

func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}
