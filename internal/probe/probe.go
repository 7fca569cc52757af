// Package probe publishes and consumes liveness messages over a Redis list.
// The ping endpoint pushes a message; a background consumer pops and logs it,
// proving the broker round trip works.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Message is what the ping endpoint publishes.
const Message = "liveness probe"

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("probe: redis ping %s: %w", addr, err)
	}
	return client, nil
}

type Producer struct {
	client redis.Cmdable
	queue  string
	log    logging.Logger
}

func NewProducer(client redis.Cmdable, queue string, log logging.Logger) *Producer {
	return &Producer{client: client, queue: queue, log: log.With("component", "probe")}
}

// Send pushes msg onto the queue.
func (p *Producer) Send(ctx context.Context, msg string) error {
	p.log.Info("sending liveness message", "queue", p.queue, "message", msg)
	if err := p.client.LPush(ctx, p.queue, msg).Err(); err != nil {
		return fmt.Errorf("probe: push to %s: %w", p.queue, err)
	}
	return nil
}

// Consumer pops messages in arrival order.
type Consumer struct {
	client redis.Cmdable
	queue  string
	log    logging.Logger
	// Block is how long a single BRPOP waits before polling again.
	Block time.Duration
	// OnMessage, when set, is called for every received message.
	OnMessage func(string)
}

func NewConsumer(client redis.Cmdable, queue string, log logging.Logger) *Consumer {
	return &Consumer{client: client, queue: queue, log: log.With("component", "probe"), Block: time.Second}
}

// Run consumes until ctx is done. Broker errors are logged and retried after
// a short pause; Run only returns once ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := c.client.BRPop(ctx, c.Block, c.queue).Result()
		switch {
		case err == nil:
			// res is [queue, value]
			msg := res[len(res)-1]
			c.log.Info("received liveness message", "queue", c.queue, "message", msg)
			if c.OnMessage != nil {
				c.OnMessage(msg)
			}
		case errors.Is(err, redis.Nil):
		case ctx.Err() != nil:
			return nil
		default:
			c.log.Warn("liveness queue read failed", "queue", c.queue, "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}
