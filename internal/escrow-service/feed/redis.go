package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

// RedisPublisher repassa cada record para o canal Pub/Sub do feed,
// assim todas as réplicas do escrow-service entregam aos seus clientes WS
type RedisPublisher struct {
	r       *redis.Client
	channel string
}

var _ escrow.Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(r *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{r: r, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, rec escrow.Record) error {
	b, err := json.Marshal(Update{BetID: rec.BetID, Payload: rec.Event()})
	if err != nil {
		return err
	}
	return p.r.Publish(ctx, p.channel, b).Err()
}

// StartRedisSubscriber escuta o canal e entrega ao Hub até ctx terminar
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var upd Update
				if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
					log.Warn("feed unmarshal error", zap.Error(err))
					continue
				}
				hub.Broadcast(upd)
			}
		}
	}()
}

// Local entrega direto ao Hub, sem Redis (ESCROW_STORE=memory / dev)
type Local struct{ Hub *Hub }

func (l Local) Publish(_ context.Context, rec escrow.Record) error {
	l.Hub.Broadcast(Update{BetID: rec.BetID, Payload: rec.Event()})
	return nil
}
