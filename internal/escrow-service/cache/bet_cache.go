package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

// BetCache guarda snapshots de apostas no Redis para o GET /bets/{id}.
// Cada transição grava um piso de estado para a aposta: snapshot com estado
// abaixo do piso (lido antes da transição) não entra mais no cache.
type BetCache struct {
	R        *redis.Client
	TTL      time.Duration
	FloorTTL time.Duration // default 24h
}

func New(r *redis.Client, ttl time.Duration) *BetCache { return &BetCache{R: r, TTL: ttl} }

func keyBet(id uint64) string { return "escrow:bet:" + strconv.FormatUint(id, 10) }

func keyFloor(id uint64) string { return keyBet(id) + ":state" }

func stateRank(s escrow.State) int {
	switch s {
	case escrow.StateOpen:
		return 1
	case escrow.StateAccepted:
		return 2
	case escrow.StateResolved:
		return 3
	}
	return 0
}

func kindRank(k escrow.RecordKind) int {
	switch k {
	case escrow.KindPublish:
		return 1
	case escrow.KindAccept:
		return 2
	case escrow.KindResolve:
		return 3
	}
	return 0
}

// KEYS: snapshot, piso. ARGV: json, rank, ttl ms (0 = sem expiração)
var setScript = redis.NewScript(`
local floor = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[2]) < floor then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// KEYS: snapshot, piso. ARGV: rank, ttl ms do piso
var invalidateScript = redis.NewScript(`
local floor = tonumber(redis.call('GET', KEYS[2]) or '0')
local rank = tonumber(ARGV[1])
if rank < floor then
	rank = floor
end
redis.call('SET', KEYS[2], rank, 'PX', ARGV[2])
redis.call('DEL', KEYS[1])
return 1
`)

func (c *BetCache) Get(ctx context.Context, id uint64) (escrow.Bet, bool, error) {
	b, err := c.R.Get(ctx, keyBet(id)).Bytes()
	if err == redis.Nil {
		return escrow.Bet{}, false, nil
	}
	if err != nil {
		return escrow.Bet{}, false, err
	}
	var bet escrow.Bet
	if err := json.Unmarshal(b, &bet); err != nil {
		return escrow.Bet{}, false, err
	}
	return bet, true, nil
}

// Set grava o snapshot, a não ser que uma transição mais nova já tenha passado.
func (c *BetCache) Set(ctx context.Context, bet escrow.Bet) error {
	b, err := json.Marshal(bet)
	if err != nil {
		return err
	}
	keys := []string{keyBet(bet.ID), keyFloor(bet.ID)}
	return setScript.Run(ctx, c.R, keys, b, stateRank(bet.State), c.TTL.Milliseconds()).Err()
}

// Publish sobe o piso de estado e descarta o snapshot da aposta que mudou
func (c *BetCache) Publish(ctx context.Context, r escrow.Record) error {
	floorTTL := c.FloorTTL
	if floorTTL <= 0 {
		floorTTL = 24 * time.Hour
	}
	keys := []string{keyBet(r.BetID), keyFloor(r.BetID)}
	return invalidateScript.Run(ctx, c.R, keys, kindRank(r.Kind), floorTTL.Milliseconds()).Err()
}

var _ escrow.Publisher = (*BetCache)(nil)
