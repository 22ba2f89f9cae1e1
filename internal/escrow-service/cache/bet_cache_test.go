package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

func TestKeyBet(t *testing.T) {
	assert.Equal(t, "escrow:bet:42", keyBet(42))
	assert.Equal(t, "escrow:bet:42:state", keyFloor(42))
}

func TestRanksFollowLifecycle(t *testing.T) {
	assert.Equal(t, stateRank(escrow.StateOpen), kindRank(escrow.KindPublish))
	assert.Equal(t, stateRank(escrow.StateAccepted), kindRank(escrow.KindAccept))
	assert.Equal(t, stateRank(escrow.StateResolved), kindRank(escrow.KindResolve))
	assert.Less(t, stateRank(escrow.StateOpen), stateRank(escrow.StateAccepted))
	assert.Less(t, stateRank(escrow.StateAccepted), stateRank(escrow.StateResolved))
}

func TestStaleSnapshotAfterTransitionIsDropped(t *testing.T) {
	addr := os.Getenv("ESCROW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ESCROW_TEST_REDIS_ADDR not set")
	}
	r := redis.NewClient(&redis.Options{Addr: addr})
	defer r.Close()
	ctx := context.Background()
	c := New(r, time.Minute)
	const id = 900002
	require.NoError(t, r.Del(ctx, keyBet(id), keyFloor(id)).Err())

	open := escrow.Bet{ID: id, Price: 5, State: escrow.StateOpen}
	require.NoError(t, c.Publish(ctx, escrow.Record{Kind: escrow.KindPublish, BetID: id}))
	require.NoError(t, c.Publish(ctx, escrow.Record{Kind: escrow.KindAccept, BetID: id}))

	// leitura feita antes do accept chegando depois da invalidação
	require.NoError(t, c.Set(ctx, open))
	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	accepted := open
	accepted.State = escrow.StateAccepted
	require.NoError(t, c.Set(ctx, accepted))
	got, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, escrow.StateAccepted, got.State)

	// o piso não desce com um record atrasado
	require.NoError(t, c.Publish(ctx, escrow.Record{Kind: escrow.KindPublish, BetID: id}))
	require.NoError(t, c.Set(ctx, open))
	_, ok, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBetCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("ESCROW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ESCROW_TEST_REDIS_ADDR not set")
	}
	r := redis.NewClient(&redis.Options{Addr: addr})
	defer r.Close()
	ctx := context.Background()
	c := New(r, time.Minute)
	require.NoError(t, r.Del(ctx, keyBet(900001), keyFloor(900001)).Err())

	_, ok, err := c.Get(ctx, 900001)
	require.NoError(t, err)
	assert.False(t, ok)

	bet := escrow.Bet{
		ID:         900001,
		Challenger: common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Name:       "derby",
		Price:      5,
		State:      escrow.StateOpen,
	}
	require.NoError(t, c.Set(ctx, bet))

	got, ok, err := c.Get(ctx, bet.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bet.Challenger, got.Challenger)
	assert.Equal(t, bet.Price, got.Price)

	require.NoError(t, c.Publish(ctx, escrow.Record{Kind: escrow.KindAccept, BetID: bet.ID}))
	_, ok, err = c.Get(ctx, bet.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
