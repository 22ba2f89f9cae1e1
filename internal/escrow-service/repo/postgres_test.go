package repo

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

// roda apenas com ESCROW_TEST_POSTGRES_DSN apontando para um banco descartável
func openTestDB(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("ESCROW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ESCROW_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := NewPostgres(db)
	ctx := context.Background()
	require.NoError(t, p.Migrate(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE escrow_available, escrow_bets; UPDATE escrow_meta SET bet_count = 0`)
	require.NoError(t, err)
	return p
}

func TestPostgresLifecycle(t *testing.T) {
	p := openTestDB(t)
	ctx := context.Background()

	challenger := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	accepter := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	now := time.Now().UTC().Truncate(time.Millisecond)

	id, err := p.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	require.NoError(t, p.Create(ctx, escrow.Bet{ID: id, Challenger: challenger, Name: "derby", Conditions: "home wins", Price: 5, CreatedAt: now}))
	require.Error(t, p.Create(ctx, escrow.Bet{ID: 5, Challenger: challenger, Name: "x", Price: 1, CreatedAt: now}))

	avail, err := p.Available(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, avail)

	require.ErrorIs(t, p.Resolve(ctx, 1, challenger, now), escrow.ErrNotYetAccepted)
	require.NoError(t, p.Accept(ctx, 1, accepter, now))
	require.ErrorIs(t, p.Accept(ctx, 1, accepter, now), escrow.ErrAlreadyAccepted)
	require.ErrorIs(t, p.Accept(ctx, 9, accepter, now), escrow.ErrUnknownBet)

	avail, err = p.Available(ctx)
	require.NoError(t, err)
	assert.Empty(t, avail)

	require.NoError(t, p.Resolve(ctx, 1, accepter, now))
	require.ErrorIs(t, p.Resolve(ctx, 1, accepter, now), escrow.ErrAlreadyResolved)

	b, err := p.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateResolved, b.State)
	assert.Equal(t, accepter, b.Winner)
	assert.Equal(t, accepter, b.Accepter)

	require.NoError(t, p.Unresolve(ctx, 1))
	b, err = p.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateAccepted, b.State)
	assert.Equal(t, escrow.NoIdentity, b.Winner)

	n, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	_, err = p.Get(ctx, 2)
	assert.ErrorIs(t, err, escrow.ErrUnknownBet)
}
