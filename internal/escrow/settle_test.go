package escrow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

// remoteVault e remoteStore respeitam o cancelamento do contexto, como o
// cliente HTTP da carteira e o Postgres fazem.
type remoteVault struct {
	*escrow.MemoryVault
	afterCapture func()
	beforePayout func()
	// payoutErr é devolvido uma vez depois do pagamento feito (timeout do cliente)
	payoutErr error
}

func (v *remoteVault) Capture(ctx context.Context, from escrow.Identity, amount escrow.Amount, betID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := v.MemoryVault.Capture(ctx, from, amount, betID)
	if v.afterCapture != nil {
		v.afterCapture()
	}
	return err
}

func (v *remoteVault) Refund(ctx context.Context, to escrow.Identity, amount escrow.Amount, betID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.MemoryVault.Refund(ctx, to, amount, betID)
}

func (v *remoteVault) Payout(ctx context.Context, to escrow.Identity, amount escrow.Amount, betID uint64) error {
	if v.beforePayout != nil {
		v.beforePayout()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.MemoryVault.Payout(ctx, to, amount, betID); err != nil {
		return err
	}
	if err := v.payoutErr; err != nil {
		v.payoutErr = nil
		return err
	}
	return nil
}

type remoteStore struct {
	*escrow.MemoryStore
	failCreate bool
}

func (s *remoteStore) Create(ctx context.Context, b escrow.Bet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failCreate {
		return errors.New("disk full")
	}
	return s.MemoryStore.Create(ctx, b)
}

func (s *remoteStore) Accept(ctx context.Context, id uint64, who escrow.Identity, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Accept(ctx, id, who, at)
}

func (s *remoteStore) Resolve(ctx context.Context, id uint64, winner escrow.Identity, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Resolve(ctx, id, winner, at)
}

func (s *remoteStore) Unresolve(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Unresolve(ctx, id)
}

func newRemoteEngine(t *testing.T, opts ...escrow.Option) (*escrow.Engine, *remoteStore, *remoteVault) {
	t.Helper()
	store := &remoteStore{MemoryStore: escrow.NewMemoryStore()}
	vault := &remoteVault{MemoryVault: escrow.NewMemoryVault()}
	for _, who := range []escrow.Identity{challenger, accepter} {
		vault.Deposit(who, startBalance)
	}
	e, err := escrow.NewEngine(referee, store, vault, append([]escrow.Option{escrow.WithSettleTimeout(time.Second)}, opts...)...)
	require.NoError(t, err)
	return e, store, vault
}

func openAndAccept(t *testing.T, e *escrow.Engine) {
	t.Helper()
	ctx := context.Background()
	_, err := e.PublishBet(ctx, escrow.Call{From: challenger, Value: betPrice}, betName, betConditions, betPrice)
	require.NoError(t, err)
	_, err = e.AcceptBet(ctx, escrow.Call{From: accepter, Value: betPrice}, 1)
	require.NoError(t, err)
}

func TestResolvePayoutSurvivesCallerCancel(t *testing.T) {
	e, _, vault := newRemoteEngine(t)
	openAndAccept(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vault.beforePayout = cancel

	rec, err := e.ResolveBet(ctx, escrow.Call{From: referee}, 1, true)
	require.NoError(t, err)
	assert.Equal(t, challenger, rec.Winner)

	b, err := e.Bet(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateResolved, b.State)
	assert.Equal(t, escrow.Amount(0), vault.Held(1))
	assert.Equal(t, startBalance+betPrice, vault.Balance(challenger))
}

func TestResolveRollbackSurvivesCallerCancel(t *testing.T) {
	e, _, vault := newRemoteEngine(t)
	openAndAccept(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vault.OnPayout = func(context.Context, escrow.Identity, escrow.Amount, uint64) error {
		cancel()
		return errors.New("recipient refused")
	}

	_, err := e.ResolveBet(ctx, escrow.Call{From: referee}, 1, true)
	require.Error(t, err)

	b, err := e.Bet(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateAccepted, b.State)
	assert.Equal(t, 2*betPrice, vault.Held(1))

	vault.OnPayout = nil
	_, err = e.ResolveBet(context.Background(), escrow.Call{From: referee}, 1, true)
	require.NoError(t, err)
	assert.Equal(t, startBalance+betPrice, vault.Balance(challenger))
}

func TestCapturedStakeSurvivesCallerCancel(t *testing.T) {
	e, store, vault := newRemoteEngine(t)

	// cancelado logo depois da captura: a aposta é gravada mesmo assim
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vault.afterCapture = cancel
	rec, err := e.PublishBet(ctx, escrow.Call{From: challenger, Value: betPrice}, betName, betConditions, betPrice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.BetID)
	assert.Equal(t, betPrice, vault.Held(1))

	// gravação falha com o chamador já cancelado: o stake volta
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	vault.afterCapture = cancel2
	store.failCreate = true
	_, err = e.PublishBet(ctx2, escrow.Call{From: challenger, Value: betPrice2}, betName2, betConditions2, betPrice2)
	require.Error(t, err)
	assert.Equal(t, startBalance-betPrice, vault.Balance(challenger))
	assert.Equal(t, escrow.Amount(0), vault.Held(2))

	// o próximo id não herda custódia órfã
	vault.afterCapture = nil
	store.failCreate = false
	rec, err = e.PublishBet(context.Background(), escrow.Call{From: challenger, Value: betPrice2}, betName2, betConditions2, betPrice2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.BetID)
	assert.Equal(t, betPrice2, vault.Held(2))
}

func TestRecordPublishedAfterCallerCancel(t *testing.T) {
	var published []error
	e, _, vault := newRemoteEngine(t, escrow.WithPublisher(escrow.PublisherFunc(func(ctx context.Context, _ escrow.Record) error {
		published = append(published, ctx.Err())
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vault.afterCapture = cancel
	_, err := e.PublishBet(ctx, escrow.Call{From: challenger, Value: betPrice}, betName, betConditions, betPrice)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.NoError(t, published[0])
}

func TestResolveAfterPayoutReportedAsFailed(t *testing.T) {
	e, _, vault := newRemoteEngine(t)
	openAndAccept(t, e)
	ctx := context.Background()

	vault.payoutErr = context.DeadlineExceeded
	_, err := e.ResolveBet(ctx, escrow.Call{From: referee}, 1, false)
	require.Error(t, err)
	b, err := e.Bet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateAccepted, b.State)
	assert.Equal(t, startBalance+betPrice, vault.Balance(accepter))

	rec, err := e.ResolveBet(ctx, escrow.Call{From: referee}, 1, false)
	require.NoError(t, err)
	assert.Equal(t, accepter, rec.Winner)
	assert.Equal(t, startBalance+betPrice, vault.Balance(accepter))
	b, err = e.Bet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, escrow.StateResolved, b.State)
}

func TestConcurrentCallersWaitForPayoutToSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, challenger, betName, betConditions, betPrice)
	f.accept(t, accepter, 1, betPrice)

	type outcome struct {
		read    escrow.Bet
		readErr error
		rec     escrow.Record
		err     error
	}
	done := make(chan outcome, 1)
	var calls atomic.Int32
	f.vault.OnPayout = func(context.Context, escrow.Identity, escrow.Amount, uint64) error {
		if calls.Add(1) > 1 {
			return nil
		}
		go func() {
			var o outcome
			o.read, o.readErr = f.engine.Bet(ctx, 1)
			o.rec, o.err = f.engine.ResolveBet(ctx, escrow.Call{From: referee}, 1, true)
			done <- o
		}()
		assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
		return errors.New("recipient refused")
	}

	_, err := f.engine.ResolveBet(ctx, escrow.Call{From: referee}, 1, false)
	require.Error(t, err)

	var o outcome
	select {
	case o = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent caller never returned")
	}
	require.NoError(t, o.readErr)
	assert.Equal(t, escrow.StateAccepted, o.read.State)
	require.NoError(t, o.err)
	assert.Equal(t, challenger, o.rec.Winner)

	assert.Equal(t, escrow.StateResolved, f.bet(t, 1).State)
	assert.Equal(t, startBalance+betPrice, f.vault.Balance(challenger))
	assert.Equal(t, startBalance-betPrice, f.vault.Balance(accepter))
}

func TestResolveRecordFollowsTransitionsDuringPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, challenger, betName, betConditions, betPrice)
	f.publish(t, challenger, betName2, betConditions2, betPrice2)
	f.accept(t, accepter, 1, betPrice)

	f.vault.OnPayout = func(ctx context.Context, _ escrow.Identity, _ escrow.Amount, betID uint64) error {
		if betID != 1 {
			return nil
		}
		_, err := f.engine.AcceptBet(ctx, escrow.Call{From: outsider, Value: betPrice2}, 2)
		return err
	}
	rec, err := f.engine.ResolveBet(ctx, escrow.Call{From: referee}, 1, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rec.Seq)

	all := f.engine.Records(0)
	require.Len(t, all, 5)
	assert.Equal(t, escrow.KindAccept, all[3].Kind)
	assert.Equal(t, uint64(2), all[3].BetID)
	assert.Equal(t, escrow.KindResolve, all[4].Kind)
	assert.Equal(t, all, f.records)
}
