package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

// fakeReader entrega as mensagens e cancela o contexto quando acabam
type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type fakeRepo struct {
	mu    sync.Mutex
	seen  map[string]bool
	fails int // falhas antes de aceitar
	calls int
}

func (f *fakeRepo) InsertTransition(_ context.Context, e events.EscrowTransition) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return false, errors.New("db down")
	}
	k := fmt.Sprintf("%s/%d", e.Kind, e.BetID)
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	return true, nil
}

type fakeDLQ struct {
	msgs  []kafka.Message
	fails int // -1 falha sempre
}

func (d *fakeDLQ) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if d.fails != 0 {
		if d.fails > 0 {
			d.fails--
		}
		return errors.New("broker unavailable")
	}
	d.msgs = append(d.msgs, msgs...)
	return nil
}

func msg(t *testing.T, offset int64, e events.EscrowTransition) kafka.Message {
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func run(t *testing.T, p *Processor, r *fakeReader) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cancel = cancel
	p.Reader = r
	err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessorPersistsAndSkipsDuplicates(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}}
	dlq := &fakeDLQ{}
	var persisted, dups int
	p := &Processor{
		Log: zap.NewNop(), Repo: repo, DLQ: dlq,
		OnPersist:   func() { persisted++ },
		OnDuplicate: func() { dups++ },
	}
	pub := events.EscrowTransition{Seq: 1, Kind: events.KindPublishBet, BetID: 1}
	r := &fakeReader{msgs: []kafka.Message{
		msg(t, 10, pub),
		msg(t, 11, events.EscrowTransition{Seq: 2, Kind: events.KindAcceptBet, BetID: 1}),
		msg(t, 12, pub),
	}}

	run(t, p, r)
	assert.Equal(t, 2, persisted)
	assert.Equal(t, 1, dups)
	assert.Equal(t, []int64{10, 11, 12}, r.committed)
	assert.Empty(t, dlq.msgs)
}

func TestProcessorRetriesThenDLQ(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}, fails: 100}
	dlq := &fakeDLQ{}
	stages := map[string]int{}
	p := &Processor{
		Log: zap.NewNop(), Repo: repo, DLQ: dlq,
		Retries: 3, Backoff: time.Millisecond,
		OnError: func(s string) { stages[s]++ },
	}
	r := &fakeReader{msgs: []kafka.Message{msg(t, 7, events.EscrowTransition{Kind: events.KindResolveBet, BetID: 3})}}

	run(t, p, r)
	assert.Equal(t, 4, repo.calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "db", string(dlq.msgs[0].Headers[0].Value))
	assert.Equal(t, []int64{7}, r.committed)
	assert.Equal(t, 1, stages["db"])
}

func TestProcessorRecoversAfterTransientFailure(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}, fails: 2}
	dlq := &fakeDLQ{}
	p := &Processor{Log: zap.NewNop(), Repo: repo, DLQ: dlq, Backoff: time.Millisecond}
	r := &fakeReader{msgs: []kafka.Message{msg(t, 1, events.EscrowTransition{Kind: events.KindPublishBet, BetID: 1})}}

	run(t, p, r)
	assert.Equal(t, 3, repo.calls)
	assert.Empty(t, dlq.msgs)
	assert.Equal(t, []int64{1}, r.committed)
}

func TestProcessorBadPayloadGoesToDLQ(t *testing.T) {
	dlq := &fakeDLQ{}
	p := &Processor{Log: zap.NewNop(), Repo: &fakeRepo{seen: map[string]bool{}}, DLQ: dlq}
	r := &fakeReader{msgs: []kafka.Message{{Offset: 3, Value: []byte("{")}}}

	run(t, p, r)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "decode", string(dlq.msgs[0].Headers[0].Value))
	assert.Equal(t, []int64{3}, r.committed)
}

func TestProcessorHoldsMessageUntilDLQAccepts(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}, fails: 100}
	dlq := &fakeDLQ{fails: 2}
	stages := map[string]int{}
	p := &Processor{
		Log: zap.NewNop(), Repo: repo, DLQ: dlq,
		Retries: 1, Backoff: time.Millisecond,
		OnError: func(s string) { stages[s]++ },
	}
	r := &fakeReader{msgs: []kafka.Message{
		msg(t, 7, events.EscrowTransition{Kind: events.KindResolveBet, BetID: 3}),
		{Offset: 8, Value: []byte("{")},
	}}

	run(t, p, r)
	assert.Equal(t, 2, stages["dlq"])
	require.Len(t, dlq.msgs, 2)
	assert.Equal(t, "db", string(dlq.msgs[0].Headers[0].Value))
	assert.Equal(t, []int64{7, 8}, r.committed)
}

func TestProcessorStopsWithoutSkippingWhenDLQIsDown(t *testing.T) {
	p := &Processor{
		Log: zap.NewNop(), Repo: &fakeRepo{seen: map[string]bool{}, fails: 1 << 20}, DLQ: &fakeDLQ{fails: -1},
		Retries: 1, Backoff: time.Millisecond,
	}
	r := &fakeReader{msgs: []kafka.Message{
		msg(t, 7, events.EscrowTransition{Kind: events.KindResolveBet, BetID: 3}),
		msg(t, 8, events.EscrowTransition{Kind: events.KindPublishBet, BetID: 4}),
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Reader = r
	r.cancel = cancel

	err := p.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, r.committed)
	assert.Len(t, r.msgs, 1, "next message must not be fetched")
}
