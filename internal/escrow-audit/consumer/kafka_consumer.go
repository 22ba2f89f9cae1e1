package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Repo interface {
	InsertTransition(ctx context.Context, e events.EscrowTransition) (bool, error)
}

// Processor consome transições do escrow e grava a trilha de auditoria.
// O offset só é commitado depois que a mensagem foi gravada ou mandada para a DLQ.
type Processor struct {
	Log    *zap.Logger
	Reader Reader
	Repo   Repo
	DLQ    Writer // opcional

	Retries int           // tentativas extras de gravação (default 3)
	Backoff time.Duration // base do backoff linear (default 300ms)

	OnConsumed  func()       // métricas
	OnPersist   func()       // métricas
	OnDuplicate func()       // métricas
	OnDLQ       func()       // métricas
	OnError     func(string) // métricas por fase
}

func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.onError("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.process(ctx, m); err != nil {
			return err
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.onError("commit")
		}
	}
}

// process só devolve quando a mensagem foi gravada ou mandada para a DLQ, ou
// quando ctx termina. O reader do grupo já avançou: pular a mensagem e
// commitar uma posterior a perderia.
func (p *Processor) process(ctx context.Context, m kafka.Message) error {
	backoff := p.backoff()
	for attempt := 1; ; attempt++ {
		err := p.handle(ctx, m)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.Log.Error("audit message not handled",
			zap.Int64("offset", m.Offset), zap.Int("attempt", attempt), zap.Error(err))
		if !sleep(ctx, min(time.Duration(attempt)*backoff, maxHandleBackoff)) {
			return ctx.Err()
		}
	}
}

const maxHandleBackoff = 10 * time.Second

func (p *Processor) handle(ctx context.Context, m kafka.Message) error {
	var ev events.EscrowTransition
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.Log.Warn("invalid message", zap.Error(err))
		p.onError("decode")
		return p.toDLQ(ctx, m, "decode")
	}

	inserted, err := p.persist(ctx, ev)
	if err != nil {
		p.Log.Error("persist transition failed",
			zap.Uint64("bet_id", ev.BetID), zap.String("kind", ev.Kind), zap.Error(err))
		p.onError("db")
		return p.toDLQ(ctx, m, "db")
	}

	if !inserted {
		p.Log.Debug("duplicate transition", zap.Uint64("bet_id", ev.BetID), zap.String("kind", ev.Kind))
		if p.OnDuplicate != nil {
			p.OnDuplicate()
		}
		return nil
	}
	p.Log.Info("transition audited", zap.Uint64("seq", ev.Seq), zap.Uint64("bet_id", ev.BetID), zap.String("kind", ev.Kind))
	if p.OnPersist != nil {
		p.OnPersist()
	}
	return nil
}

// persist tenta gravar com backoff linear antes de desistir
func (p *Processor) persist(ctx context.Context, ev events.EscrowTransition) (bool, error) {
	retries := p.Retries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.backoff()

	inserted, err := p.Repo.InsertTransition(ctx, ev)
	for i := 0; err != nil && i < retries; i++ {
		if !sleep(ctx, time.Duration(i+1)*backoff) {
			return false, ctx.Err()
		}
		inserted, err = p.Repo.InsertTransition(ctx, ev)
	}
	return inserted, err
}

func (p *Processor) backoff() time.Duration {
	if p.Backoff <= 0 {
		return 300 * time.Millisecond
	}
	return p.Backoff
}

func (p *Processor) toDLQ(ctx context.Context, m kafka.Message, stage string) error {
	if p.DLQ == nil {
		return nil
	}
	err := p.DLQ.WriteMessages(ctx, kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: []kafka.Header{{Key: "failed_stage", Value: []byte(stage)}},
	})
	if err != nil {
		p.onError("dlq")
		return fmt.Errorf("write dlq: %w", err)
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
	return nil
}

func (p *Processor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
