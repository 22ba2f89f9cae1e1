package escrow

import (
	"context"
	"errors"
	"sync"
	"time"
)

type RecordKind string

const (
	KindPublish RecordKind = "LogPublishBet"
	KindAccept  RecordKind = "LogAcceptBet"
	KindResolve RecordKind = "LogResolveBet"
)

// Record é o registro de uma transição bem-sucedida.
// Price vale para publish/accept; Payout e Winner só para resolve.
type Record struct {
	Seq        uint64     `json:"seq"`
	Kind       RecordKind `json:"kind"`
	BetID      uint64     `json:"bet_id"`
	Challenger Identity   `json:"challenger"`
	Accepter   Identity   `json:"accepter"`
	Name       string     `json:"name"`
	Price      Amount     `json:"price,omitempty"`
	Payout     Amount     `json:"payout,omitempty"`
	Winner     Identity   `json:"winner"`
	At         time.Time  `json:"at"`
}

// Journal é o stream ordenado e append-only de records do processo.
type Journal struct {
	mu   sync.RWMutex
	recs []Record
}

func NewJournal() *Journal { return &Journal{} }

func (j *Journal) append(r Record) Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	r.Seq = uint64(len(j.recs)) + 1
	j.recs = append(j.recs, r)
	return r
}

// Since retorna uma cópia dos records com Seq > after.
func (j *Journal) Since(after uint64) []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if after >= uint64(len(j.recs)) {
		return []Record{}
	}
	out := make([]Record, len(j.recs)-int(after))
	copy(out, j.recs[after:])
	return out
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.recs)
}

// Publisher entrega records para fora do processo (Kafka, Redis, métricas...).
type Publisher interface {
	Publish(ctx context.Context, r Record) error
}

type PublisherFunc func(ctx context.Context, r Record) error

func (f PublisherFunc) Publish(ctx context.Context, r Record) error { return f(ctx, r) }

// Fanout publica em todos os destinos, mesmo quando algum falha.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, r Record) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
