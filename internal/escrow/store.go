package escrow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store guarda o contador de apostas, o mapa id -> Bet e o índice de apostas abertas.
// Cada método é atômico; as transições re-checam o estado e devolvem os erros
// do pacote (ErrUnknownBet, ErrAlreadyAccepted, ...) quando a pré-condição não vale.
type Store interface {
	// NextID devolve o id que o próximo Create vai ocupar.
	NextID(ctx context.Context) (uint64, error)
	Create(ctx context.Context, b Bet) error
	Get(ctx context.Context, id uint64) (Bet, error)
	Accept(ctx context.Context, id uint64, accepter Identity, at time.Time) error
	Resolve(ctx context.Context, id uint64, winner Identity, at time.Time) error
	// Unresolve desfaz um Resolve cujo pagamento falhou.
	Unresolve(ctx context.Context, id uint64) error
	Count(ctx context.Context) (uint64, error)
	Available(ctx context.Context) ([]uint64, error)
}

// MemoryStore implementa Store em memória
type MemoryStore struct {
	mu        sync.RWMutex
	bets      map[uint64]*Bet
	count     uint64
	available []uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bets: make(map[uint64]*Bet)}
}

func (s *MemoryStore) NextID(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count + 1, nil
}

func (s *MemoryStore) Create(ctx context.Context, b Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID != s.count+1 {
		return fmt.Errorf("create bet %d: expected id %d", b.ID, s.count+1)
	}
	b.Accepter = NoIdentity
	b.Winner = NoIdentity
	b.State = StateOpen
	s.bets[b.ID] = &b
	s.count = b.ID
	s.available = append(s.available, b.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uint64) (Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bets[id]
	if !ok {
		return Bet{}, ErrUnknownBet
	}
	return *b, nil
}

func (s *MemoryStore) Accept(ctx context.Context, id uint64, accepter Identity, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return ErrUnknownBet
	}
	if b.State != StateOpen || b.HasAccepter() {
		return ErrAlreadyAccepted
	}
	b.Accepter = accepter
	b.State = StateAccepted
	b.AcceptedAt = at

	for i, open := range s.available {
		if open == id {
			s.available = append(s.available[:i], s.available[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id uint64, winner Identity, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return ErrUnknownBet
	}
	switch b.State {
	case StateOpen:
		return ErrNotYetAccepted
	case StateResolved:
		return ErrAlreadyResolved
	}
	b.State = StateResolved
	b.Winner = winner
	b.ResolvedAt = at
	return nil
}

func (s *MemoryStore) Unresolve(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return ErrUnknownBet
	}
	if b.State != StateResolved {
		return fmt.Errorf("unresolve bet %d: state %s", id, b.State)
	}
	b.State = StateAccepted
	b.Winner = NoIdentity
	b.ResolvedAt = time.Time{}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count, nil
}

func (s *MemoryStore) Available(ctx context.Context) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, len(s.available))
	copy(out, s.available)
	return out, nil
}
