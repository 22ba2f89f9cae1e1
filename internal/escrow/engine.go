package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Op string

const (
	OpPublish Op = "publish"
	OpAccept  Op = "accept"
	OpResolve Op = "resolve"
)

// Observer é chamado ao fim de cada operação (métricas).
// rec só é válido quando err == nil.
type Observer func(op Op, rec Record, err error)

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publ = p } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observe = o } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithJournal(j *Journal) Option { return func(e *Engine) { e.journal = j } }

// WithSettleTimeout limita pagamento, compensações e publicação, que rodam
// desligados do cancelamento de quem chamou.
func WithSettleTimeout(d time.Duration) Option { return func(e *Engine) { e.settleTimeout = d } }

const defaultSettleTimeout = 30 * time.Second

// Engine aplica as regras de ciclo de vida e custódia das apostas.
// As operações que alteram estado são serializadas por mu; as leituras vão
// direto ao Store e ao Journal.
type Engine struct {
	mu      sync.Mutex
	referee Identity
	store   Store
	vault   Vault
	journal *Journal

	// settling: apostas com pagamento em andamento; o canal fecha quando assenta.
	// Escrita com mu e smu; leitura só com smu.
	smu      sync.Mutex
	settling map[uint64]chan struct{}

	log           *zap.Logger
	publ          Publisher
	observe       Observer
	now           func() time.Time
	settleTimeout time.Duration
}

// NewEngine cria o engine com o referee fixo para toda a vida do processo.
func NewEngine(referee Identity, store Store, vault Vault, opts ...Option) (*Engine, error) {
	if referee == NoIdentity {
		return nil, fmt.Errorf("new engine: %w: referee", ErrInvalidCaller)
	}
	if store == nil || vault == nil {
		return nil, errors.New("new engine: store and vault are required")
	}
	e := &Engine{
		referee: referee,
		store:   store,
		vault:   vault,
		journal:  NewJournal(),
		settling: make(map[uint64]chan struct{}),
		log:      zap.NewNop(),
		now:      time.Now,

		settleTimeout: defaultSettleTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Referee() Identity { return e.referee }

func (e *Engine) Journal() *Journal { return e.journal }

// PublishBet cria uma aposta Open com o valor anexado como stake do challenger.
func (e *Engine) PublishBet(ctx context.Context, call Call, name, conditions string, price Amount) (Record, error) {
	e.mu.Lock()
	rec, err := e.publish(ctx, call, name, conditions, price)
	e.mu.Unlock()
	return e.finish(ctx, OpPublish, rec, err)
}

func (e *Engine) publish(ctx context.Context, call Call, name, conditions string, price Amount) (Record, error) {
	if call.From == NoIdentity {
		return Record{}, ErrInvalidCaller
	}
	if price <= 0 || price > MaxPrice {
		return Record{}, ErrInvalidPrice
	}
	if call.Value != price {
		return Record{}, ErrValueMismatch
	}

	id, err := e.store.NextID(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("next bet id: %w", err)
	}

	// daqui em diante mexe em custódia: o cancelamento do chamador não interrompe
	sctx, cancel := e.detach(ctx)
	defer cancel()
	if err := e.capture(sctx, call.From, price, id); err != nil {
		return Record{}, err
	}

	now := e.now()
	bet := Bet{
		ID:         id,
		Challenger: call.From,
		Name:       name,
		Conditions: conditions,
		Price:      price,
		State:      StateOpen,
		CreatedAt:  now,
	}
	if err := e.store.Create(sctx, bet); err != nil {
		e.refund(ctx, call.From, price, id)
		return Record{}, fmt.Errorf("store bet: %w", err)
	}

	return e.journal.append(Record{
		Kind:       KindPublish,
		BetID:      id,
		Challenger: call.From,
		Name:       name,
		Price:      price,
		At:         now,
	}), nil
}

// AcceptBet casa o stake de uma aposta Open.
func (e *Engine) AcceptBet(ctx context.Context, call Call, id uint64) (Record, error) {
	if err := e.lockSettled(ctx, id); err != nil {
		return e.finish(ctx, OpAccept, Record{}, err)
	}
	rec, err := e.accept(ctx, call, id)
	e.mu.Unlock()
	return e.finish(ctx, OpAccept, rec, err)
}

func (e *Engine) accept(ctx context.Context, call Call, id uint64) (Record, error) {
	if call.From == NoIdentity {
		return Record{}, ErrInvalidCaller
	}
	bet, err := e.get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if bet.HasAccepter() || bet.State != StateOpen {
		return Record{}, ErrAlreadyAccepted
	}
	if call.From == bet.Challenger {
		return Record{}, ErrSelfAcceptance
	}
	if call.Value != bet.Price {
		return Record{}, ErrValueMismatch
	}

	sctx, cancel := e.detach(ctx)
	defer cancel()
	if err := e.capture(sctx, call.From, bet.Price, id); err != nil {
		return Record{}, err
	}
	now := e.now()
	if err := e.store.Accept(sctx, id, call.From, now); err != nil {
		e.refund(ctx, call.From, bet.Price, id)
		return Record{}, fmt.Errorf("store accept: %w", err)
	}

	return e.journal.append(Record{
		Kind:       KindAccept,
		BetID:      id,
		Challenger: bet.Challenger,
		Accepter:   call.From,
		Name:       bet.Name,
		Price:      bet.Price,
		At:         now,
	}), nil
}

// ResolveBet paga o pote ao vencedor declarado pelo referee.
//
// Fase 1 (com lock): valida, grava Resolved e marca o pagamento em andamento.
// Fase 2 (sem lock): transfere o pote. Só uma chamada feita de dentro da
// transferência enxerga a aposta nesse meio tempo, e ela já está Resolved; as
// demais esperam o pagamento assentar. Fase 3 (com lock): registra o record,
// ou volta a aposta para Accepted se a transferência falhou.
func (e *Engine) ResolveBet(ctx context.Context, call Call, id uint64, outcomeFavorsChallenger bool) (Record, error) {
	rec, err := e.resolve(ctx, call, id, outcomeFavorsChallenger)
	return e.finish(ctx, OpResolve, rec, err)
}

func (e *Engine) resolve(ctx context.Context, call Call, id uint64, outcomeFavorsChallenger bool) (Record, error) {
	if call.From != e.referee {
		return Record{}, ErrUnauthorized
	}
	if call.Value != 0 {
		return Record{}, ErrValueMismatch
	}

	if err := e.lockSettled(ctx, id); err != nil {
		return Record{}, err
	}
	bet, winner, now, err := e.markResolved(ctx, id, outcomeFavorsChallenger)
	if err != nil {
		e.mu.Unlock()
		return Record{}, err
	}
	e.beginSettle(id)
	e.mu.Unlock()

	payout := bet.Payout()
	pctx, cancel := e.detach(withSettling(ctx, id))
	defer cancel()
	perr := e.vault.Payout(pctx, winner, payout, id)

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.endSettle(id)

	if perr != nil {
		cctx, ccancel := e.detach(ctx)
		defer ccancel()
		if uerr := e.store.Unresolve(cctx, id); uerr != nil {
			e.log.Error("rollback resolve failed",
				zap.Uint64("bet_id", id), zap.Error(uerr), zap.NamedError("payout_error", perr))
		}
		return Record{}, fmt.Errorf("payout: %w", perr)
	}

	return e.journal.append(Record{
		Kind:       KindResolve,
		BetID:      id,
		Challenger: bet.Challenger,
		Accepter:   bet.Accepter,
		Name:       bet.Name,
		Payout:     payout,
		Winner:     winner,
		At:         now,
	}), nil
}

func (e *Engine) markResolved(ctx context.Context, id uint64, outcomeFavorsChallenger bool) (Bet, Identity, time.Time, error) {
	bet, err := e.get(ctx, id)
	if err != nil {
		return Bet{}, NoIdentity, time.Time{}, err
	}
	switch bet.State {
	case StateOpen:
		return Bet{}, NoIdentity, time.Time{}, ErrNotYetAccepted
	case StateResolved:
		return Bet{}, NoIdentity, time.Time{}, ErrAlreadyResolved
	}

	winner := bet.Accepter
	if outcomeFavorsChallenger {
		winner = bet.Challenger
	}
	now := e.now()
	if err := e.store.Resolve(ctx, id, winner, now); err != nil {
		if errors.Is(err, ErrAlreadyResolved) || errors.Is(err, ErrNotYetAccepted) {
			return Bet{}, NoIdentity, time.Time{}, err
		}
		return Bet{}, NoIdentity, time.Time{}, fmt.Errorf("store resolve: %w", err)
	}
	return bet, winner, now, nil
}

// NumberOfBets retorna o total de apostas já publicadas.
func (e *Engine) NumberOfBets(ctx context.Context) (uint64, error) {
	return e.store.Count(ctx)
}

// AvailableBets retorna os ids abertos, na ordem de publicação.
func (e *Engine) AvailableBets(ctx context.Context) ([]uint64, error) {
	return e.store.Available(ctx)
}

// Bet lê a aposta já assentada: se há pagamento em andamento, espera.
func (e *Engine) Bet(ctx context.Context, id uint64) (Bet, error) {
	if err := e.waitSettled(ctx, id); err != nil {
		return Bet{}, err
	}
	return e.get(ctx, id)
}

// Records retorna os records com Seq > after.
func (e *Engine) Records(after uint64) []Record {
	return e.journal.Since(after)
}

func (e *Engine) get(ctx context.Context, id uint64) (Bet, error) {
	if id == 0 {
		return Bet{}, ErrUnknownBet
	}
	bet, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnknownBet) {
			return Bet{}, ErrUnknownBet
		}
		return Bet{}, fmt.Errorf("load bet %d: %w", id, err)
	}
	return bet, nil
}

// capture põe o stake em custódia. Se o resultado é incerto (falha que não é
// de saldo), tenta devolver o que possa ter sido capturado.
func (e *Engine) capture(ctx context.Context, from Identity, amount Amount, id uint64) error {
	err := e.vault.Capture(ctx, from, amount, id)
	if err == nil {
		return nil
	}
	if Code(err) == codeInternal {
		e.refund(ctx, from, amount, id)
	}
	return fmt.Errorf("capture stake: %w", err)
}

// refund devolve um stake capturado cuja gravação falhou.
func (e *Engine) refund(ctx context.Context, to Identity, amount Amount, id uint64) {
	rctx, cancel := e.detach(ctx)
	defer cancel()
	if err := e.vault.Refund(rctx, to, amount, id); err != nil {
		e.log.Error("refund captured stake failed",
			zap.Uint64("bet_id", id),
			zap.String("to", to.Hex()),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}

// detach mantém os valores do contexto mas não o cancelamento, com prazo próprio.
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.settleTimeout)
}

func (e *Engine) finish(ctx context.Context, op Op, rec Record, err error) (Record, error) {
	if e.observe != nil {
		e.observe(op, rec, err)
	}
	if err != nil {
		e.log.Debug("operation rejected", zap.String("op", string(op)), zap.String("code", Code(err)), zap.Error(err))
		return Record{}, err
	}

	e.log.Info("bet transition",
		zap.String("op", string(op)),
		zap.String("kind", string(rec.Kind)),
		zap.Uint64("seq", rec.Seq),
		zap.Uint64("bet_id", rec.BetID),
	)
	if e.publ != nil {
		pctx, cancel := e.detach(ctx)
		defer cancel()
		if perr := e.publ.Publish(pctx, rec); perr != nil {
			e.log.Warn("publish record failed", zap.Uint64("seq", rec.Seq), zap.Error(perr))
		}
	}
	return rec, nil
}
