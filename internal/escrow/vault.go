package escrow

import (
	"context"
	"fmt"
	"sync"
)

// Vault guarda os valores em custódia, separados por aposta.
type Vault interface {
	// Capture move o valor anexado por from para a custódia da aposta.
	Capture(ctx context.Context, from Identity, amount Amount, betID uint64) error
	// Refund devolve a to um valor capturado para a aposta.
	Refund(ctx context.Context, to Identity, amount Amount, betID uint64) error
	// Payout libera exatamente amount da custódia da aposta para to.
	// Repetir um pagamento já feito (mesmo to e amount) não move nada e retorna nil.
	Payout(ctx context.Context, to Identity, amount Amount, betID uint64) error
}

// MemoryVault implementa Vault em memória, com saldos por conta.
type MemoryVault struct {
	mu       sync.Mutex
	balances map[Identity]Amount
	held     map[uint64]map[Identity]Amount
	released map[uint64]release

	// OnPayout roda depois do crédito ao vencedor, sem lock, como o código do
	// destinatário ao receber valor. Se retornar erro, o pagamento é revertido.
	OnPayout func(ctx context.Context, to Identity, amount Amount, betID uint64) error
}

type release struct {
	to     Identity
	amount Amount
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		balances: make(map[Identity]Amount),
		held:     make(map[uint64]map[Identity]Amount),
		released: make(map[uint64]release),
	}
}

// Deposit adiciona saldo a uma conta
func (v *MemoryVault) Deposit(to Identity, amount Amount) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[to] += amount
}

func (v *MemoryVault) Balance(who Identity) Amount {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[who]
}

// Held retorna o total em custódia para uma aposta.
func (v *MemoryVault) Held(betID uint64) Amount {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.heldLocked(betID)
}

// TotalHeld retorna a custódia somada de todas as apostas.
func (v *MemoryVault) TotalHeld() Amount {
	v.mu.Lock()
	defer v.mu.Unlock()
	var total Amount
	for id := range v.held {
		total += v.heldLocked(id)
	}
	return total
}

func (v *MemoryVault) heldLocked(betID uint64) Amount {
	var total Amount
	for _, amt := range v.held[betID] {
		total += amt
	}
	return total
}

func (v *MemoryVault) Capture(ctx context.Context, from Identity, amount Amount, betID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balances[from] < amount {
		return ErrInsufficientFunds
	}
	v.balances[from] -= amount
	if v.held[betID] == nil {
		v.held[betID] = make(map[Identity]Amount)
	}
	v.held[betID][from] += amount
	return nil
}

func (v *MemoryVault) Refund(ctx context.Context, to Identity, amount Amount, betID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.held[betID][to] < amount {
		return fmt.Errorf("refund bet %d: held %d < %d", betID, v.held[betID][to], amount)
	}
	v.held[betID][to] -= amount
	if v.held[betID][to] == 0 {
		delete(v.held[betID], to)
	}
	v.balances[to] += amount
	return nil
}

func (v *MemoryVault) Payout(ctx context.Context, to Identity, amount Amount, betID uint64) error {
	v.mu.Lock()
	held := v.heldLocked(betID)
	if r, ok := v.released[betID]; ok && held == 0 && r == (release{to, amount}) {
		v.mu.Unlock()
		return nil
	}
	if held != amount {
		v.mu.Unlock()
		return fmt.Errorf("payout bet %d: held %d != %d", betID, held, amount)
	}
	holds := v.held[betID]
	delete(v.held, betID)
	v.balances[to] += amount
	v.released[betID] = release{to, amount}
	hook := v.OnPayout
	v.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, to, amount, betID); err != nil {
		v.mu.Lock()
		v.balances[to] -= amount
		v.held[betID] = holds
		delete(v.released, betID)
		v.mu.Unlock()
		return fmt.Errorf("payout bet %d: recipient rejected: %w", betID, err)
	}
	return nil
}
