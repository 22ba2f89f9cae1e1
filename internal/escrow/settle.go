package escrow

import "context"

type settleKey struct{}

// settleMark encadeia as apostas cujo pagamento está em andamento no contexto.
type settleMark struct {
	betID  uint64
	parent *settleMark
}

func withSettling(ctx context.Context, id uint64) context.Context {
	parent, _ := ctx.Value(settleKey{}).(*settleMark)
	return context.WithValue(ctx, settleKey{}, &settleMark{betID: id, parent: parent})
}

// insideSettle diz se a chamada vem de dentro do pagamento da aposta id.
func insideSettle(ctx context.Context, id uint64) bool {
	for m, _ := ctx.Value(settleKey{}).(*settleMark); m != nil; m = m.parent {
		if m.betID == id {
			return true
		}
	}
	return false
}

// pending devolve o canal do pagamento em andamento que ctx precisa esperar, ou nil.
func (e *Engine) pending(ctx context.Context, id uint64) chan struct{} {
	e.smu.Lock()
	defer e.smu.Unlock()
	done := e.settling[id]
	if done == nil || insideSettle(ctx, id) {
		return nil
	}
	return done
}

func (e *Engine) waitSettled(ctx context.Context, id uint64) error {
	for {
		done := e.pending(ctx, id)
		if done == nil {
			return nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// lockSettled volta com mu travado e sem pagamento em andamento para a aposta
// (a não ser que a chamada venha de dentro dele).
func (e *Engine) lockSettled(ctx context.Context, id uint64) error {
	for {
		if err := e.waitSettled(ctx, id); err != nil {
			return err
		}
		e.mu.Lock()
		if e.pending(ctx, id) == nil {
			return nil
		}
		e.mu.Unlock()
	}
}

// beginSettle e endSettle rodam com mu travado.
func (e *Engine) beginSettle(id uint64) {
	e.smu.Lock()
	e.settling[id] = make(chan struct{})
	e.smu.Unlock()
}

func (e *Engine) endSettle(id uint64) {
	e.smu.Lock()
	if done := e.settling[id]; done != nil {
		close(done)
		delete(e.settling, id)
	}
	e.smu.Unlock()
}
