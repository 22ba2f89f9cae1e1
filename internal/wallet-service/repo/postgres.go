package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/radieske/bet-escrow-poc/internal/shared/db"
)

// Postgres implementa carteiras e custódia de apostas em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	// ErrHoldMismatch: valor pedido não bate com o que está em custódia
	ErrHoldMismatch = errors.New("amount does not match held funds")
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id            UUID PRIMARY KEY,
	address       TEXT NOT NULL UNIQUE,
	balance_cents BIGINT NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
	version       BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS escrow_holds (
	id         UUID PRIMARY KEY,
	bet_id     BIGINT NOT NULL,
	depositor  TEXT NOT NULL,
	amount     BIGINT NOT NULL CHECK (amount > 0),
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (bet_id, depositor)
);
ALTER TABLE escrow_holds ADD COLUMN IF NOT EXISTS released_to TEXT;

CREATE TABLE IF NOT EXISTS wallet_ledger (
	id             BIGSERIAL PRIMARY KEY,
	wallet_id      UUID NOT NULL REFERENCES wallets(id),
	operation_type TEXT NOT NULL,
	amount_cents   BIGINT NOT NULL,
	description    TEXT NOT NULL,
	related_bet_id BIGINT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate wallet schema: %w", err)
	}
	return nil
}

// GetOrCreateWallet retorna o walletId e saldo de um endereço, criando a carteira se não existir
func (p *Postgres) GetOrCreateWallet(ctx context.Context, address string) (walletID string, balance int64, err error) {
	err = db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		walletID, balance, err = lockWallet(ctx, tx, address)
		return err
	})
	return walletID, balance, err
}

// Deposit incrementa o saldo da carteira e registra a operação no ledger
func (p *Postgres) Deposit(ctx context.Context, address string, amount int64, externalRef string) (walletID string, newBalance int64, err error) {
	err = db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var bal int64
		if walletID, bal, err = lockWallet(ctx, tx, address); err != nil {
			return err
		}
		if err := credit(ctx, tx, walletID, amount, "CREDIT", "deposit:"+externalRef, nil); err != nil {
			return err
		}
		newBalance = bal + amount
		return nil
	})
	return walletID, newBalance, err
}

// Capture debita o depositante e abre um hold HELD para a aposta
// Idempotente por (bet_id, depositor): um segundo capture igual só devolve o total
func (p *Postgres) Capture(ctx context.Context, betID uint64, address string, amount int64) (held int64, err error) {
	err = db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		walletID, bal, err := lockWallet(ctx, tx, address)
		if err != nil {
			return err
		}

		var existing int64
		err = tx.QueryRowContext(ctx,
			`SELECT amount FROM escrow_holds WHERE bet_id=$1 AND depositor=$2 AND status='HELD'`,
			betID, address).Scan(&existing)
		switch {
		case err == nil:
			if existing != amount {
				return ErrHoldMismatch
			}
			held, err = heldTotal(ctx, tx, betID)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if bal < amount {
			return ErrInsufficientFunds
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET balance_cents = balance_cents - $1, version = version + 1 WHERE id=$2`,
			amount, walletID); err != nil {
			return err
		}
		// hold antigo REFUNDED do mesmo depositante é reaproveitado; RELEASED não
		res, err := tx.ExecContext(ctx, `
			INSERT INTO escrow_holds(id, bet_id, depositor, amount, status) VALUES($1,$2,$3,$4,'HELD')
			ON CONFLICT (bet_id, depositor) DO UPDATE SET amount=EXCLUDED.amount, status='HELD', released_to=NULL
			WHERE escrow_holds.status='REFUNDED'`,
			uuid.NewString(), betID, address, amount)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrHoldMismatch
		}
		if err := ledger(ctx, tx, walletID, "ESCROW_HOLD", amount, fmt.Sprintf("capture:%d", betID), &betID); err != nil {
			return err
		}
		held, err = heldTotal(ctx, tx, betID)
		return err
	})
	return held, err
}

// Refund devolve o hold HELD de um depositante
func (p *Postgres) Refund(ctx context.Context, betID uint64, address string, amount int64) (held int64, err error) {
	err = db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var holdID string
		var holdAmount int64
		err := tx.QueryRowContext(ctx, `
			SELECT id, amount FROM escrow_holds
			WHERE bet_id=$1 AND depositor=$2 AND status='HELD' FOR UPDATE`,
			betID, address).Scan(&holdID, &holdAmount)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if holdAmount != amount {
			return ErrHoldMismatch
		}

		walletID, _, err := lockWallet(ctx, tx, address)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE escrow_holds SET status='REFUNDED' WHERE id=$1`, holdID); err != nil {
			return err
		}
		if err := credit(ctx, tx, walletID, amount, "REFUND", fmt.Sprintf("refund:%d", betID), &betID); err != nil {
			return err
		}
		held, err = heldTotal(ctx, tx, betID)
		return err
	})
	return held, err
}

// Payout libera toda a custódia da aposta para o vencedor
// O total HELD precisa ser exatamente amount; nada de outra aposta é tocado.
// Repetir um payout já feito para o mesmo endereço e valor retorna nil sem mover saldo.
func (p *Postgres) Payout(ctx context.Context, betID uint64, address string, amount int64) error {
	return db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT amount FROM escrow_holds WHERE bet_id=$1 AND status='HELD' FOR UPDATE`, betID)
		if err != nil {
			return err
		}
		var total int64
		var n int
		for rows.Next() {
			var a int64
			if err := rows.Scan(&a); err != nil {
				rows.Close()
				return err
			}
			total += a
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if n == 0 {
			return released(ctx, tx, betID, address, amount)
		}
		if total != amount {
			return ErrHoldMismatch
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE escrow_holds SET status='RELEASED', released_to=$2 WHERE bet_id=$1 AND status='HELD'`,
			betID, address); err != nil {
			return err
		}
		walletID, _, err := lockWallet(ctx, tx, address)
		if err != nil {
			return err
		}
		return credit(ctx, tx, walletID, amount, "ESCROW_PAYOUT", fmt.Sprintf("payout:%d", betID), &betID)
	})
}

// released confere se a custódia da aposta já foi paga exatamente assim
func released(ctx context.Context, tx *sql.Tx, betID uint64, address string, amount int64) error {
	var total int64
	var to sql.NullString
	var recipients int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0), MIN(released_to), COUNT(DISTINCT released_to)
		FROM escrow_holds WHERE bet_id=$1 AND status='RELEASED'`, betID).Scan(&total, &to, &recipients)
	if err != nil {
		return err
	}
	if total == 0 {
		return ErrNotFound
	}
	if total != amount || recipients != 1 || to.String != address {
		return ErrHoldMismatch
	}
	return nil
}

// Held retorna o total ainda em custódia para a aposta
func (p *Postgres) Held(ctx context.Context, betID uint64) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM escrow_holds WHERE bet_id=$1 AND status='HELD'`, betID).Scan(&total)
	return total, err
}

// lockWallet pega a carteira com lock pessimista, criando se preciso
func lockWallet(ctx context.Context, tx *sql.Tx, address string) (string, int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets(id, address, balance_cents, version) VALUES($1,$2,0,1) ON CONFLICT (address) DO NOTHING`,
		uuid.NewString(), address); err != nil {
		return "", 0, err
	}
	var id string
	var bal int64
	err := tx.QueryRowContext(ctx,
		`SELECT id, balance_cents FROM wallets WHERE address=$1 FOR UPDATE`, address).Scan(&id, &bal)
	return id, bal, err
}

func credit(ctx context.Context, tx *sql.Tx, walletID string, amount int64, op, desc string, betID *uint64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`,
		amount, walletID); err != nil {
		return err
	}
	return ledger(ctx, tx, walletID, op, amount, desc, betID)
}

func ledger(ctx context.Context, tx *sql.Tx, walletID, op string, amount int64, desc string, betID *uint64) error {
	var related any
	if betID != nil {
		related = int64(*betID)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description, related_bet_id)
		VALUES($1,$2,$3,$4,$5)`, walletID, op, amount, desc, related)
	return err
}

func heldTotal(ctx context.Context, tx *sql.Tx, betID uint64) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM escrow_holds WHERE bet_id=$1 AND status='HELD'`, betID).Scan(&total)
	return total, err
}
