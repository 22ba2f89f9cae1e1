package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
)

// Postgres implementa escrow.Store em banco Postgres
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de apostas
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var _ escrow.Store = (*Postgres)(nil)

// Migrate cria as tabelas se ainda não existirem
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate escrow schema: %w", err)
	}
	return nil
}

func (p *Postgres) NextID(ctx context.Context) (uint64, error) {
	var n uint64
	if err := p.db.QueryRowContext(ctx, `SELECT bet_count + 1 FROM escrow_meta`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Create insere a aposta OPEN, adiciona ao índice e avança o contador na mesma transação
func (p *Postgres) Create(ctx context.Context, b escrow.Bet) error {
	return db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var count uint64
		if err := tx.QueryRowContext(ctx, `SELECT bet_count FROM escrow_meta FOR UPDATE`).Scan(&count); err != nil {
			return err
		}
		if b.ID != count+1 {
			return fmt.Errorf("create bet %d: expected id %d", b.ID, count+1)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO escrow_bets (id, challenger, accepter, name, conditions, price, state, created_at)
			VALUES ($1,$2,NULL,$3,$4,$5,'OPEN',$6)`,
			b.ID, b.Challenger.Hex(), b.Name, b.Conditions, b.Price, b.CreatedAt,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO escrow_available (bet_id) VALUES ($1)`, b.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE escrow_meta SET bet_count = $1`, b.ID)
		return err
	})
}

func (p *Postgres) Get(ctx context.Context, id uint64) (escrow.Bet, error) {
	var (
		b                    escrow.Bet
		challenger, state    string
		accepter, winner     sql.NullString
		acceptedAt, resolved sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, challenger, accepter, name, conditions, price, state, winner, created_at, accepted_at, resolved_at
		FROM escrow_bets WHERE id=$1`, id,
	).Scan(&b.ID, &challenger, &accepter, &b.Name, &b.Conditions, &b.Price, &state, &winner, &b.CreatedAt, &acceptedAt, &resolved)
	if err == sql.ErrNoRows {
		return escrow.Bet{}, escrow.ErrUnknownBet
	}
	if err != nil {
		return escrow.Bet{}, err
	}

	b.Challenger = common.HexToAddress(challenger)
	b.State = escrow.State(state)
	if accepter.Valid {
		b.Accepter = common.HexToAddress(accepter.String)
	}
	if winner.Valid {
		b.Winner = common.HexToAddress(winner.String)
	}
	if acceptedAt.Valid {
		b.AcceptedAt = acceptedAt.Time
	}
	if resolved.Valid {
		b.ResolvedAt = resolved.Time
	}
	return b, nil
}

// Accept grava o accepter e tira a aposta do índice de abertas
// O UPDATE condicional garante que só uma chamada ganha a aposta
func (p *Postgres) Accept(ctx context.Context, id uint64, accepter escrow.Identity, at time.Time) error {
	return db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE escrow_bets SET accepter=$2, state='ACCEPTED', accepted_at=$3
			WHERE id=$1 AND state='OPEN' AND accepter IS NULL`, id, accepter.Hex(), at)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return stateError(ctx, tx, id, map[escrow.State]error{
				escrow.StateAccepted: escrow.ErrAlreadyAccepted,
				escrow.StateResolved: escrow.ErrAlreadyAccepted,
			})
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM escrow_available WHERE bet_id=$1`, id)
		return err
	})
}

func (p *Postgres) Resolve(ctx context.Context, id uint64, winner escrow.Identity, at time.Time) error {
	return db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE escrow_bets SET state='RESOLVED', winner=$2, resolved_at=$3
			WHERE id=$1 AND state='ACCEPTED'`, id, winner.Hex(), at)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return stateError(ctx, tx, id, map[escrow.State]error{
				escrow.StateOpen:     escrow.ErrNotYetAccepted,
				escrow.StateResolved: escrow.ErrAlreadyResolved,
			})
		}
		return nil
	})
}

func (p *Postgres) Unresolve(ctx context.Context, id uint64) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE escrow_bets SET state='ACCEPTED', winner=NULL, resolved_at=NULL
		WHERE id=$1 AND state='RESOLVED'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unresolve bet %d: not resolved", id)
	}
	return nil
}

func (p *Postgres) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := p.db.QueryRowContext(ctx, `SELECT bet_count FROM escrow_meta`).Scan(&n)
	return n, err
}

func (p *Postgres) Available(ctx context.Context) ([]uint64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT bet_id FROM escrow_available ORDER BY bet_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// stateError explica por que um UPDATE condicional não afetou nenhuma linha
func stateError(ctx context.Context, tx *sql.Tx, id uint64, byState map[escrow.State]error) error {
	var state string
	err := tx.QueryRowContext(ctx, `SELECT state FROM escrow_bets WHERE id=$1`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.ErrUnknownBet
	}
	if err != nil {
		return err
	}
	if e, ok := byState[escrow.State(state)]; ok {
		return e
	}
	return fmt.Errorf("bet %d: unexpected state %s", id, state)
}
