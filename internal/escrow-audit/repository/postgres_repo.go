package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS escrow_transitions (
	id          BIGSERIAL PRIMARY KEY,
	seq         BIGINT NOT NULL,
	kind        TEXT NOT NULL,
	bet_id      BIGINT NOT NULL,
	challenger  TEXT NOT NULL,
	accepter    TEXT,
	name        TEXT NOT NULL,
	price       BIGINT NOT NULL DEFAULT 0,
	payout      BIGINT NOT NULL DEFAULT 0,
	winner      TEXT,
	at          TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (bet_id, kind)
);
`

// PostgresRepo grava a trilha de auditoria das transições do escrow
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// InsertTransition grava o record; cada aposta tem no máximo uma linha por kind,
// então reentrega do Kafka retorna inserted=false sem erro
func (r *PostgresRepo) InsertTransition(ctx context.Context, e events.EscrowTransition) (bool, error) {
	const q = `
		INSERT INTO escrow_transitions
		  (seq, kind, bet_id, challenger, accepter, name, price, payout, winner, at)
		VALUES
		  ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,NULLIF($9,''),$10)
		ON CONFLICT (bet_id, kind) DO NOTHING
	`
	res, err := r.DB.ExecContext(ctx, q,
		e.Seq, e.Kind, e.BetID, e.Challenger, e.Accepter, e.Name,
		e.Price, e.Payout, e.Winner, e.At,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
