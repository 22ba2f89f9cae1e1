package repo

// schema cria as três estruturas persistidas do escrow: contador, apostas e índice de abertas.
const schema = `
CREATE TABLE IF NOT EXISTS escrow_meta (
	singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	bet_count BIGINT NOT NULL DEFAULT 0
);
INSERT INTO escrow_meta (singleton, bet_count) VALUES (TRUE, 0) ON CONFLICT DO NOTHING;

CREATE TABLE IF NOT EXISTS escrow_bets (
	id          BIGINT PRIMARY KEY,
	challenger  TEXT NOT NULL,
	accepter    TEXT,
	name        TEXT NOT NULL,
	conditions  TEXT NOT NULL,
	price       BIGINT NOT NULL CHECK (price > 0),
	state       TEXT NOT NULL,
	winner      TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	accepted_at TIMESTAMPTZ,
	resolved_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS escrow_available (
	bet_id BIGINT PRIMARY KEY REFERENCES escrow_bets(id)
);
`
