package ledger

import (
	"database/sql"
)

// PostgresStore persists the snapshot into two tables. Events carry a
// unique (player_id, round_id, kind) constraint so a re-save after a
// partial write can never duplicate an entry.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_balances (
			player_id TEXT PRIMARY KEY,
			balance   BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS ledger_events (
			player_id TEXT   NOT NULL,
			round_id  TEXT   NOT NULL,
			kind      TEXT   NOT NULL,
			amount    BIGINT NOT NULL,
			ts        BIGINT NOT NULL,
			PRIMARY KEY (player_id, round_id, kind)
		);
	`)
	return err
}

func (s *PostgresStore) Save(snap Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, bal := range snap.Balances {
		if _, err := tx.Exec(`
			INSERT INTO ledger_balances (player_id, balance) VALUES ($1, $2)
			ON CONFLICT (player_id) DO UPDATE SET balance = EXCLUDED.balance`,
			id, bal,
		); err != nil {
			return err
		}
	}
	for _, e := range snap.Events {
		if _, err := tx.Exec(`
			INSERT INTO ledger_events (player_id, round_id, kind, amount, ts)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (player_id, round_id, kind) DO NOTHING`,
			e.PlayerID, e.RoundID, string(e.Kind), e.Amount, e.TS,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Load() (Snapshot, bool, error) {
	snap := Snapshot{Balances: make(map[string]int64)}

	rows, err := s.db.Query(`SELECT player_id, balance FROM ledger_balances`)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var bal int64
		if err := rows.Scan(&id, &bal); err != nil {
			return Snapshot{}, false, err
		}
		snap.Balances[id] = bal
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, false, err
	}

	evRows, err := s.db.Query(`
		SELECT player_id, round_id, kind, amount, ts
		FROM ledger_events ORDER BY ts ASC`)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer evRows.Close()
	for evRows.Next() {
		var e Event
		var kind string
		if err := evRows.Scan(&e.PlayerID, &e.RoundID, &kind, &e.Amount, &e.TS); err != nil {
			return Snapshot{}, false, err
		}
		e.Kind = Kind(kind)
		snap.Events = append(snap.Events, e)
	}
	if err := evRows.Err(); err != nil {
		return Snapshot{}, false, err
	}

	return snap, len(snap.Balances) > 0, nil
}
