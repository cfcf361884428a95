package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"bankdapp/internal/infrastructure/storage"

	_ "modernc.org/sqlite"
)

var Dialect = storage.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS event_chunks (
			chain_id INTEGER NOT NULL,
			contract TEXT NOT NULL,
			kind TEXT NOT NULL,
			from_block INTEGER NOT NULL,
			to_block INTEGER NOT NULL,
			event_count INTEGER NOT NULL,
			PRIMARY KEY (chain_id, contract, kind, from_block, to_block)
		)`,
		`CREATE TABLE IF NOT EXISTS transfer_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chain_id INTEGER NOT NULL,
			contract TEXT NOT NULL,
			kind TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			tx_hash TEXT NOT NULL,
			log_index INTEGER NOT NULL,
			account TEXT NOT NULL,
			amount TEXT NOT NULL,
			UNIQUE(chain_id, contract, tx_hash, log_index)
		)`,
		`CREATE INDEX IF NOT EXISTS transfer_events_range_idx
			ON transfer_events (chain_id, contract, kind, block_number)`,
	},
	InsertEvent: `INSERT INTO transfer_events (chain_id, contract, kind, block_number, tx_hash, log_index, account, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain_id, contract, tx_hash, log_index) DO NOTHING`,
	UpsertChunk: `INSERT INTO event_chunks (chain_id, contract, kind, from_block, to_block, event_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain_id, contract, kind, from_block, to_block) DO UPDATE SET event_count = excluded.event_count`,
}

func NewRepository(dbPath string) (*storage.Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	repo, err := storage.NewRepository(db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}
