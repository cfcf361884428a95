package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bankdapp/internal/infrastructure/storage"

	_ "github.com/go-sql-driver/mysql"
)

var Dialect = storage.Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS event_chunks (
			chain_id BIGINT UNSIGNED NOT NULL,
			contract VARCHAR(42) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			from_block BIGINT UNSIGNED NOT NULL,
			to_block BIGINT UNSIGNED NOT NULL,
			event_count INT UNSIGNED NOT NULL,
			PRIMARY KEY (chain_id, contract, kind, from_block, to_block)
		)`,
		`CREATE TABLE IF NOT EXISTS transfer_events (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			chain_id BIGINT UNSIGNED NOT NULL,
			contract VARCHAR(42) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			log_index BIGINT UNSIGNED NOT NULL,
			account VARCHAR(42) NOT NULL,
			amount DECIMAL(65,0) NOT NULL,
			PRIMARY KEY (id),
			UNIQUE KEY transfer_events_unique (chain_id, contract, tx_hash, log_index),
			KEY transfer_events_range_idx (chain_id, contract, kind, block_number)
		)`,
	},
	InsertEvent: `INSERT IGNORE INTO transfer_events (chain_id, contract, kind, block_number, tx_hash, log_index, account, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	UpsertChunk: `INSERT INTO event_chunks (chain_id, contract, kind, from_block, to_block, event_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE event_count = VALUES(event_count)`,
}

func NewRepository(dsn string) (*storage.Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := storage.NewRepository(db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}
