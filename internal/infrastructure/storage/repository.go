package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"bankdapp/internal/application"
	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Dialect struct {
	Name        string
	Schema      []string
	InsertEvent string
	UpsertChunk string
}

type Repository struct {
	db      *sql.DB
	dialect Dialect
}

func NewRepository(db *sql.DB, dialect Dialect) (*Repository, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	for _, stmt := range dialect.Schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("%s schema: %w", dialect.Name, err)
		}
	}
	return &Repository{db: db, dialect: dialect}, nil
}

func (r *Repository) LoadChunk(ctx context.Context, key application.ChunkKey) ([]domain.TransferEvent, bool, error) {
	ctx, span := r.startSpan(ctx, "LoadChunk", key)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var count int
	err := r.db.QueryRowContext(ctx, `SELECT event_count FROM event_chunks
		WHERE chain_id = ? AND contract = ? AND kind = ? AND from_block = ? AND to_block = ?`,
		key.ChainID, contractKey(key.Contract), string(key.Kind), key.FromBlock, key.ToBlock).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		recordSpanError(span, err)
		return nil, false, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT block_number, tx_hash, log_index, account, amount FROM transfer_events
		WHERE chain_id = ? AND contract = ? AND kind = ? AND block_number >= ? AND block_number <= ?
		ORDER BY block_number ASC, log_index ASC`,
		key.ChainID, contractKey(key.Contract), string(key.Kind), key.FromBlock, key.ToBlock)
	if err != nil {
		recordSpanError(span, err)
		return nil, false, err
	}
	defer rows.Close()

	events := make([]domain.TransferEvent, 0, count)
	for rows.Next() {
		event := domain.TransferEvent{Kind: key.Kind}
		var account, amount string
		if err := rows.Scan(&event.BlockNumber, &event.TxHash, &event.LogIndex, &account, &amount); err != nil {
			recordSpanError(span, err)
			return nil, false, err
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			err := fmt.Errorf("invalid stored amount %q", amount)
			recordSpanError(span, err)
			return nil, false, err
		}
		event.Account = common.HexToAddress(account)
		event.Amount = value
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, false, err
	}
	// A chunk row without all of its events is treated as missing.
	if len(events) != count {
		return nil, false, nil
	}
	return events, true, nil
}

func (r *Repository) SaveChunk(ctx context.Context, key application.ChunkKey, events []domain.TransferEvent) error {
	ctx, span := r.startSpan(ctx, "SaveChunk", key)
	defer span.End()
	span.SetAttributes(attribute.Int("event.count", len(events)))
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	stmt, err := tx.PrepareContext(ctx, r.dialect.InsertEvent)
	if err != nil {
		_ = tx.Rollback()
		recordSpanError(span, err)
		return err
	}
	defer stmt.Close()

	for _, event := range events {
		if event.Amount == nil {
			_ = tx.Rollback()
			err := fmt.Errorf("event %s/%d has no amount", event.TxHash, event.LogIndex)
			recordSpanError(span, err)
			return err
		}
		if _, err := stmt.ExecContext(ctx, key.ChainID, contractKey(key.Contract), string(key.Kind),
			event.BlockNumber, event.TxHash, event.LogIndex, strings.ToLower(event.Account.Hex()), event.Amount.String()); err != nil {
			_ = tx.Rollback()
			recordSpanError(span, err)
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, r.dialect.UpsertChunk,
		key.ChainID, contractKey(key.Contract), string(key.Kind), key.FromBlock, key.ToBlock, len(events)); err != nil {
		_ = tx.Rollback()
		recordSpanError(span, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) startSpan(ctx context.Context, op string, key application.ChunkKey) (context.Context, trace.Span) {
	return otel.Tracer("bankdapp/storage").Start(ctx, r.dialect.Name+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", r.dialect.Name),
			attribute.String("chunk", key.String()),
		))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func contractKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}
