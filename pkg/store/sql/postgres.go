// Package sql provides an optional Postgres-backed implementation of
// pkg/ticket.Store, for deployments that already run a Postgres instance
// for other node bookkeeping and would rather not also manage a bbolt file.
package sql

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS outgoing_ticket_indexes (
	channel_id BYTEA NOT NULL,
	epoch      INTEGER NOT NULL,
	last_index BIGINT NOT NULL,
	PRIMARY KEY (channel_id, epoch)
)`

// Store is a Postgres-backed pkg/ticket.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and ensures the backing table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LastIndex implements pkg/ticket.Store.
func (s *Store) LastIndex(channelID [32]byte, epoch uint32) (uint64, bool, error) {
	ctx := context.Background()

	var last int64
	err := s.pool.QueryRow(
		ctx,
		`SELECT last_index FROM outgoing_ticket_indexes
		 WHERE channel_id = $1 AND epoch = $2`,
		channelID[:], int32(epoch),
	).Scan(&last)

	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return uint64(last), true, nil
}

// PersistIndex implements pkg/ticket.Store.
func (s *Store) PersistIndex(channelID [32]byte, epoch uint32, index uint64) error {
	ctx := context.Background()

	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO outgoing_ticket_indexes (channel_id, epoch, last_index)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (channel_id, epoch)
		 DO UPDATE SET last_index = EXCLUDED.last_index`,
		channelID[:], int32(epoch), int64(index),
	)
	return err
}
