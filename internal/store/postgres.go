// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/holosim/internal/sim"
)

// poolIface abstracts the pgx pool operations the journal needs, so tests
// can substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// fragmentRecord is the JSON wire form of a fragment inside a batch row.
type fragmentRecord struct {
	Key   string `json:"key,omitempty"`
	Tick  uint64 `json:"tick"`
	Value any    `json:"value"`
}

// PostgresJournal implements Journal on PostgreSQL. Each batch is one row;
// fragments travel as a jsonb array. The tick column carries a unique
// constraint, which is what surfaces duplicate appends.
type PostgresJournal struct {
	pool poolIface
}

// NewPostgresJournal creates a journal over an established pool.
func NewPostgresJournal(pool poolIface) *PostgresJournal {
	return &PostgresJournal{pool: pool}
}

// Connect opens a pgx pool for the given DSN and waits for the database to
// answer pings, backing off fibonacci-style up to five attempts.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("JOURNAL_CONNECT_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("JOURNAL_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// Close closes the underlying pool.
func (j *PostgresJournal) Close() {
	j.pool.Close()
}

// Append persists a batch row.
func (j *PostgresJournal) Append(ctx context.Context, batch Batch) error {
	records := make([]fragmentRecord, len(batch.Fragments))
	for i, f := range batch.Fragments {
		records[i] = fragmentRecord{Key: f.Key, Tick: f.Tick, Value: f.Value}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return oops.Code("JOURNAL_ENCODE_FAILED").With("tick", batch.Tick).Wrap(err)
	}

	_, err = j.pool.Exec(ctx,
		`INSERT INTO tick_batches (id, tick, fragments, created_at)
		 VALUES ($1, $2, $3, $4)`,
		batch.ID.String(), batch.Tick, payload, time.Now(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateTick
		}
		return oops.Code("JOURNAL_APPEND_FAILED").
			With("batch_id", batch.ID.String()).
			With("tick", batch.Tick).
			Wrap(err)
	}
	return nil
}

// Replay returns batches with tick greater than afterTick in tick order.
func (j *PostgresJournal) Replay(ctx context.Context, afterTick uint64, limit int) ([]Batch, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT id, tick, fragments FROM tick_batches
		 WHERE tick > $1 ORDER BY tick LIMIT $2`,
		afterTick, limit,
	)
	if err != nil {
		return nil, oops.Code("JOURNAL_REPLAY_FAILED").With("after_tick", afterTick).Wrap(err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var (
			idStr   string
			tick    uint64
			payload []byte
		)
		if err := rows.Scan(&idStr, &tick, &payload); err != nil {
			return nil, oops.Code("JOURNAL_REPLAY_FAILED").With("operation", "scan batch row").Wrap(err)
		}

		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("JOURNAL_CORRUPT_BATCH").With("id", idStr).Wrap(err)
		}

		var records []fragmentRecord
		if err := json.Unmarshal(payload, &records); err != nil {
			return nil, oops.Code("JOURNAL_CORRUPT_BATCH").With("id", idStr).Wrap(err)
		}
		frags := make([]sim.Fragment, len(records))
		for i, r := range records {
			frags[i] = sim.Fragment{Key: r.Key, Tick: r.Tick, Value: r.Value}
		}

		batches = append(batches, Batch{ID: id, Tick: tick, Fragments: frags})
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("JOURNAL_REPLAY_FAILED").With("operation", "iterate batches").Wrap(err)
	}
	return batches, nil
}

// LastTick returns the highest journaled tick.
func (j *PostgresJournal) LastTick(ctx context.Context) (uint64, error) {
	var tick uint64
	err := j.pool.QueryRow(ctx,
		`SELECT tick FROM tick_batches ORDER BY tick DESC LIMIT 1`,
	).Scan(&tick)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrJournalEmpty
	}
	if err != nil {
		return 0, oops.Code("JOURNAL_LAST_TICK_FAILED").Wrap(err)
	}
	return tick, nil
}
