package db

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"agentarena/internal/sim"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS arena;
CREATE TABLE IF NOT EXISTS arena.session_records (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	at          TIMESTAMPTZ NOT NULL,
	payload     JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS session_records_session_idx ON arena.session_records (session_id, id);
`

// Journal appends simulation records to Postgres, one row per record.
type Journal struct {
	db *pgxpool.Pool
}

func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{db: pool}
}

func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

func (j *Journal) Append(ctx context.Context, sessionID string, rec sim.Record) error {
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(ctx, `
		INSERT INTO arena.session_records (session_id, kind, at, payload)
		VALUES ($1, $2, $3, $4)
	`, sessionID, string(rec.Kind), rec.At, payload)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Recent returns the last limit records of a session, oldest first.
func (j *Journal) Recent(ctx context.Context, sessionID string, limit int) ([]sim.Record, error) {
	rows, err := j.db.Query(ctx, `
		SELECT payload
		FROM arena.session_records
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, sessionID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make([]sim.Record, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Count returns how many records a session has journaled.
func (j *Journal) Count(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := j.db.QueryRow(ctx, `SELECT COUNT(1) FROM arena.session_records WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func encodeRecord(rec sim.Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}

func decodeRecord(payload []byte) (sim.Record, error) {
	var rec sim.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return sim.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultRecentLimit
	case limit > maxRecentLimit:
		return maxRecentLimit
	default:
		return limit
	}
}
