package collector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

// Record is one stored sample.
type Record struct {
	ID         int64
	ReceivedAt time.Time
	Topic      string

	// Codec names the encoding the payload arrived in.
	Codec   string
	Sample  telemetry.Sample
	Payload []byte
}

// Store persists samples in the readings and rejected_messages tables.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open, migrated SQLite connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert records an accepted sample and returns its row id.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	if rec.Topic == "" {
		return 0, fmt.Errorf("topic is required")
	}
	if rec.Payload == nil {
		rec.Payload = []byte{}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (received_at, topic, sequence, temperature, humidity, codec, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTimestamp(rec.ReceivedAt),
		rec.Topic,
		int64(rec.Sample.Sequence),
		rec.Sample.Temperature,
		rec.Sample.Humidity,
		rec.Codec,
		rec.Payload,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting reading: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading insert id: %w", err)
	}
	return id, nil
}

// RecordRejected keeps a payload the collector could not decode.
func (s *Store) RecordRejected(ctx context.Context, receivedAt time.Time, topic, reason string, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rejected_messages (received_at, topic, reason, payload) VALUES (?, ?, ?, ?)",
		formatTimestamp(receivedAt),
		topic,
		reason,
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting rejected message: %w", err)
	}
	return nil
}

// Recent returns the newest readings first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum rows to return (default 50, max 1000)
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, received_at, topic, sequence, temperature, humidity, codec, payload
		 FROM readings
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var receivedAt string
		var seq int64

		if err := rows.Scan(&rec.ID, &receivedAt, &rec.Topic, &seq,
			&rec.Sample.Temperature, &rec.Sample.Humidity, &rec.Codec, &rec.Payload); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		rec.Sample.Sequence = uint32(seq) //nolint:gosec // written from a uint32

		rec.ReceivedAt, err = parseTimestamp(receivedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return records, nil
}

// Count returns the number of stored readings and rejected messages.
func (s *Store) Count(ctx context.Context) (readings, rejected int64, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM readings), (SELECT COUNT(*) FROM rejected_messages)",
	).Scan(&readings, &rejected)
	if err != nil {
		return 0, 0, fmt.Errorf("counting readings: %w", err)
	}
	return readings, rejected, nil
}

// Prune deletes readings and rejected messages received before now-olderThan.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := formatTimestamp(time.Now().Add(-olderThan))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var total int64
	for _, table := range []string{"readings", "rejected_messages"} {
		result, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE received_at < ?", cutoff) //nolint:gosec // table names are constants
		if err != nil {
			return 0, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return total, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing received_at: %w", err)
	}
	return t, nil
}
