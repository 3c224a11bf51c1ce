// Package diagstore persists drained asyncio diagnostics (the output of
// EventSet.DrainErrInfo) beyond process lifetime, so a batch command's
// failures can be inspected after the command that produced them has
// exited. It is a downstream archive only — it holds no opinion about an
// EventSet's own in-memory state, which never survives a restart.
package diagstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, registers as "sqlite"

	"github.com/tonimelisma/onedrive-client/internal/asyncio"
)

// Record is one archived diagnostic row.
type Record struct {
	ID         int64
	BatchID    string
	APIName    string
	AppFile    string
	AppFunc    string
	AppLine    int
	AppVersion string
	OpCounter  uint64
	OccurredAt time.Time
	Status     string
	Message    string
	Frames     []asyncio.Frame
	RecordedAt time.Time
}

// Store is a SQLite-backed archive of ErrInfo records, grouped by batch ID.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the diagnostics database at dbPath, applying any
// pending migrations. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("diagstore: opening %s: %w", dbPath, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("diagstore: setting WAL mode: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch archives every ErrInfo drained from one batch under batchID.
// Individual row failures are logged and skipped rather than aborting the
// whole batch, since archival is best-effort diagnostics, not a ledger of
// record.
func (s *Store) SaveBatch(ctx context.Context, batchID string, infos []asyncio.ErrInfo) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO diagnostics (
			batch_id, api_name, app_file, app_func, app_line, app_version,
			op_counter, occurred_at, status, message, frames_json, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("diagstore: preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, info := range infos {
		framesJSON, err := json.Marshal(info.Stack.Frames)
		if err != nil {
			s.logger.Warn("diagstore: failed to marshal frames, archiving without them",
				slog.String("batch_id", batchID),
				slog.Uint64("counter", info.Counter),
				slog.String("error", err.Error()),
			)
			framesJSON = []byte("[]")
		}

		_, err = stmt.ExecContext(ctx,
			batchID, info.APIName, info.AppFile, info.AppFunc, info.AppLine, info.AppVersion,
			info.Counter, info.Timestamp.UTC().Format(time.RFC3339Nano), info.Status.String(),
			info.Stack.Message, string(framesJSON), now,
		)
		if err != nil {
			s.logger.Warn("diagstore: failed to archive diagnostic row",
				slog.String("batch_id", batchID),
				slog.Uint64("counter", info.Counter),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// ListByBatch returns every archived record for batchID, oldest first.
func (s *Store) ListByBatch(ctx context.Context, batchID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, api_name, app_file, app_func, app_line, app_version,
			op_counter, occurred_at, status, message, frames_json, recorded_at
		FROM diagnostics WHERE batch_id = ? ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("diagstore: querying batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		var (
			rec                    Record
			occurredAt, recordedAt string
			framesJSON             string
		)

		if err := rows.Scan(
			&rec.ID, &rec.BatchID, &rec.APIName, &rec.AppFile, &rec.AppFunc, &rec.AppLine,
			&rec.AppVersion, &rec.OpCounter, &occurredAt, &rec.Status, &rec.Message,
			&framesJSON, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("diagstore: scanning row: %w", err)
		}

		rec.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("diagstore: parsing occurred_at: %w", err)
		}

		rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("diagstore: parsing recorded_at: %w", err)
		}

		if err := json.Unmarshal([]byte(framesJSON), &rec.Frames); err != nil {
			return nil, fmt.Errorf("diagstore: unmarshaling frames: %w", err)
		}

		out = append(out, rec)
	}

	return out, rows.Err()
}
