// pkg/store/store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/classify"
)

// ErrNotFound indicates the requested record does not exist
var ErrNotFound = errors.New("record not found")

// Store provides relational persistence for classifications, decisions,
// change-detection cursors, and scan runs
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore opens a PostgreSQL connection pool and verifies connectivity
func NewStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	logger = logger.Named("store")

	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL")
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.logger.Info("Closing PostgreSQL connection")
	return s.db.Close()
}

// Migrate creates the persistence schema if it does not exist. The
// uniqueness constraints carry the upsert semantics of the scan pipeline.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS columns (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			table_name TEXT NOT NULL,
			dataset_id TEXT NOT NULL,
			UNIQUE (name, table_name, dataset_id)
		)`,
		`CREATE TABLE IF NOT EXISTS column_classifications (
			id BIGSERIAL PRIMARY KEY,
			column_id BIGINT NOT NULL UNIQUE REFERENCES columns(id) ON DELETE CASCADE,
			classification TEXT NOT NULL,
			confidence_score TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS policy_tag_decisions (
			id BIGSERIAL PRIMARY KEY,
			column_id BIGINT NOT NULL REFERENCES columns(id) ON DELETE CASCADE,
			decision BOOLEAN NOT NULL,
			decision_timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS table_history (
			id BIGSERIAL PRIMARY KEY,
			table_name TEXT NOT NULL,
			dataset_id TEXT NOT NULL,
			last_scan_timestamp TIMESTAMPTZ NOT NULL,
			UNIQUE (table_name, dataset_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scan_status (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			scan_start TIMESTAMPTZ NOT NULL DEFAULT now(),
			scan_end TIMESTAMPTZ
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	s.logger.Info("Schema migration complete")
	return nil
}

// UpsertClassification creates or updates the column identified by the
// finding and fully overwrites its classification. Returns the column id.
func (s *Store) UpsertClassification(ctx context.Context, finding classify.Finding) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var columnID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO columns (name, table_name, dataset_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name, table_name, dataset_id) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		finding.ColumnName, finding.TableName, finding.DatasetID,
	).Scan(&columnID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert column: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO column_classifications (column_id, classification, confidence_score)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (column_id) DO UPDATE SET
			classification = EXCLUDED.classification,
			confidence_score = EXCLUDED.confidence_score`,
		columnID, finding.Classification, finding.ConfidenceScore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert classification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit classification upsert: %w", err)
	}

	return columnID, nil
}

// GetColumn looks up a column by id
func (s *Store) GetColumn(ctx context.Context, id int64) (*Column, error) {
	var column Column
	err := s.db.GetContext(ctx, &column,
		`SELECT id, name, table_name, dataset_id FROM columns WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query column %d: %w", id, err)
	}
	return &column, nil
}

// PendingColumns returns every classification with no associated decision,
// joined with its parent column. This is the human review queue.
func (s *Store) PendingColumns(ctx context.Context) ([]PendingColumn, error) {
	var pending []PendingColumn
	err := s.db.SelectContext(ctx, &pending,
		`SELECT cc.id, cc.column_id, cc.classification, cc.confidence_score,
			c.id AS "column.id", c.name AS "column.name",
			c.table_name AS "column.table_name", c.dataset_id AS "column.dataset_id"
		 FROM column_classifications cc
		 JOIN columns c ON c.id = cc.column_id
		 WHERE NOT EXISTS (
			SELECT 1 FROM policy_tag_decisions d WHERE d.column_id = cc.column_id
		 )
		 ORDER BY cc.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending columns: %w", err)
	}
	return pending, nil
}

// RecordDecision appends a policy tag decision for a column
func (s *Store) RecordDecision(ctx context.Context, columnID int64, decision bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policy_tag_decisions (column_id, decision, decision_timestamp)
		 VALUES ($1, $2, now())`,
		columnID, decision)
	if err != nil {
		return fmt.Errorf("failed to record decision for column %d: %w", columnID, err)
	}
	return nil
}

// GetTableHistory returns the change-detection cursor for a table, or
// ErrNotFound if the table has never been scanned.
func (s *Store) GetTableHistory(ctx context.Context, tableName, datasetID string) (*TableHistory, error) {
	var history TableHistory
	err := s.db.GetContext(ctx, &history,
		`SELECT id, table_name, dataset_id, last_scan_timestamp
		 FROM table_history WHERE table_name = $1 AND dataset_id = $2`,
		tableName, datasetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query table history for %s.%s: %w", datasetID, tableName, err)
	}
	return &history, nil
}

// UpsertTableHistory advances the change-detection cursor for a table
func (s *Store) UpsertTableHistory(ctx context.Context, tableName, datasetID string, scannedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO table_history (table_name, dataset_id, last_scan_timestamp)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (table_name, dataset_id) DO UPDATE SET
			last_scan_timestamp = EXCLUDED.last_scan_timestamp`,
		tableName, datasetID, scannedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert table history for %s.%s: %w", datasetID, tableName, err)
	}
	return nil
}

// ActiveScan returns the in-progress scan, or ErrNotFound if none is running
func (s *Store) ActiveScan(ctx context.Context) (*ScanStatus, error) {
	var status ScanStatus
	err := s.db.GetContext(ctx, &status,
		`SELECT id, status, scan_start, scan_end FROM scan_status
		 WHERE status = $1 ORDER BY scan_start DESC LIMIT 1`,
		ScanInProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active scan: %w", err)
	}
	return &status, nil
}

// CreateScan records the start of a new scan run
func (s *Store) CreateScan(ctx context.Context) (*ScanStatus, error) {
	status := ScanStatus{
		ID:        uuid.New().String(),
		Status:    ScanInProgress,
		ScanStart: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_status (id, status, scan_start) VALUES ($1, $2, $3)`,
		status.ID, status.Status, status.ScanStart)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan status: %w", err)
	}

	return &status, nil
}

// FinishScan transitions a scan run to a terminal state
func (s *Store) FinishScan(ctx context.Context, id string, status ScanStatusType) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scan_status SET status = $2, scan_end = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("failed to finish scan %s: %w", id, err)
	}
	return nil
}

// LatestScan returns the most recently started scan run, or ErrNotFound
func (s *Store) LatestScan(ctx context.Context) (*ScanStatus, error) {
	var status ScanStatus
	err := s.db.GetContext(ctx, &status,
		`SELECT id, status, scan_start, scan_end FROM scan_status
		 ORDER BY scan_start DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest scan: %w", err)
	}
	return &status, nil
}
