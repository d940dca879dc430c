// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cids/internal/logging"
)

// DuckDBStore implements AlertStore, ResultSink and CorrelationSink using
// DuckDB as the backend storage.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a new DuckDB-backed store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// Name identifies the store in sink logs and metrics.
func (s *DuckDBStore) Name() string {
	return "duckdb"
}

const alertSelectColumns = `id, uuid, class, identifier, severity, title, message, metadata,
		acknowledged, acknowledged_by, acknowledged_at, created_at`

const resultSelectColumns = `identifier, sequence, elapsed_time, average_offset, mean_interval,
		reference_interval, accumulated_offset, identification_error, skew,
		l_plus, l_minus, mu_e, sigma_e, alarm, forced, phase`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAlertRow scans a single alert row with nullable fields handling.
func scanAlertRow(scanner rowScanner, alert *Alert) error {
	var acknowledgedBy sql.NullString
	var identifier int64
	var metadata interface{} // DuckDB returns JSON as map[string]interface{}

	if err := scanner.Scan(
		&alert.ID,
		&alert.UUID,
		&alert.Class,
		&identifier,
		&alert.Severity,
		&alert.Title,
		&alert.Message,
		&metadata,
		&alert.Acknowledged,
		&acknowledgedBy,
		&alert.AcknowledgedAt,
		&alert.CreatedAt,
	); err != nil {
		return err
	}

	alert.Identifier = Identifier(identifier)
	if acknowledgedBy.Valid {
		alert.AcknowledgedBy = acknowledgedBy.String
	}

	switch m := metadata.(type) {
	case nil:
	case string:
		alert.Metadata = json.RawMessage(m)
	case []byte:
		alert.Metadata = append(json.RawMessage(nil), m...)
	default:
		if b, err := json.Marshal(m); err == nil {
			alert.Metadata = b
		}
	}

	return nil
}

func scanResultRow(scanner rowScanner, r *BatchResult) error {
	var identifier int64
	var sequence int64
	if err := scanner.Scan(
		&identifier,
		&sequence,
		&r.ElapsedTime,
		&r.AverageOffset,
		&r.MeanInterval,
		&r.ReferenceInterval,
		&r.AccumulatedOffset,
		&r.IdentificationError,
		&r.Skew,
		&r.LPlus,
		&r.LMinus,
		&r.MuE,
		&r.SigmaE,
		&r.Alarm,
		&r.Forced,
		&r.Phase,
	); err != nil {
		return err
	}
	r.Identifier = Identifier(identifier)
	r.Sequence = uint64(sequence)
	return nil
}

// InitSchema creates the detection tables if they don't exist.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return ErrStoreNotReady
	}

	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS detection_alerts_id_seq`,

		`CREATE TABLE IF NOT EXISTS detection_alerts (
			id BIGINT PRIMARY KEY DEFAULT nextval('detection_alerts_id_seq'),
			uuid TEXT NOT NULL,
			class TEXT NOT NULL,
			identifier BIGINT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSON,
			acknowledged BOOLEAN DEFAULT false,
			acknowledged_by TEXT,
			acknowledged_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// One row per processed batch, keyed by identifier and sequence.
		`CREATE TABLE IF NOT EXISTS batch_results (
			identifier BIGINT NOT NULL,
			sequence BIGINT NOT NULL,
			elapsed_time DOUBLE NOT NULL,
			average_offset DOUBLE NOT NULL,
			mean_interval DOUBLE NOT NULL,
			reference_interval DOUBLE NOT NULL,
			accumulated_offset DOUBLE NOT NULL,
			identification_error DOUBLE NOT NULL,
			skew DOUBLE NOT NULL,
			l_plus DOUBLE NOT NULL,
			l_minus DOUBLE NOT NULL,
			mu_e DOUBLE NOT NULL,
			sigma_e DOUBLE NOT NULL,
			alarm TEXT NOT NULL DEFAULT '',
			forced BOOLEAN NOT NULL DEFAULT false,
			phase TEXT NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (identifier, sequence)
		)`,

		`CREATE TABLE IF NOT EXISTS correlation_results (
			a BIGINT NOT NULL,
			b BIGINT NOT NULL,
			samples INTEGER NOT NULL,
			coefficient DOUBLE NOT NULL,
			verdict TEXT NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_alerts_identifier ON detection_alerts(identifier)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_class ON detection_alerts(class)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON detection_alerts(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON detection_alerts(acknowledged)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	// Force a checkpoint after creating tables to flush the WAL.
	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after detection schema initialization")
	}

	return nil
}

// SaveAlert persists a new alert and assigns its ID.
func (s *DuckDBStore) SaveAlert(ctx context.Context, alert *Alert) error {
	// Use RETURNING to get the generated ID (DuckDB doesn't support LastInsertId with sequences)
	query := `INSERT INTO detection_alerts
		(uuid, class, identifier, severity, title, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	// DuckDB rejects json.Marshaler values but accepts strings for JSON columns.
	var metadata interface{}
	if len(alert.Metadata) > 0 {
		metadata = string(alert.Metadata)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, query,
		alert.UUID,
		string(alert.Class),
		int64(alert.Identifier),
		string(alert.Severity),
		alert.Title,
		alert.Message,
		metadata,
		alert.CreatedAt,
	).Scan(&alert.ID)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// GetAlert retrieves an alert by ID. ErrAlertNotFound is returned for an
// unknown ID.
func (s *DuckDBStore) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	query := `SELECT ` + alertSelectColumns + ` FROM detection_alerts WHERE id = ?`

	alert := &Alert{}
	err := scanAlertRow(s.db.QueryRowContext(ctx, query, id), alert)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// ListAlerts retrieves alerts, newest first, with optional filtering.
// All user values are bound as parameters.
func (s *DuckDBStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	query := `SELECT ` + alertSelectColumns + ` FROM detection_alerts WHERE 1=1`
	args := make([]interface{}, 0)

	query, args = applyAlertFilters(query, args, filter)
	query += " ORDER BY created_at DESC, id DESC"
	query, args = applyPagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var alert Alert
		if err := scanAlertRow(rows, &alert); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// applyAlertFilters adds WHERE clauses for alert filtering.
func applyAlertFilters(query string, args []interface{}, filter AlertFilter) (string, []interface{}) {
	if len(filter.Classes) > 0 {
		query += fmt.Sprintf(" AND class IN (%s)", buildPlaceholders(len(filter.Classes)))
		for _, c := range filter.Classes {
			args = append(args, string(c))
		}
	}

	if filter.Identifier != nil {
		query += " AND identifier = ?"
		args = append(args, int64(*filter.Identifier))
	}

	if filter.Acknowledged != nil {
		query += " AND acknowledged = ?"
		args = append(args, *filter.Acknowledged)
	}

	if filter.StartDate != nil {
		query += " AND created_at >= ?"
		args = append(args, *filter.StartDate)
	}

	if filter.EndDate != nil {
		query += " AND created_at <= ?"
		args = append(args, *filter.EndDate)
	}

	return query, args
}

// applyPagination adds LIMIT and OFFSET clauses, defaulting to 100 rows.
func applyPagination(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	} else {
		query += " LIMIT 100"
	}

	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	return query, args
}

// buildPlaceholders creates a comma-separated string of ? placeholders.
func buildPlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

// AcknowledgeAlert marks an alert as acknowledged.
func (s *DuckDBStore) AcknowledgeAlert(ctx context.Context, id int64, acknowledgedBy string) error {
	query := `UPDATE detection_alerts
		SET acknowledged = true, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, acknowledgedBy, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// GetAlertCount returns the count of alerts matching the filter.
func (s *DuckDBStore) GetAlertCount(ctx context.Context, filter AlertFilter) (int, error) {
	query := `SELECT COUNT(*) FROM detection_alerts WHERE 1=1`
	args := make([]interface{}, 0)

	query, args = applyAlertFilters(query, args, filter)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	return count, nil
}

// WriteResult persists one batch result. A replayed sequence replaces the
// earlier row.
func (s *DuckDBStore) WriteResult(ctx context.Context, r *BatchResult) error {
	query := `INSERT OR REPLACE INTO batch_results (` + resultSelectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		int64(r.Identifier),
		int64(r.Sequence),
		r.ElapsedTime,
		r.AverageOffset,
		r.MeanInterval,
		r.ReferenceInterval,
		r.AccumulatedOffset,
		r.IdentificationError,
		r.Skew,
		r.LPlus,
		r.LMinus,
		r.MuE,
		r.SigmaE,
		string(r.Alarm),
		r.Forced,
		string(r.Phase),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch result: %w", err)
	}
	return nil
}

// WriteCorrelation persists one pairwise correlation result.
func (s *DuckDBStore) WriteCorrelation(ctx context.Context, c *CorrelationResult) error {
	query := `INSERT INTO correlation_results (a, b, samples, coefficient, verdict)
		VALUES (?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		int64(c.A), int64(c.B), c.Samples, c.Coefficient, string(c.Verdict),
	); err != nil {
		return fmt.Errorf("failed to insert correlation result: %w", err)
	}
	return nil
}

// ListResults returns the most recent batch results of id in ascending
// sequence order.
func (s *DuckDBStore) ListResults(ctx context.Context, id Identifier, limit int) ([]BatchResult, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + resultSelectColumns + ` FROM (
			SELECT * FROM batch_results WHERE identifier = ?
			ORDER BY sequence DESC LIMIT ?
		) ORDER BY sequence ASC`

	rows, err := s.db.QueryContext(ctx, query, int64(id), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch results: %w", err)
	}
	defer rows.Close()

	var results []BatchResult
	for rows.Next() {
		var r BatchResult
		if err := scanResultRow(rows, &r); err != nil {
			return nil, fmt.Errorf("failed to scan batch result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
