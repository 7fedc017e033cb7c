// pkg/platform/db.go
package platform

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

// PingWithTimeout attempts to ping a database with a timeout
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- db.PingContext(pingCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-pingCtx.Done():
		return fmt.Errorf("ping timed out after %v: %w", timeout, pingCtx.Err())
	}
}

// ApplyConnectionSettings configures database connection pool settings
func ApplyConnectionSettings(db *sql.DB, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if maxIdleTime > 0 {
		db.SetConnMaxIdleTime(maxIdleTime)
	}
}

// scanRowsToMaps reads all remaining rows into column-name keyed maps.
// Byte slices are converted to strings so results serialize cleanly.
func scanRowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// columnValues extracts the named column from each row mapping, skipping
// rows where it is absent or empty.
func columnValues(rows []map[string]any, column string) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if v, ok := row[column].(string); ok && v != "" {
			values = append(values, v)
		}
	}
	return values
}

// stringValue returns the named column as a string, or "" when absent
func stringValue(row map[string]any, column string) string {
	v, _ := row[column].(string)
	return v
}

// timeValue returns the named column as a timestamp, or nil when absent
// or zero.
func timeValue(row map[string]any, column string) *time.Time {
	if t, ok := row[column].(time.Time); ok && !t.IsZero() {
		return &t
	}
	return nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// validIdentifier reports whether name is a plain unquoted identifier.
// Caller-supplied names reachable from the sample endpoint are rejected
// here instead of being interpolated into SQL.
func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
