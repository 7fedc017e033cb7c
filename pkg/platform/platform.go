// pkg/platform/platform.go
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Done is returned by TableIterator.Next when the enumeration is exhausted.
var Done = errors.New("no more tables")

// TableDescriptor describes one table yielded during enumeration.
// Columns holds the flattened leaf column names; nested record fields are
// rendered as dotted paths. LastModified is nil when the platform does not
// report a modification time.
type TableDescriptor struct {
	TableName    string
	DatasetID    string
	Columns      []string
	LastModified *time.Time
}

// TableIterator lazily produces table descriptors for one dataset.
// The sequence is finite and consumed once; it is not restartable.
type TableIterator interface {
	// Next returns the next table descriptor, Done when the enumeration is
	// exhausted, or a PlatformError if the platform call failed.
	Next() (*TableDescriptor, error)
}

// DataPlatform defines the interface for data warehouse connectors
type DataPlatform interface {
	// Name returns the platform selector this connector implements
	Name() string

	// ListDatasets enumerates all dataset identifiers
	ListDatasets(ctx context.Context) ([]string, error)

	// ListTables enumerates the tables of a dataset lazily. Tables whose
	// flattened column list is empty are skipped, never yielded.
	ListTables(ctx context.Context, datasetID string) TableIterator

	// ApplyPolicyTag attaches the governance tag to a column. Applying the
	// same tag twice must not corrupt the table schema.
	ApplyPolicyTag(ctx context.Context, datasetID, tableName, columnName, tagID string) error

	// SampleRows fetches up to limit rows from a table, read-only
	SampleRows(ctx context.Context, datasetID, tableName string, limit int) ([]map[string]any, error)

	// Close releases the underlying connection resources
	Close() error
}

// PlatformError wraps a failure from a platform enumeration, sampling, or
// tag-apply call.
type PlatformError struct {
	Platform string
	Op       string
	Err      error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

func newPlatformError(platform, op string, err error) *PlatformError {
	return &PlatformError{Platform: platform, Op: op, Err: err}
}
