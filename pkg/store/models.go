// pkg/store/models.go
package store

import (
	"time"

	"github.com/kpolley/PIIDetective/pkg/classify"
)

// Column identifies a physical column, unique on (name, table_name, dataset_id)
type Column struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	TableName string `db:"table_name" json:"tableName"`
	DatasetID string `db:"dataset_id" json:"datasetId"`
}

// ColumnClassification holds the current classification of a column,
// one-to-one with Column. Re-scans overwrite it in place.
type ColumnClassification struct {
	ID              int64                    `db:"id" json:"id"`
	ColumnID        int64                    `db:"column_id" json:"columnId"`
	Classification  classify.Classification  `db:"classification" json:"classification"`
	ConfidenceScore classify.ConfidenceScore `db:"confidence_score" json:"confidenceScore"`
}

// PendingColumn is a classification awaiting human review, joined with its
// parent column. A column is pending while it has no recorded decision.
type PendingColumn struct {
	ID              int64                    `db:"id" json:"id"`
	ColumnID        int64                    `db:"column_id" json:"columnId"`
	Classification  classify.Classification  `db:"classification" json:"classification"`
	ConfidenceScore classify.ConfidenceScore `db:"confidence_score" json:"confidenceScore"`
	Column          Column                   `db:"column" json:"column"`
}

// PolicyTagDecision is an append-only record of a human accept/reject
type PolicyTagDecision struct {
	ID                int64     `db:"id" json:"id"`
	ColumnID          int64     `db:"column_id" json:"columnId"`
	Decision          bool      `db:"decision" json:"decision"`
	DecisionTimestamp time.Time `db:"decision_timestamp" json:"decisionTimestamp"`
}

// TableHistory is the change-detection cursor for one table
type TableHistory struct {
	ID                int64     `db:"id" json:"id"`
	TableName         string    `db:"table_name" json:"tableName"`
	DatasetID         string    `db:"dataset_id" json:"datasetId"`
	LastScanTimestamp time.Time `db:"last_scan_timestamp" json:"lastScanTimestamp"`
}

// ScanStatusType is the lifecycle state of a scan run
type ScanStatusType string

const (
	ScanInProgress ScanStatusType = "InProgress"
	ScanCompleted  ScanStatusType = "Completed"
	ScanFailed     ScanStatusType = "Failed"
)

// ScanStatus tracks one scan run
type ScanStatus struct {
	ID        string         `db:"id" json:"id"`
	Status    ScanStatusType `db:"status" json:"status"`
	ScanStart time.Time      `db:"scan_start" json:"scanStart"`
	ScanEnd   *time.Time     `db:"scan_end" json:"scanEnd,omitempty"`
}
