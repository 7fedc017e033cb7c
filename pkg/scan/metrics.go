// pkg/scan/metrics.go
package scan

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/classify"
)

// DatasetMetrics tracks metrics for a specific dataset
type DatasetMetrics struct {
	DatasetID      string
	StartTime      time.Time
	EndTime        time.Time
	ScannedTables  []string
	SkippedTables  []string
	RetriedTables  []string
	FindingsStored int
}

// NewDatasetMetrics creates a new dataset metrics tracker
func NewDatasetMetrics(datasetID string) *DatasetMetrics {
	return &DatasetMetrics{
		DatasetID:     datasetID,
		StartTime:     time.Now(),
		ScannedTables: make([]string, 0),
		SkippedTables: make([]string, 0),
		RetriedTables: make([]string, 0),
	}
}

// Duration returns the total duration of the dataset scan
func (dm *DatasetMetrics) Duration() time.Duration {
	if dm.EndTime.IsZero() {
		return time.Since(dm.StartTime)
	}
	return dm.EndTime.Sub(dm.StartTime)
}

// TotalTables returns the total number of tables considered
func (dm *DatasetMetrics) TotalTables() int {
	return len(dm.ScannedTables) + len(dm.SkippedTables) + len(dm.RetriedTables)
}

// ScanMetrics tracks metrics for a scan run
type ScanMetrics struct {
	mu               sync.Mutex
	logger           *zap.Logger
	StartTime        time.Time
	EndTime          time.Time
	DatasetMetrics   map[string]*DatasetMetrics
	ScannedTables    int
	SkippedTables    int
	RetriedTables    int
	FindingsStored   int
	FindingCounts    map[classify.Classification]int
	ExcludedDatasets int
}

// NewScanMetrics creates a new ScanMetrics instance
func NewScanMetrics(logger *zap.Logger) *ScanMetrics {
	return &ScanMetrics{
		StartTime:      time.Now(),
		DatasetMetrics: make(map[string]*DatasetMetrics),
		FindingCounts:  make(map[classify.Classification]int),
		logger:         logger,
	}
}

// StartDataset begins tracking metrics for a dataset
func (sm *ScanMetrics) StartDataset(datasetID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	dm := NewDatasetMetrics(datasetID)
	sm.DatasetMetrics[datasetID] = dm

	if sm.logger != nil {
		sm.logger.Info("Started dataset scan",
			zap.String("dataset", datasetID),
			zap.Time("startTime", dm.StartTime))
	}
}

// EndDataset completes tracking metrics for a dataset
func (sm *ScanMetrics) EndDataset(datasetID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if dm, ok := sm.DatasetMetrics[datasetID]; ok {
		dm.EndTime = time.Now()

		if sm.logger != nil {
			sm.logger.Info("Completed dataset scan",
				zap.String("dataset", datasetID),
				zap.Duration("duration", dm.Duration()),
				zap.Int("scannedTables", len(dm.ScannedTables)),
				zap.Int("skippedTables", len(dm.SkippedTables)),
				zap.Int("findings", dm.FindingsStored))
		}
	}
}

// RecordScannedTable records a table that completed classification
func (sm *ScanMetrics) RecordScannedTable(datasetID, table string, findings []classify.Finding) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.ScannedTables++
	sm.FindingsStored += len(findings)
	for _, f := range findings {
		sm.FindingCounts[f.Classification]++
	}

	if dm, ok := sm.DatasetMetrics[datasetID]; ok {
		dm.ScannedTables = append(dm.ScannedTables, table)
		dm.FindingsStored += len(findings)
	}
}

// RecordSkippedTable marks a table as skipped
func (sm *ScanMetrics) RecordSkippedTable(datasetID, table, reason string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.SkippedTables++

	if dm, ok := sm.DatasetMetrics[datasetID]; ok {
		dm.SkippedTables = append(dm.SkippedTables, table)
	}

	if sm.logger != nil {
		sm.logger.Debug("Skipped table",
			zap.String("dataset", datasetID),
			zap.String("table", table),
			zap.String("reason", reason))
	}
}

// RecordRetriedTable marks a table whose classification could not be parsed.
// Its history cursor is not advanced, so the next run picks it up again.
func (sm *ScanMetrics) RecordRetriedTable(datasetID, table string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.RetriedTables++

	if dm, ok := sm.DatasetMetrics[datasetID]; ok {
		dm.RetriedTables = append(dm.RetriedTables, table)
	}
}

// RecordExcludedDataset counts a dataset rejected by the include/exclude filter
func (sm *ScanMetrics) RecordExcludedDataset(datasetID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.ExcludedDatasets++

	if sm.logger != nil {
		sm.logger.Debug("Excluded dataset", zap.String("dataset", datasetID))
	}
}

// Complete marks the scan run as complete and logs a summary
func (sm *ScanMetrics) Complete() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.EndTime = time.Now()

	if sm.logger != nil {
		sm.logger.Info("Scan run completed",
			zap.Duration("totalDuration", sm.Duration()),
			zap.Int("datasets", len(sm.DatasetMetrics)),
			zap.Int("excludedDatasets", sm.ExcludedDatasets),
			zap.Int("scannedTables", sm.ScannedTables),
			zap.Int("skippedTables", sm.SkippedTables),
			zap.Int("retriedTables", sm.RetriedTables),
			zap.Int("findingsStored", sm.FindingsStored))
	}
}

// Duration returns the total duration of the scan run
func (sm *ScanMetrics) Duration() time.Duration {
	if sm.EndTime.IsZero() {
		return time.Since(sm.StartTime)
	}
	return sm.EndTime.Sub(sm.StartTime)
}

// Summary returns a human-readable one-line summary of the run
func (sm *ScanMetrics) Summary() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return fmt.Sprintf("scanned %d tables across %d datasets in %s (%d skipped, %d retried, %d findings)",
		sm.ScannedTables, len(sm.DatasetMetrics), formatDuration(sm.Duration()),
		sm.SkippedTables, sm.RetriedTables, sm.FindingsStored)
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
