// pkg/scan/scanner.go
package scan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/classify"
	"github.com/kpolley/PIIDetective/pkg/platform"
	"github.com/kpolley/PIIDetective/pkg/store"
)

// Classifier produces column findings for a formatted table document
type Classifier interface {
	Classify(ctx context.Context, document string) ([]classify.Finding, error)
}

// ClassificationStore persists findings and change-detection cursors
type ClassificationStore interface {
	UpsertClassification(ctx context.Context, finding classify.Finding) (int64, error)
	GetTableHistory(ctx context.Context, tableName, datasetID string) (*store.TableHistory, error)
	UpsertTableHistory(ctx context.Context, tableName, datasetID string, scannedAt time.Time) error
}

// Scanner walks every dataset on the data platform, classifies tables that
// changed since their last scan, and persists the findings
type Scanner struct {
	platform   platform.DataPlatform
	classifier Classifier
	store      ClassificationStore
	logger     *zap.Logger

	includeDatasets []string
	excludeDatasets []string
}

// NewScanner creates a scanner over the given platform, classifier, and store
func NewScanner(dp platform.DataPlatform, classifier Classifier, st ClassificationStore,
	includeDatasets, excludeDatasets []string, logger *zap.Logger) *Scanner {
	return &Scanner{
		platform:        dp,
		classifier:      classifier,
		store:           st,
		logger:          logger.Named("scanner"),
		includeDatasets: includeDatasets,
		excludeDatasets: excludeDatasets,
	}
}

// datasetAllowed applies the include/exclude filter. A non-empty include
// list is authoritative, and the exclude list narrows it further.
func (s *Scanner) datasetAllowed(datasetID string) bool {
	if len(s.includeDatasets) > 0 && !slices.Contains(s.includeDatasets, datasetID) {
		return false
	}
	return !slices.Contains(s.excludeDatasets, datasetID)
}

// needsScan reports whether a table changed since its last recorded scan.
// Tables with no modification timestamp are scanned once and then skipped.
func (s *Scanner) needsScan(ctx context.Context, table *platform.TableDescriptor) (bool, error) {
	history, err := s.store.GetTableHistory(ctx, table.TableName, table.DatasetID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if table.LastModified == nil {
		return false, nil
	}
	return table.LastModified.After(history.LastScanTimestamp), nil
}

// Run executes a full scan pass. Platform and store errors abort the run;
// unparseable classifier output leaves the table for the next run.
func (s *Scanner) Run(ctx context.Context) (*ScanMetrics, error) {
	metrics := NewScanMetrics(s.logger)

	datasets, err := s.platform.ListDatasets(ctx)
	if err != nil {
		return metrics, fmt.Errorf("failed to list datasets: %w", err)
	}

	s.logger.Info("Starting scan run",
		zap.String("platform", s.platform.Name()),
		zap.Int("datasets", len(datasets)))

	for _, datasetID := range datasets {
		if err := ctx.Err(); err != nil {
			return metrics, err
		}

		if datasetID == "" {
			continue
		}
		if !s.datasetAllowed(datasetID) {
			metrics.RecordExcludedDataset(datasetID)
			continue
		}

		if err := s.scanDataset(ctx, datasetID, metrics); err != nil {
			return metrics, fmt.Errorf("failed to scan dataset %s: %w", datasetID, err)
		}
	}

	metrics.Complete()
	return metrics, nil
}

func (s *Scanner) scanDataset(ctx context.Context, datasetID string, metrics *ScanMetrics) error {
	metrics.StartDataset(datasetID)
	defer metrics.EndDataset(datasetID)

	tables := s.platform.ListTables(ctx, datasetID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		table, err := tables.Next()
		if errors.Is(err, platform.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to iterate tables: %w", err)
		}

		if err := s.scanTable(ctx, table, metrics); err != nil {
			return err
		}
	}
}

func (s *Scanner) scanTable(ctx context.Context, table *platform.TableDescriptor, metrics *ScanMetrics) error {
	if len(table.Columns) == 0 {
		metrics.RecordSkippedTable(table.DatasetID, table.TableName, "no columns")
		return nil
	}

	needs, err := s.needsScan(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to check table history for %s.%s: %w", table.DatasetID, table.TableName, err)
	}
	if !needs {
		metrics.RecordSkippedTable(table.DatasetID, table.TableName, "unchanged since last scan")
		return nil
	}

	scannedAt := time.Now().UTC()
	document := classify.FormatTable(table)

	findings, err := s.classifier.Classify(ctx, document)
	if errors.Is(err, classify.ErrNoClassifications) {
		s.logger.Warn("Could not parse classification response, table will be retried",
			zap.String("dataset", table.DatasetID),
			zap.String("table", table.TableName))
		metrics.RecordRetriedTable(table.DatasetID, table.TableName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to classify table %s.%s: %w", table.DatasetID, table.TableName, err)
	}

	for _, finding := range findings {
		columnID, err := s.store.UpsertClassification(ctx, finding)
		if err != nil {
			return fmt.Errorf("failed to store classification for %s.%s.%s: %w",
				finding.DatasetID, finding.TableName, finding.ColumnName, err)
		}

		s.logger.Info("Stored column classification",
			zap.Int64("columnId", columnID),
			zap.String("dataset", finding.DatasetID),
			zap.String("table", finding.TableName),
			zap.String("column", finding.ColumnName),
			zap.String("classification", string(finding.Classification)),
			zap.String("confidence", string(finding.ConfidenceScore)))
	}

	// A clean empty result still advances the cursor so the table is not
	// re-classified until it changes again.
	if err := s.store.UpsertTableHistory(ctx, table.TableName, table.DatasetID, scannedAt); err != nil {
		return fmt.Errorf("failed to update table history for %s.%s: %w", table.DatasetID, table.TableName, err)
	}

	metrics.RecordScannedTable(table.DatasetID, table.TableName, findings)
	return nil
}
