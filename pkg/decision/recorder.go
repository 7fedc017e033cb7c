// pkg/decision/recorder.go
package decision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/store"
)

// Decision is a reviewer's verdict on a column classification
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// Valid reports whether the decision is a known verdict
func (d Decision) Valid() bool {
	return d == Accept || d == Reject
}

// DecisionStore provides column lookup and decision persistence
type DecisionStore interface {
	GetColumn(ctx context.Context, id int64) (*store.Column, error)
	RecordDecision(ctx context.Context, columnID int64, decision bool) error
}

// Tagger applies a policy tag to a column on the data platform
type Tagger interface {
	ApplyPolicyTag(ctx context.Context, datasetID, tableName, columnName, tagID string) error
}

// Recorder records reviewer decisions. Accepting a classification tags
// the column on the platform before the decision is persisted, so a
// recorded acceptance always reflects an applied tag.
type Recorder struct {
	store       DecisionStore
	tagger      Tagger
	policyTagID string
	logger      *zap.Logger
}

// NewRecorder creates a decision recorder
func NewRecorder(st DecisionStore, tagger Tagger, policyTagID string, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:       st,
		tagger:      tagger,
		policyTagID: policyTagID,
		logger:      logger.Named("decision"),
	}
}

// Record applies and persists a decision for a classified column.
// Returns store.ErrNotFound if the column does not exist.
func (r *Recorder) Record(ctx context.Context, columnID int64, decision Decision) error {
	if !decision.Valid() {
		return fmt.Errorf("invalid decision %q", decision)
	}

	column, err := r.store.GetColumn(ctx, columnID)
	if err != nil {
		return err
	}

	if decision == Accept {
		err := r.tagger.ApplyPolicyTag(ctx, column.DatasetID, column.TableName, column.Name, r.policyTagID)
		if err != nil {
			return fmt.Errorf("failed to apply policy tag to %s.%s.%s: %w",
				column.DatasetID, column.TableName, column.Name, err)
		}

		r.logger.Info("Applied policy tag",
			zap.Int64("columnId", columnID),
			zap.String("dataset", column.DatasetID),
			zap.String("table", column.TableName),
			zap.String("column", column.Name))
	}

	if err := r.store.RecordDecision(ctx, columnID, decision == Accept); err != nil {
		return fmt.Errorf("failed to record decision for column %d: %w", columnID, err)
	}

	r.logger.Info("Recorded decision",
		zap.Int64("columnId", columnID),
		zap.String("decision", string(decision)))

	return nil
}
