// pkg/scan/runner.go
package scan

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/store"
)

// ErrScanInProgress indicates a scan run is already active
var ErrScanInProgress = errors.New("a scan is already in progress")

// StatusStore persists scan run lifecycle state
type StatusStore interface {
	ActiveScan(ctx context.Context) (*store.ScanStatus, error)
	CreateScan(ctx context.Context) (*store.ScanStatus, error)
	FinishScan(ctx context.Context, id string, status store.ScanStatusType) error
	LatestScan(ctx context.Context) (*store.ScanStatus, error)
}

// Runner triggers scan passes asynchronously and tracks their status.
// At most one scan runs at a time.
type Runner struct {
	scanner *Scanner
	store   StatusStore
	logger  *zap.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner creates a runner over the given scanner and status store
func NewRunner(scanner *Scanner, st StatusStore, logger *zap.Logger) *Runner {
	return &Runner{
		scanner: scanner,
		store:   st,
		logger:  logger.Named("runner"),
	}
}

// Start begins a scan pass in the background. Returns ErrScanInProgress
// if another scan is already running.
func (r *Runner) Start(ctx context.Context) (*store.ScanStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.store.ActiveScan(ctx)
	if err == nil {
		return nil, ErrScanInProgress
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	status, err := r.store.CreateScan(ctx)
	if err != nil {
		return nil, err
	}

	// The run outlives the triggering request, so it gets its own context
	// tied to the runner's lifetime rather than the request's.
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.logger.Info("Starting scan", zap.String("scanId", status.ID))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.run(runCtx, status.ID)
	}()

	return status, nil
}

func (r *Runner) run(ctx context.Context, scanID string) {
	metrics, err := r.scanner.Run(ctx)

	final := store.ScanCompleted
	if err != nil {
		final = store.ScanFailed
		r.logger.Error("Scan failed",
			zap.String("scanId", scanID),
			zap.Error(err))
	} else {
		r.logger.Info("Scan completed",
			zap.String("scanId", scanID),
			zap.String("summary", metrics.Summary()))
	}

	// Finishing uses a fresh context so a cancelled run is still recorded
	if err := r.store.FinishScan(context.Background(), scanID, final); err != nil {
		r.logger.Error("Failed to record scan completion",
			zap.String("scanId", scanID),
			zap.Error(err))
	}
}

// Status returns the most recent scan run, or store.ErrNotFound if no
// scan has ever been started.
func (r *Runner) Status(ctx context.Context) (*store.ScanStatus, error) {
	return r.store.LatestScan(ctx)
}

// Shutdown cancels any active scan and waits for it to record its final
// state, bounded by the given context.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
