package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/platform"
	"github.com/kpolley/PIIDetective/pkg/store"
)

func newTestRunner(fp platform.DataPlatform, ss *fakeStatusStore) *Runner {
	scanner := NewScanner(fp, &fakeClassifier{}, newFakeStore(), nil, nil, zap.NewNop())
	return NewRunner(scanner, ss, zap.NewNop())
}

func TestStartRunsScanToCompletion(t *testing.T) {
	ss := &fakeStatusStore{}
	runner := newTestRunner(&fakePlatform{datasets: []string{"sales"}}, ss)

	status, err := runner.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.ScanInProgress, status.Status)

	require.NoError(t, runner.Shutdown(context.Background()))

	latest, err := runner.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.ScanCompleted, latest.Status)
	require.NotNil(t, latest.ScanEnd)
}

func TestStartWhileScanInProgress(t *testing.T) {
	ss := &fakeStatusStore{}
	_, err := ss.CreateScan(context.Background())
	require.NoError(t, err)

	runner := newTestRunner(&fakePlatform{}, ss)
	_, err = runner.Start(context.Background())
	require.ErrorIs(t, err, ErrScanInProgress)

	// No second ScanStatus row was created
	assert.Len(t, ss.scans, 1)
}

func TestFailedScanRecordedAsFailed(t *testing.T) {
	ss := &fakeStatusStore{}
	fp := &fakePlatform{datasetsErr: errors.New("network unreachable")}
	runner := newTestRunner(fp, ss)

	_, err := runner.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, runner.Shutdown(context.Background()))

	latest, err := runner.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.ScanFailed, latest.Status)
}

func TestShutdownMarksActiveScanFailed(t *testing.T) {
	ss := &fakeStatusStore{}

	// A platform whose iteration blocks until its context is cancelled
	block := make(chan struct{})
	fp := &blockingPlatform{release: block}
	runner := newTestRunner(fp, ss)

	_, err := runner.Start(context.Background())
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(shutdownCtx))

	latest, err := runner.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.ScanFailed, latest.Status)
}

func TestStatusWithNoScans(t *testing.T) {
	runner := newTestRunner(&fakePlatform{}, &fakeStatusStore{})
	_, err := runner.Status(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)
}

// blockingPlatform blocks dataset enumeration until its context is cancelled
type blockingPlatform struct {
	fakePlatform
	release chan struct{}
}

func (p *blockingPlatform) ListDatasets(ctx context.Context) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.release:
		return nil, nil
	}
}

var _ platform.DataPlatform = (*blockingPlatform)(nil)
