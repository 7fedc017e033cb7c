package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kpolley/PIIDetective/pkg/classify"
	"github.com/kpolley/PIIDetective/pkg/platform"
	"github.com/kpolley/PIIDetective/pkg/store"
)

// --- fakePlatform ---

type fakeIterator struct {
	tables []*platform.TableDescriptor
	pos    int
	err    error
}

func (it *fakeIterator) Next() (*platform.TableDescriptor, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.pos >= len(it.tables) {
		return nil, platform.Done
	}
	table := it.tables[it.pos]
	it.pos++
	return table, nil
}

type fakePlatform struct {
	datasets    []string
	tables      map[string][]*platform.TableDescriptor
	datasetsErr error
	tablesErr   error
	tagCalls    []string
	tagErr      error
}

func (p *fakePlatform) Name() string { return "fake" }

func (p *fakePlatform) ListDatasets(ctx context.Context) ([]string, error) {
	if p.datasetsErr != nil {
		return nil, p.datasetsErr
	}
	return p.datasets, nil
}

func (p *fakePlatform) ListTables(ctx context.Context, datasetID string) platform.TableIterator {
	return &fakeIterator{tables: p.tables[datasetID], err: p.tablesErr}
}

func (p *fakePlatform) ApplyPolicyTag(ctx context.Context, datasetID, tableName, columnName, tagID string) error {
	p.tagCalls = append(p.tagCalls, fmt.Sprintf("%s.%s.%s", datasetID, tableName, columnName))
	return p.tagErr
}

func (p *fakePlatform) SampleRows(ctx context.Context, datasetID, tableName string, limit int) ([]map[string]any, error) {
	return nil, nil
}

func (p *fakePlatform) Close() error { return nil }

// --- fakeClassifier ---

type fakeClassifier struct {
	findings  []classify.Finding
	err       error
	documents []string
}

func (c *fakeClassifier) Classify(ctx context.Context, document string) ([]classify.Finding, error) {
	c.documents = append(c.documents, document)
	if c.err != nil {
		return nil, c.err
	}
	return c.findings, nil
}

// --- fakeStore ---

type fakeStore struct {
	mu              sync.Mutex
	nextColumnID    int64
	columnIDs       map[string]int64
	classifications map[string]classify.Finding
	history         map[string]time.Time
	upsertErr       error
	historyErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		columnIDs:       make(map[string]int64),
		classifications: make(map[string]classify.Finding),
		history:         make(map[string]time.Time),
	}
}

func columnKey(f classify.Finding) string {
	return fmt.Sprintf("%s|%s|%s", f.DatasetID, f.TableName, f.ColumnName)
}

func historyKey(tableName, datasetID string) string {
	return fmt.Sprintf("%s|%s", datasetID, tableName)
}

func (s *fakeStore) UpsertClassification(ctx context.Context, finding classify.Finding) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.upsertErr != nil {
		return 0, s.upsertErr
	}

	key := columnKey(finding)
	id, ok := s.columnIDs[key]
	if !ok {
		s.nextColumnID++
		id = s.nextColumnID
		s.columnIDs[key] = id
	}
	s.classifications[key] = finding
	return id, nil
}

func (s *fakeStore) GetTableHistory(ctx context.Context, tableName, datasetID string) (*store.TableHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.historyErr != nil {
		return nil, s.historyErr
	}

	ts, ok := s.history[historyKey(tableName, datasetID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.TableHistory{
		TableName:         tableName,
		DatasetID:         datasetID,
		LastScanTimestamp: ts,
	}, nil
}

func (s *fakeStore) UpsertTableHistory(ctx context.Context, tableName, datasetID string, scannedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.historyErr != nil {
		return s.historyErr
	}
	s.history[historyKey(tableName, datasetID)] = scannedAt
	return nil
}

// --- fakeStatusStore ---

type fakeStatusStore struct {
	mu        sync.Mutex
	scans     []*store.ScanStatus
	activeErr error
	createErr error
}

func (s *fakeStatusStore) ActiveScan(ctx context.Context) (*store.ScanStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeErr != nil {
		return nil, s.activeErr
	}
	for i := len(s.scans) - 1; i >= 0; i-- {
		if s.scans[i].Status == store.ScanInProgress {
			return s.scans[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStatusStore) CreateScan(ctx context.Context) (*store.ScanStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return nil, s.createErr
	}
	status := &store.ScanStatus{
		ID:        fmt.Sprintf("scan-%d", len(s.scans)+1),
		Status:    store.ScanInProgress,
		ScanStart: time.Now().UTC(),
	}
	s.scans = append(s.scans, status)
	return status, nil
}

func (s *fakeStatusStore) FinishScan(ctx context.Context, id string, status store.ScanStatusType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, scan := range s.scans {
		if scan.ID == id {
			now := time.Now().UTC()
			scan.Status = status
			scan.ScanEnd = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeStatusStore) LatestScan(ctx context.Context) (*store.ScanStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.scans) == 0 {
		return nil, store.ErrNotFound
	}
	return s.scans[len(s.scans)-1], nil
}
