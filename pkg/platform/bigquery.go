// pkg/platform/bigquery.go
package platform

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/kpolley/PIIDetective/pkg/config"
)

// BigQueryPlatform implements the DataPlatform interface for BigQuery
type BigQueryPlatform struct {
	client *bigquery.Client
	logger *zap.Logger
}

// NewBigQueryPlatform creates a new BigQuery client using application
// default credentials
func NewBigQueryPlatform(ctx context.Context, cfg *config.BigQueryConfig, logger *zap.Logger) (*BigQueryPlatform, error) {
	logger = logger.Named("bigquery-platform")

	logger.Info("Connecting to BigQuery", zap.String("project", cfg.ProjectID))

	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}

	return &BigQueryPlatform{client: client, logger: logger}, nil
}

// Name returns the platform selector
func (p *BigQueryPlatform) Name() string {
	return config.PlatformBigQuery
}

// Close releases the underlying client
func (p *BigQueryPlatform) Close() error {
	p.logger.Info("Closing BigQuery client")
	return p.client.Close()
}

// ListDatasets enumerates all dataset identifiers in the project
func (p *BigQueryPlatform) ListDatasets(ctx context.Context) ([]string, error) {
	var datasets []string

	it := p.client.Datasets(ctx)
	for {
		ds, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, newPlatformError(p.Name(), "list datasets", err)
		}
		if ds.DatasetID != "" {
			datasets = append(datasets, ds.DatasetID)
		}
	}

	return datasets, nil
}

// ListTables enumerates the tables of a dataset lazily; table metadata is
// fetched one table at a time as the iterator advances.
func (p *BigQueryPlatform) ListTables(ctx context.Context, datasetID string) TableIterator {
	return &bigQueryTableIterator{
		ctx:       ctx,
		platform:  p,
		datasetID: datasetID,
		tables:    p.client.Dataset(datasetID).Tables(ctx),
	}
}

type bigQueryTableIterator struct {
	ctx       context.Context
	platform  *BigQueryPlatform
	datasetID string
	tables    *bigquery.TableIterator
}

func (it *bigQueryTableIterator) Next() (*TableDescriptor, error) {
	p := it.platform

	for {
		table, err := it.tables.Next()
		if err == iterator.Done {
			return nil, Done
		}
		if err != nil {
			return nil, newPlatformError(p.Name(), "list tables", err)
		}

		md, err := table.Metadata(it.ctx)
		if err != nil {
			return nil, newPlatformError(p.Name(), fmt.Sprintf("get metadata for %s", table.TableID), err)
		}

		columns := flattenFields(md.Schema, "")
		if len(columns) == 0 {
			continue
		}

		descriptor := &TableDescriptor{
			TableName: table.TableID,
			DatasetID: it.datasetID,
			Columns:   columns,
		}
		if !md.LastModifiedTime.IsZero() {
			lastModified := md.LastModifiedTime
			descriptor.LastModified = &lastModified
		}

		return descriptor, nil
	}
}

// flattenFields renders a schema as leaf column names; nested RECORD fields
// become dotted paths.
func flattenFields(schema bigquery.Schema, prefix string) []string {
	var columns []string
	for _, field := range schema {
		if field.Type == bigquery.RecordFieldType {
			columns = append(columns, flattenFields(field.Schema, prefix+field.Name+".")...)
		} else {
			columns = append(columns, prefix+field.Name)
		}
	}
	return columns
}

// ApplyPolicyTag rewrites the table schema, attaching the policy tag to the
// named column. Re-applying the same tag leaves the schema unchanged.
func (p *BigQueryPlatform) ApplyPolicyTag(ctx context.Context, datasetID, tableName, columnName, tagID string) error {
	table := p.client.Dataset(datasetID).Table(tableName)

	md, err := table.Metadata(ctx)
	if err != nil {
		return newPlatformError(p.Name(), fmt.Sprintf("get metadata for %s.%s", datasetID, tableName), err)
	}

	found := false
	schema := make(bigquery.Schema, len(md.Schema))
	for i, field := range md.Schema {
		if field.Name == columnName {
			tagged := *field
			tagged.PolicyTags = &bigquery.PolicyTagList{Names: []string{tagID}}
			schema[i] = &tagged
			found = true
		} else {
			schema[i] = field
		}
	}

	if !found {
		return newPlatformError(p.Name(), "apply policy tag",
			fmt.Errorf("column %s not found in %s.%s", columnName, datasetID, tableName))
	}

	// The ETag guards against clobbering a concurrent schema change.
	if _, err := table.Update(ctx, bigquery.TableMetadataToUpdate{Schema: schema}, md.ETag); err != nil {
		return newPlatformError(p.Name(), fmt.Sprintf("update schema for %s.%s", datasetID, tableName), err)
	}

	p.logger.Info("Applied policy tag",
		zap.String("dataset", datasetID),
		zap.String("table", tableName),
		zap.String("column", columnName),
		zap.String("policyTag", tagID))
	return nil
}

// SampleRows fetches up to limit rows from a table
func (p *BigQueryPlatform) SampleRows(ctx context.Context, datasetID, tableName string, limit int) ([]map[string]any, error) {
	if !validIdentifier(datasetID) || !validIdentifier(tableName) {
		return nil, newPlatformError(p.Name(), "sample rows",
			fmt.Errorf("invalid identifier in %s.%s", datasetID, tableName))
	}

	query := p.client.Query(fmt.Sprintf("SELECT * FROM `%s.%s` LIMIT %d", datasetID, tableName, limit))

	it, err := query.Read(ctx)
	if err != nil {
		return nil, newPlatformError(p.Name(), fmt.Sprintf("sample rows from %s.%s", datasetID, tableName), err)
	}

	var results []map[string]any
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, newPlatformError(p.Name(), fmt.Sprintf("sample rows from %s.%s", datasetID, tableName), err)
		}

		record := make(map[string]any, len(row))
		for k, v := range row {
			record[k] = v
		}
		results = append(results, record)
	}

	return results, nil
}
