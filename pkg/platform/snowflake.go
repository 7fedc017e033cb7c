// pkg/platform/snowflake.go
package platform

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/config"
)

// SnowflakePlatform implements the DataPlatform interface for Snowflake.
// Datasets map to Snowflake databases; the policy tag maps to a masking
// policy name.
type SnowflakePlatform struct {
	db           *sql.DB
	logger       *zap.Logger
	cfg          *config.SnowflakeConfig
	queryTimeout time.Duration
}

// NewSnowflakePlatform creates a new Snowflake connection
func NewSnowflakePlatform(ctx context.Context, cfg *config.SnowflakeConfig, logger *zap.Logger) (*SnowflakePlatform, error) {
	logger = logger.Named("snowflake-platform")

	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.Username,
		Password:      cfg.Password,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.Username),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	return &SnowflakePlatform{
		db:           db,
		logger:       logger,
		cfg:          cfg,
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// Name returns the platform selector
func (p *SnowflakePlatform) Name() string {
	return config.PlatformSnowflake
}

// Close closes the database connection
func (p *SnowflakePlatform) Close() error {
	p.logger.Info("Closing Snowflake connection")
	return p.db.Close()
}

// ListDatasets enumerates all Snowflake databases
func (p *SnowflakePlatform) ListDatasets(ctx context.Context) ([]string, error) {
	rows, err := p.query(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, newPlatformError(p.Name(), "list datasets", err)
	}

	return columnValues(rows, "name"), nil
}

// ListTables enumerates the tables of a database. The table list is fetched
// up front; column descriptions are fetched lazily per table as the iterator
// advances.
func (p *SnowflakePlatform) ListTables(ctx context.Context, datasetID string) TableIterator {
	return &snowflakeTableIterator{
		ctx:       ctx,
		platform:  p,
		datasetID: datasetID,
	}
}

// snowflakeTable is one row of the database's INFORMATION_SCHEMA.TABLES view
type snowflakeTable struct {
	schema      string
	name        string
	lastAltered *time.Time
}

func parseTableRows(rows []map[string]any) []snowflakeTable {
	tables := make([]snowflakeTable, 0, len(rows))
	for _, row := range rows {
		schema := stringValue(row, "TABLE_SCHEMA")
		name := stringValue(row, "TABLE_NAME")
		if schema == "" || name == "" {
			continue
		}
		tables = append(tables, snowflakeTable{
			schema:      schema,
			name:        name,
			lastAltered: timeValue(row, "LAST_ALTERED"),
		})
	}
	return tables
}

type snowflakeTableIterator struct {
	ctx       context.Context
	platform  *SnowflakePlatform
	datasetID string
	tables    []snowflakeTable
	fetched   bool
	pos       int
}

func (it *snowflakeTableIterator) Next() (*TableDescriptor, error) {
	p := it.platform

	if !it.fetched {
		// The session has no current database, so every statement must name
		// its objects fully. INFORMATION_SCHEMA also carries the schema of
		// each table and its LAST_ALTERED change-detection timestamp.
		stmt := fmt.Sprintf(
			"SELECT TABLE_SCHEMA, TABLE_NAME, LAST_ALTERED FROM %s.INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_SCHEMA, TABLE_NAME",
			quoteIdentifier(it.datasetID),
		)
		rows, err := p.query(it.ctx, stmt)
		if err != nil {
			return nil, newPlatformError(p.Name(), "list tables", err)
		}
		it.tables = parseTableRows(rows)
		it.fetched = true
	}

	for it.pos < len(it.tables) {
		table := it.tables[it.pos]
		it.pos++

		stmt := fmt.Sprintf("DESCRIBE TABLE %s", qualifyTable(it.datasetID, table.schema, table.name))
		rows, err := p.query(it.ctx, stmt)
		if err != nil {
			return nil, newPlatformError(p.Name(), fmt.Sprintf("describe table %s", table.name), err)
		}

		columns := columnValues(rows, "name")
		if len(columns) == 0 {
			continue
		}

		return &TableDescriptor{
			TableName:    table.name,
			DatasetID:    it.datasetID,
			Columns:      columns,
			LastModified: table.lastAltered,
		}, nil
	}

	return nil, Done
}

// ApplyPolicyTag attaches a masking policy to a column
func (p *SnowflakePlatform) ApplyPolicyTag(ctx context.Context, datasetID, tableName, columnName, tagID string) error {
	if !validIdentifier(datasetID) || !validIdentifier(tableName) || !validIdentifier(columnName) {
		return newPlatformError(p.Name(), "apply masking policy",
			fmt.Errorf("invalid identifier in %s.%s.%s", datasetID, tableName, columnName))
	}

	schema, err := p.resolveSchema(ctx, datasetID, tableName)
	if err != nil {
		return newPlatformError(p.Name(), fmt.Sprintf("resolve schema for %s.%s", datasetID, tableName), err)
	}

	stmt := fmt.Sprintf(
		"ALTER TABLE IF EXISTS %s MODIFY COLUMN %s SET MASKING POLICY %s",
		qualifyTable(datasetID, schema, tableName), quoteIdentifier(columnName), tagID,
	)

	queryCtx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	if _, err := p.db.ExecContext(queryCtx, stmt); err != nil {
		return newPlatformError(p.Name(), fmt.Sprintf("apply masking policy to %s.%s.%s", datasetID, tableName, columnName), err)
	}

	p.logger.Info("Applied masking policy",
		zap.String("dataset", datasetID),
		zap.String("schema", schema),
		zap.String("table", tableName),
		zap.String("column", columnName),
		zap.String("policy", tagID))
	return nil
}

// SampleRows fetches up to limit rows from a table
func (p *SnowflakePlatform) SampleRows(ctx context.Context, datasetID, tableName string, limit int) ([]map[string]any, error) {
	if !validIdentifier(datasetID) || !validIdentifier(tableName) {
		return nil, newPlatformError(p.Name(), "sample rows",
			fmt.Errorf("invalid identifier in %s.%s", datasetID, tableName))
	}

	schema, err := p.resolveSchema(ctx, datasetID, tableName)
	if err != nil {
		return nil, newPlatformError(p.Name(), fmt.Sprintf("resolve schema for %s.%s", datasetID, tableName), err)
	}

	stmt := fmt.Sprintf("SELECT * FROM %s LIMIT %d", qualifyTable(datasetID, schema, tableName), limit)
	rows, err := p.query(ctx, stmt)
	if err != nil {
		return nil, newPlatformError(p.Name(), fmt.Sprintf("sample rows from %s.%s", datasetID, tableName), err)
	}
	return rows, nil
}

// resolveSchema finds the schema holding a table. Table identity elsewhere
// in the system is (dataset, table), so when the same table name exists in
// several schemas the first by name is used.
func (p *SnowflakePlatform) resolveSchema(ctx context.Context, datasetID, tableName string) (string, error) {
	stmt := fmt.Sprintf(
		"SELECT TABLE_SCHEMA FROM %s.INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_SCHEMA",
		quoteIdentifier(datasetID),
	)
	rows, err := p.query(ctx, stmt, tableName)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("table %s not found in database %s", tableName, datasetID)
	}
	return stringValue(rows[0], "TABLE_SCHEMA"), nil
}

// query executes a statement with the configured timeout and collects the
// result set into row maps.
func (p *SnowflakePlatform) query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	queryCtx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(queryCtx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRowsToMaps(rows)
}

// quoteIdentifier renders an identifier in its quoted exact-name form, so
// names from SHOW DATABASES and INFORMATION_SCHEMA round-trip regardless of
// case or special characters.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualifyTable builds the three-part database.schema.table name. The
// session is opened without a current database, so two-part names would
// not resolve.
func qualifyTable(database, schema, table string) string {
	return quoteIdentifier(database) + "." + quoteIdentifier(schema) + "." + quoteIdentifier(table)
}
