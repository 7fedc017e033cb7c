// pkg/platform/factory.go
package platform

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/config"
)

// NewDataPlatform creates the connector selected by DATA_PLATFORM. It is
// constructed once at process start and shared by the scanner and the
// decision recorder.
func NewDataPlatform(ctx context.Context, cfg *config.Config, logger *zap.Logger) (DataPlatform, error) {
	switch cfg.DataPlatform {
	case config.PlatformBigQuery:
		p, err := NewBigQueryPlatform(ctx, cfg.BigQuery, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create BigQuery connector: %w", err)
		}
		return p, nil
	case config.PlatformSnowflake:
		p, err := NewSnowflakePlatform(ctx, cfg.Snowflake, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported data platform: %s", cfg.DataPlatform)
	}
}
