package builder

import (
	"context"
	"fmt"

	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/store"
)

// buildStore は設定されたドライバーでタスクレコードストアを初期化します。
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.InitialCredits)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := store.NewSQLiteStore(cfg.SQLitePath, cfg.InitialCredits)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store (path: %s): %w", cfg.SQLitePath, err)
		}
		return s, nil
	}
}
