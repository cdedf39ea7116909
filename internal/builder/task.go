package builder

import (
	"context"
	"fmt"

	"graphic-novel-web/internal/adapters"
	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/pipeline"
)

// buildDispatcher は設定に応じてプロセス内ディスパッチャーか Cloud Tasks ディスパッチャーを作成します。
func buildDispatcher(ctx context.Context, cfg *config.Config) (pipeline.Dispatcher, error) {
	if cfg.DispatchMode != config.DispatchCloudTasks {
		return adapters.NewLocalDispatcher(), nil
	}
	d, err := adapters.NewCloudTasksDispatcher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloud tasks dispatcher: %w", err)
	}
	return d, nil
}
