package builder

import (
	"context"
	"fmt"

	"graphic-novel-web/internal/app"
	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/storage"

	"github.com/shouni/go-remote-io/pkg/gcsfactory"
)

// buildStorage は成果物の保存先と、素材取得・URL 署名に使うコンポーネントを初期化します。
func buildStorage(ctx context.Context, cfg *config.Config, c *app.Container) error {
	files, err := storage.NewFileStore(cfg.LocalStoreDir, cfg.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("failed to create local file store: %w", err)
	}
	c.Files = files

	switch cfg.StorageDriver {
	case config.StorageGCS:
		rio, err := buildRemoteIO(ctx)
		if err != nil {
			return err
		}
		c.RemoteIO = rio
		gcs, err := storage.NewGCSStore(rio.Writer, cfg.GCSBucket)
		if err != nil {
			return fmt.Errorf("failed to create gcs store: %w", err)
		}
		c.Artifacts = gcs
		c.Resolver = storage.NewURLResolver(rio.Signer, config.SignedURLExpiration)

	case config.StorageS3:
		s3, err := storage.NewS3Store(
			storage.WithS3Endpoint(cfg.S3Endpoint),
			storage.WithS3Bucket(cfg.S3Bucket),
			storage.WithS3Credentials(cfg.S3AccessKey, cfg.S3SecretKey),
			storage.WithS3SSL(cfg.S3UseSSL),
			storage.WithS3PublicBaseURL(cfg.PublicBaseURL),
		)
		if err != nil {
			return fmt.Errorf("failed to create s3 store: %w", err)
		}
		c.Artifacts = s3
		c.Resolver = storage.NewURLResolver(nil, config.SignedURLExpiration)

	default:
		c.Artifacts = files
		c.Resolver = storage.NewURLResolver(nil, config.SignedURLExpiration)
	}
	return nil
}

// buildRemoteIO は、GCS ベースの I/O コンポーネントを初期化します。
func buildRemoteIO(ctx context.Context) (*app.RemoteIO, error) {
	factory, err := gcsfactory.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS factory: %w", err)
	}
	r, err := factory.InputReader()
	if err != nil {
		return nil, fmt.Errorf("failed to create input reader: %w", err)
	}
	w, err := factory.OutputWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create output writer: %w", err)
	}
	s, err := factory.URLSigner()
	if err != nil {
		return nil, fmt.Errorf("failed to create URL signer: %w", err)
	}
	return &app.RemoteIO{
		Factory: factory,
		Reader:  r,
		Writer:  w,
		Signer:  s,
	}, nil
}
