package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/shouni/netarmor/securenet"
)

// GetWorkDir は特定のジョブに対する一意の作業ディレクトリを返します。
// 例: "output/3f0c...-uuid"
func (c Config) GetWorkDir(taskID string) string {
	return path.Join(c.BaseOutputDir, taskID)
}

// GetPageObjectPath はページ画像の保存先パスを返します。
// 例: "output/<taskID>/pages/page_03.png"
func (c Config) GetPageObjectPath(taskID string, pageNumber int, ext string) string {
	return path.Join(c.GetWorkDir(taskID), "pages", fmt.Sprintf("page_%02d.%s", pageNumber, ext))
}

// GetAssetObjectPath は data: URI で受け付けた素材の保存先パスを返します。
// 例: "output/<taskID>/assets/slot_1.png"
func (c Config) GetAssetObjectPath(taskID string, slot int, ext string) string {
	return path.Join(c.GetWorkDir(taskID), "assets", fmt.Sprintf("slot_%d.%s", slot, ext))
}

// GetGCSObjectURL は、指定されたパスから完全なGCSオブジェクトURL ("gs://...") を組み立てます。
// pathが既に "gs://" プレフィックスを持つ場合は、そのままpathを返します。
// c.GCSBucketが空文字列の場合、この関数は引数で与えられたpathをそのまま返します。
func (c Config) GetGCSObjectURL(path string) string {
	if strings.HasPrefix(path, "gs://") {
		return path
	}
	if c.GCSBucket != "" {
		return fmt.Sprintf("gs://%s/%s", c.GCSBucket, path)
	}

	return path
}

// --- バリデーション ---

// ValidateEssentialConfig はアプリケーション実行に不可欠な設定を検証します。
func ValidateEssentialConfig(cfg *Config) error {
	if !IsSecureURL(cfg.ServiceURL) {
		return fmt.Errorf("security error: SERVICE_URL ('%s') must be HTTPS in production", cfg.ServiceURL)
	}

	switch cfg.StoreDriver {
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return fmt.Errorf("configuration error: SQLITE_PATH is not set")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("configuration error: DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("configuration error: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.StorageDriver {
	case StorageGCS:
		if cfg.GCSBucket == "" {
			return fmt.Errorf("configuration error: GCS_BUCKET is required for gcs storage")
		}
	case StorageS3:
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" {
			return fmt.Errorf("configuration error: S3_ENDPOINT and S3_BUCKET are required for s3 storage")
		}
	case StorageLocal:
		if cfg.LocalStoreDir == "" {
			return fmt.Errorf("configuration error: LOCAL_STORE_DIR is not set")
		}
	default:
		return fmt.Errorf("configuration error: unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	switch cfg.DispatchMode {
	case DispatchLocal:
	case DispatchCloudTasks:
		if cfg.ProjectID == "" {
			return fmt.Errorf("configuration error: GCP_PROJECT_ID is required for cloud tasks dispatch")
		}
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.SessionSecret == "" {
			return fmt.Errorf("configuration error: OAuth settings are missing")
		}
		// SessionEncryptKey の長さチェック (AES要件: 16, 24, 32 bytes)
		keyLen := len([]byte(cfg.SessionEncryptKey))
		if keyLen != 16 && keyLen != 24 && keyLen != 32 {
			return fmt.Errorf("SESSION_ENCRYPT_KEY の長さが不正です (%d バイト)。16, 24, 32 バイトのいずれかにしてください", keyLen)
		}
	default:
		return fmt.Errorf("configuration error: unknown DISPATCH_MODE %q", cfg.DispatchMode)
	}

	if cfg.VisionTimeout <= 0 || cfg.TextTimeout <= 0 || cfg.ImageTimeout <= 0 || cfg.UploadTimeout <= 0 {
		return fmt.Errorf("configuration error: provider timeouts must be positive")
	}

	return nil
}

// IsSecureURL は指定された URL が HTTPS または localhost であるか判定します。
func IsSecureURL(rawURL string) bool {
	return securenet.IsSecureServiceURL(rawURL)
}
