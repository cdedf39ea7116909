package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// SignedURLExpiration はページ画像を閲覧するためのリダイレクト先 URL の有効期限です。
	SignedURLExpiration = 15 * time.Minute
	// DefaultHTTPTimeout は通知など補助的な HTTP 呼び出しのタイムアウトです。
	DefaultHTTPTimeout = 30 * time.Second
	DefaultStyle       = "vibrant children's comic book style, bold clean outlines, bright flat colors, expressive faces, clear panel borders"
)

const (
	DispatchLocal      = "local"
	DispatchCloudTasks = "cloudtasks"

	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	StorageGCS   = "gcs"
	StorageS3    = "s3"
	StorageLocal = "local"
)

// Config は環境変数から読み込まれたアプリケーションの全設定を保持します。
type Config struct {
	ServiceURL      string        `envconfig:"SERVICE_URL" default:"http://localhost:8080"`
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// Task Record Store / Credit Ledger
	StoreDriver      string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath       string `envconfig:"SQLITE_PATH" default:"graphic-novel.db"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	InitialCredits   int    `envconfig:"INITIAL_CREDITS" default:"300"`
	RefundOnSetupErr bool   `envconfig:"REFUND_ON_SETUP_FAILURE" default:"true"`
	// RefundOnRenderErr はレンダリング開始後の FAILED でも返金するかどうかです。
	RefundOnRenderErr bool `envconfig:"REFUND_ON_RENDER_FAILURE" default:"false"`

	// Artifact storage
	StorageDriver  string `envconfig:"STORAGE_DRIVER" default:"local"`
	GCSBucket      string `envconfig:"GCS_BUCKET"`
	BaseOutputDir  string `envconfig:"BASE_OUTPUT_DIR" default:"output"`
	LocalStoreDir  string `envconfig:"LOCAL_STORE_DIR" default:"data"`
	PublicBaseURL  string `envconfig:"PUBLIC_BASE_URL"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3Bucket       string `envconfig:"S3_BUCKET"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY"`
	S3UseSSL       bool   `envconfig:"S3_USE_SSL" default:"true"`
	PlaceholderURL string `envconfig:"PLACEHOLDER_IMAGE_URL" default:"https://placehold.co/1024x1024/png?text=Page+coming+soon"`

	// Providers
	GeminiAPIKey  string        `envconfig:"GEMINI_API_KEY"`
	TextModel     string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	VisionModel   string        `envconfig:"VISION_MODEL" default:"gemini-2.5-flash"`
	ImageModel    string        `envconfig:"IMAGE_MODEL" default:"gemini-2.5-flash-image"`
	SafetyModel   string        `envconfig:"SAFETY_MODEL" default:"gemini-2.5-flash-lite"`
	VisionTimeout time.Duration `envconfig:"VISION_TIMEOUT" default:"30s"`
	TextTimeout   time.Duration `envconfig:"TEXT_TIMEOUT" default:"60s"`
	ImageTimeout  time.Duration `envconfig:"IMAGE_TIMEOUT" default:"90s"`
	UploadTimeout time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"30s"`
	SafetyTimeout time.Duration `envconfig:"SAFETY_TIMEOUT" default:"20s"`
	JobTimeout    time.Duration `envconfig:"JOB_TIMEOUT" default:"45m"`
	StyleSuffix   string        `envconfig:"STYLE_SUFFIX"`
	BlockedWords  []string      `envconfig:"BLOCKED_WORDS"`

	// Dispatch
	DispatchMode        string `envconfig:"DISPATCH_MODE" default:"local"`
	ResumeOnStartup     bool   `envconfig:"RESUME_ON_STARTUP" default:"true"`
	ProjectID           string `envconfig:"GCP_PROJECT_ID"`
	LocationID          string `envconfig:"GCP_LOCATION_ID" default:"asia-northeast1"`
	QueueID             string `envconfig:"CLOUD_TASKS_QUEUE_ID" default:"graphic-novel-queue"`
	TaskAudienceURL     string `envconfig:"TASK_AUDIENCE_URL"`
	ServiceAccountEmail string `envconfig:"SERVICE_ACCOUNT_EMAIL"`

	// OAuth & Session Settings (Cloud Tasks の OIDC 検証ハンドラーが使用します)
	GoogleClientID     string   `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `envconfig:"GOOGLE_CLIENT_SECRET"`
	SessionSecret      string   `envconfig:"SESSION_SECRET"`
	SessionEncryptKey  string   `envconfig:"SESSION_ENCRYPT_KEY"`
	AllowedEmails      []string `envconfig:"ALLOWED_EMAILS"`
	AllowedDomains     []string `envconfig:"ALLOWED_DOMAINS"`

	SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL"`
}

// LoadConfig は .env (存在する場合) と環境変数から設定を読み込み、Config 構造体を生成します。
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if cfg.TaskAudienceURL == "" {
		cfg.TaskAudienceURL = cfg.ServiceURL
	}
	if cfg.StyleSuffix == "" {
		cfg.StyleSuffix = DefaultStyle
	}
	return &cfg, nil
}
