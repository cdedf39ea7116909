package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServiceURL:    "http://localhost:8080",
		StoreDriver:   StoreSQLite,
		SQLitePath:    "test.db",
		StorageDriver: StorageLocal,
		LocalStoreDir: "data",
		DispatchMode:  DispatchLocal,
		VisionTimeout: time.Second,
		TextTimeout:   time.Second,
		ImageTimeout:  time.Second,
		UploadTimeout: time.Second,
		BaseOutputDir: "output",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BLOCKED_WORDS", "foo,bar")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, 90*time.Second, cfg.ImageTimeout)
	assert.Equal(t, []string{"foo", "bar"}, cfg.BlockedWords)
	assert.Equal(t, cfg.ServiceURL, cfg.TaskAudienceURL)
	assert.Equal(t, DefaultStyle, cfg.StyleSuffix)
	assert.True(t, cfg.RefundOnSetupErr)
	assert.False(t, cfg.RefundOnRenderErr)
}

func TestValidateEssentialConfig(t *testing.T) {
	require.NoError(t, ValidateEssentialConfig(validConfig()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"insecure service url", func(c *Config) { c.ServiceURL = "http://example.com" }},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = StorePostgres }},
		{"unknown store", func(c *Config) { c.StoreDriver = "redis" }},
		{"gcs without bucket", func(c *Config) { c.StorageDriver = StorageGCS }},
		{"s3 without endpoint", func(c *Config) { c.StorageDriver = StorageS3 }},
		{"cloud tasks without project", func(c *Config) { c.DispatchMode = DispatchCloudTasks }},
		{"zero timeout", func(c *Config) { c.ImageTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateEssentialConfig(cfg))
		})
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "output/abc/pages/page_03.png", cfg.GetPageObjectPath("abc", 3, "png"))
	assert.Equal(t, "output/abc/assets/slot_2.webp", cfg.GetAssetObjectPath("abc", 2, "webp"))
	assert.Equal(t, "output/abc/pages/page_03.png", cfg.GetGCSObjectURL("output/abc/pages/page_03.png"))

	cfg.GCSBucket = "bucket"
	assert.Equal(t, "gs://bucket/output/abc", cfg.GetGCSObjectURL("output/abc"))
	assert.Equal(t, "gs://other/x", cfg.GetGCSObjectURL("gs://other/x"))
}
