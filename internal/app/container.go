package app

import (
	"log/slog"

	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/metrics"
	"graphic-novel-web/internal/pipeline"
	"graphic-novel-web/internal/storage"
	"graphic-novel-web/internal/store"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// Container はアプリケーションの依存関係（DIコンテナ）を保持します。
type Container struct {
	Config *config.Config

	// Task Record Store / Credit Ledger
	Store store.Store

	// I/O and Storage
	RemoteIO  *RemoteIO
	Files     *storage.FileStore
	Artifacts storage.ArtifactStore
	Resolver  *storage.URLResolver

	// Asynchronous Task
	Dispatcher pipeline.Dispatcher

	// Business Logic
	Orchestrator *pipeline.Orchestrator
	Coach        *pipeline.AssetCoach

	// Observability
	Metrics *metrics.Recorder

	// External Adapters
	HTTPClient httpkit.HTTPClient
	Notifier   pipeline.Notifier
}

// RemoteIO は GCS ストレージ利用時の go-remote-io コンポーネントです。
type RemoteIO struct {
	Factory remoteio.IOFactory
	Reader  remoteio.InputReader
	Writer  remoteio.OutputWriter
	Signer  remoteio.URLSigner
}

type closer interface {
	Close() error
}

// Close は、Container が保持するすべての外部接続リソースを安全に解放します。
func (c *Container) Close() {
	if c.RemoteIO != nil && c.RemoteIO.Factory != nil {
		if err := c.RemoteIO.Factory.Close(); err != nil {
			slog.Error("failed to close IOFactory", "error", err)
		}
	}
	if cl, ok := c.Dispatcher.(closer); ok {
		if err := cl.Close(); err != nil {
			slog.Error("failed to close task dispatcher", "error", err)
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			slog.Error("failed to close task store", "error", err)
		}
	}
}
