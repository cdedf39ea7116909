package builder

import (
	"fmt"
	"net/url"

	"graphic-novel-web/internal/adapters"
	"graphic-novel-web/internal/app"
	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/domain"
	"graphic-novel-web/internal/server/handlers"

	"github.com/shouni/gcp-kit/auth"
	"github.com/shouni/gcp-kit/worker"
)

const defaultSessionName = "graphic-novel-session"

// AppHandlers は生成されたすべての HTTP ハンドラーを保持する構造体です。
// server パッケージはこの構造体を受け取ってルーティングを行います。
// Auth と Worker は Cloud Tasks ディスパッチ時のみ設定されます。
type AppHandlers struct {
	Auth   *auth.Handler
	API    *handlers.Handler
	Worker *worker.Handler[domain.GenerateTaskPayload]
}

// BuildHandlers は各ハンドラーの依存関係をすべて組み立て、AppHandlers 構造体を返します。
func BuildHandlers(c *app.Container) (*AppHandlers, error) {
	var coach handlers.AssetCoach
	if c.Coach != nil {
		coach = c.Coach
	}
	apiHandler, err := handlers.NewHandler(c.Orchestrator, coach, c.Resolver, c.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API handler: %w", err)
	}

	h := &AppHandlers{API: apiHandler}
	if c.Config.DispatchMode != config.DispatchCloudTasks {
		return h, nil
	}

	authHandler, err := createAuthHandler(c)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth handler: %w", err)
	}
	h.Auth = authHandler
	h.Worker = worker.NewHandler[domain.GenerateTaskPayload](adapters.NewTaskExecutor(c.Orchestrator))
	return h, nil
}

// createAuthHandler は Cloud Tasks の OIDC トークン検証に使う認証ハンドラーを生成します。
func createAuthHandler(c *app.Container) (*auth.Handler, error) {
	cfg := c.Config
	redirectURL, err := url.JoinPath(cfg.ServiceURL, "/auth/callback")
	if err != nil {
		return nil, fmt.Errorf("failed to build auth redirect URL: %w", err)
	}

	return auth.NewHandler(auth.Config{
		ClientID:          cfg.GoogleClientID,
		ClientSecret:      cfg.GoogleClientSecret,
		RedirectURL:       redirectURL,
		SessionAuthKey:    cfg.SessionSecret,
		SessionEncryptKey: cfg.SessionEncryptKey,
		SessionName:       defaultSessionName,
		IsSecureCookie:    c.HTTPClient.IsSecureServiceURL(cfg.ServiceURL),
		AllowedEmails:     cfg.AllowedEmails,
		AllowedDomains:    cfg.AllowedDomains,
		TaskAudienceURL:   cfg.TaskAudienceURL,
	})
}
