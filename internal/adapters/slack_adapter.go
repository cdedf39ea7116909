package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"graphic-novel-web/internal/domain"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/shouni/go-notifier/pkg/factory"
)

// SlackSender は go-notifier の Slack クライアントのうち、送信に使う部分です。
type SlackSender interface {
	SendTextWithHeader(ctx context.Context, header, text string) error
}

// SlackAdapter はジョブの完了・失敗を Slack に通知します。Webhook 未設定の場合は何もしません。
type SlackAdapter struct {
	sender SlackSender
}

// NewSlackAdapter は go-notifier の Slack クライアントを初期化します。
func NewSlackAdapter(httpClient httpkit.HTTPClient, webhookURL string) (*SlackAdapter, error) {
	if webhookURL == "" {
		return &SlackAdapter{}, nil
	}
	client, err := factory.GetSlackClient(httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize slack client: %w", err)
	}
	return &SlackAdapter{sender: client}, nil
}

// NewSlackAdapterWith は任意の送信者を使う SlackAdapter を作成します。
func NewSlackAdapterWith(sender SlackSender) *SlackAdapter {
	return &SlackAdapter{sender: sender}
}

// Notify は完成したグラフィックノベルの情報を送信します。
func (a *SlackAdapter) Notify(ctx context.Context, publicURL, storageURI string, req domain.NotificationRequest) error {
	if a.sender == nil {
		slog.DebugContext(ctx, "Slack is not configured, notification skipped", "task_id", req.TaskID)
		return nil
	}

	title := "📚 グラフィックノベルが完成しました！"
	if err := a.sender.SendTextWithHeader(ctx, title, buildCompletionContent(publicURL, storageURI, req)); err != nil {
		return fmt.Errorf("failed to post slack notification: %w", err)
	}

	slog.InfoContext(ctx, "Slack completion notification sent", "task_id", req.TaskID, "public_url", publicURL)
	return nil
}

// NotifyError はエラー詳細と実行メタデータを送信します。
func (a *SlackAdapter) NotifyError(ctx context.Context, errDetail error, req domain.NotificationRequest) error {
	if a.sender == nil {
		slog.DebugContext(ctx, "Slack is not configured, error notification skipped", "task_id", req.TaskID, "error", errDetail)
		return nil
	}

	title := "❌ グラフィックノベルの生成に失敗しました"

	var sb strings.Builder
	fmt.Fprintf(&sb, "*タスク:* `%s`\n", req.TaskID)
	fmt.Fprintf(&sb, "*作品:* `%s`\n", req.TargetTitle)
	fmt.Fprintf(&sb, "*利用者:* `%s`\n\n", req.OwnerID)
	sb.WriteString("*エラー内容:*\n")
	fmt.Fprintf(&sb, "```\n%v\n```\n", errDetail)
	if req.OutputCategory != "" && req.OutputCategory != domain.CategoryNotAvailable {
		fmt.Fprintf(&sb, "\n📍 *カテゴリ:* `%s`", req.OutputCategory)
	}

	if err := a.sender.SendTextWithHeader(ctx, title, sb.String()); err != nil {
		return fmt.Errorf("failed to post slack error notification: %w", err)
	}

	slog.InfoContext(ctx, "Slack error notification sent", "task_id", req.TaskID)
	return nil
}

func buildCompletionContent(publicURL, storageURI string, req domain.NotificationRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*タスク:* `%s`\n", req.TaskID)
	fmt.Fprintf(&sb, "*作品:* `%s`\n", req.TargetTitle)
	fmt.Fprintf(&sb, "*利用者:* `%s`\n\n", req.OwnerID)

	if publicURL != "" && publicURL != domain.CategoryNotAvailable {
		fmt.Fprintf(&sb, "🌐 *詳細:* <%s|ここから確認>\n", publicURL)
	}
	if strings.HasPrefix(storageURI, "gs://") {
		consoleURL := "https://console.cloud.google.com/storage/browser/" + strings.TrimPrefix(storageURI, "gs://")
		fmt.Fprintf(&sb, "📂 *管理者(Console):* <%s|GCSで確認>\n", consoleURL)
	}
	if storageURI != "" && storageURI != domain.CategoryNotAvailable {
		fmt.Fprintf(&sb, "📍 *1ページ目:* `%s`\n", storageURI)
	}
	if req.PlaceholderPages > 0 {
		fmt.Fprintf(&sb, "\n⚠️ _%d ページは代替画像で表示されています。_", req.PlaceholderPages)
	}
	return sb.String()
}
