package domain

const CategoryNotAvailable = "N/A"

// NotificationRequest は Slack 等の通知コンポーネントで共有されるデータ構造です。
// 完了・失敗したジョブのメタデータを通知先に伝えるために使用します。
type NotificationRequest struct {
	// TaskID は対象ジョブの ID です。
	TaskID string `json:"task_id"`

	// OwnerID はジョブを作成した利用者です。
	OwnerID string `json:"owner_id"`

	// OutputCategory は、通知の種別です。(例: "graphic-novel", "error-report")
	OutputCategory string `json:"output_category"`

	// TargetTitle は、通知に表示する見出しです。(例: "adventure / 8 pages")
	TargetTitle string `json:"target_title"`

	// PlaceholderPages は代替画像で埋めたページ数です。
	PlaceholderPages int `json:"placeholder_pages"`
}
