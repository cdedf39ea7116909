package domain

import (
	"fmt"
	"time"
)

// GenerateTaskPayload は、Cloud Tasks 経由でワーカーに渡される実行指示を表します。
// ジョブの入力はすべてタスクレコード側に保存されているため、ID のみを運びます。
type GenerateTaskPayload struct {
	// TaskID は実行対象のジョブIDです。
	TaskID string `json:"task_id"`
}

// Job はグラフィックノベル生成リクエスト1件分の状態を保持する中心エンティティです。
// ポーリングで公開されるフィールドと、ワーカーだけが参照する内部フィールドを併せ持ちます。
type Job struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	Status         Status     `json:"status"`
	Vibe           Vibe       `json:"vibe"`
	Layout         Layout     `json:"layout"`
	TotalPages     int        `json:"totalPages"`
	PanelsPerPage  int        `json:"panelsPerPage"`
	PagesCompleted int        `json:"pagesCompleted"`
	CurrentPage    int        `json:"currentPage"`
	Progress       int        `json:"progress"`
	StatusMessage  string     `json:"statusMessage"`
	PlotOutline    []string   `json:"plotOutline"`
	Pages          []Page     `json:"pages"`
	Cost           int        `json:"cost"`
	Error          *string    `json:"error"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	// Request は投入時の入力です。再開時に各ステージへ同じ入力を渡すために保存します。
	Request StoryRequest `json:"request"`
	// Bundle は Asset Analyzer が生成したキャラクター/設定の説明文です。
	Bundle string `json:"bundle,omitempty"`
	// Script は Panel Scriptwriter が生成した全パネルです (len == TotalPages*PanelsPerPage)。
	Script []Panel `json:"script,omitempty"`
	// CancelRequested はユーザーによる中断要求フラグです。ページ間で参照されます。
	CancelRequested bool `json:"cancelRequested,omitempty"`
	// Refunded は返金済みかどうかです。二重返金を防ぎます。
	Refunded bool `json:"refunded,omitempty"`
}

// StoryRequest はジョブ作成時に受け付けた創作パラメータです。
type StoryRequest struct {
	Assets   []Asset `json:"assets"`
	PlotHint string  `json:"plotHint,omitempty"`
	Style    string  `json:"style,omitempty"`
}

// Asset はユーザーが提供した 1 スロット分の素材です。
type Asset struct {
	Slot        int    `json:"slot"`
	ImageURL    string `json:"imageUrl"`
	Description string `json:"description,omitempty"`
}

// Page はレンダリング済みの 1 ページです。
type Page struct {
	PageNumber  int     `json:"pageNumber"`
	ImageURL    string  `json:"imageUrl"`
	ChapterText string  `json:"chapterText"`
	Panels      []Panel `json:"panels"`
	// RenderAttempt は画像を生成したレンダリング戦略の番号 (1 始まり) です。
	RenderAttempt int `json:"renderAttempt"`
	// Placeholder はプロバイダーがすべて失敗し、代替画像を使ったページであることを示します。
	Placeholder bool `json:"placeholder,omitempty"`
}

// Panel はページ内のコマ 1 つ分の台本です。
type Panel struct {
	PanelIndex       int            `json:"panelIndex"`
	Dialogue         string         `json:"dialogue"`
	SceneDescription string         `json:"sceneDescription"`
	Emotion          string         `json:"emotion"`
	BubbleType       BubbleType     `json:"bubbleType"`
	BubblePosition   BubblePosition `json:"bubblePosition"`
}

// IsTerminal はジョブが終端状態 (COMPLETED / FAILED) かを返します。
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Validate はジョブの構造的不変条件を検証します。ストアは書き込みのたびにこれを呼びます。
func (j *Job) Validate() error {
	if !ValidPageCount(j.TotalPages) {
		return fmt.Errorf("%w: totalPages %d", ErrInvariant, j.TotalPages)
	}
	if j.PanelsPerPage != Standard.PanelsPerPage() && j.PanelsPerPage != Dynamic.PanelsPerPage() {
		return fmt.Errorf("%w: panelsPerPage %d", ErrInvariant, j.PanelsPerPage)
	}
	if j.PagesCompleted < 0 || j.PagesCompleted > j.TotalPages {
		return fmt.Errorf("%w: pagesCompleted %d out of range", ErrInvariant, j.PagesCompleted)
	}
	if j.PagesCompleted != len(j.Pages) {
		return fmt.Errorf("%w: pagesCompleted %d != len(pages) %d", ErrInvariant, j.PagesCompleted, len(j.Pages))
	}
	if j.PlotOutline != nil && len(j.PlotOutline) != j.TotalPages {
		return fmt.Errorf("%w: outline has %d entries, want %d", ErrInvariant, len(j.PlotOutline), j.TotalPages)
	}
	for _, p := range j.Pages {
		if len(p.Panels) != j.PanelsPerPage {
			return fmt.Errorf("%w: page %d has %d panels, want %d", ErrInvariant, p.PageNumber, len(p.Panels), j.PanelsPerPage)
		}
	}
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("%w: progress %d", ErrInvariant, j.Progress)
	}
	return nil
}

// CheckUpdate は prev から j への変更が許可されているかを検証します。
// 終端状態からの変更、状態の後退、ページ数の減少を拒否します。
func (j *Job) CheckUpdate(prev *Job) error {
	if prev.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrTerminal, prev.ID, prev.Status)
	}
	if !prev.Status.CanTransitionTo(j.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, j.Status)
	}
	if j.PagesCompleted < prev.PagesCompleted || len(j.Pages) < len(prev.Pages) {
		return fmt.Errorf("%w: pages may not shrink", ErrInvariant)
	}
	if prev.PlotOutline != nil && j.PlotOutline == nil {
		return fmt.Errorf("%w: outline may not be cleared", ErrInvariant)
	}
	return j.Validate()
}

// Clone は永続化層から切り離したディープコピーを返します。
func (j *Job) Clone() *Job {
	c := *j
	if j.PlotOutline != nil {
		c.PlotOutline = append([]string(nil), j.PlotOutline...)
	}
	if j.Pages != nil {
		c.Pages = make([]Page, len(j.Pages))
		for i, p := range j.Pages {
			p.Panels = append([]Panel(nil), p.Panels...)
			c.Pages[i] = p
		}
	}
	if j.Script != nil {
		c.Script = append([]Panel(nil), j.Script...)
	}
	c.Request.Assets = append([]Asset(nil), j.Request.Assets...)
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// StatusView はポーリング API が返す読み取り専用のスナップショットです。
type StatusView struct {
	Status         Status   `json:"status"`
	TotalPages     int      `json:"totalPages"`
	PagesCompleted int      `json:"pagesCompleted"`
	CurrentPage    int      `json:"currentPage"`
	Progress       int      `json:"progress"`
	StatusMessage  string   `json:"statusMessage"`
	Pages          []Page   `json:"pages"`
	PlotOutline    []string `json:"plotOutline"`
	Error          *string  `json:"error"`
}

// View はジョブからポーリング用のスナップショットを組み立てます。
func (j *Job) View() StatusView {
	pages := j.Pages
	if pages == nil {
		pages = []Page{}
	}
	return StatusView{
		Status:         j.Status,
		TotalPages:     j.TotalPages,
		PagesCompleted: j.PagesCompleted,
		CurrentPage:    j.CurrentPage,
		Progress:       j.Progress,
		StatusMessage:  j.StatusMessage,
		Pages:          pages,
		PlotOutline:    j.PlotOutline,
		Error:          j.Error,
	}
}
