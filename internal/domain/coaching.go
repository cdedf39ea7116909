package domain

// CoachingCost は素材コーチング 1 回分のクレジットです。
const CoachingCost = 5

// CoachRequest は素材コーチング API の入力です。
type CoachRequest struct {
	OwnerID  string `json:"ownerId" validate:"required,max=128"`
	ImageURL string `json:"imageUrl" validate:"required,max=16777216"`
	Slot     int    `json:"slot" validate:"required,min=1,max=4"`
	Vibe     string `json:"vibe" validate:"omitempty,oneof=adventure funny fairytale school"`
}

// Coaching は素材画像に対する子ども向けの講評です。
type Coaching struct {
	Detected    string   `json:"detected"`
	Suggestions []string `json:"suggestions"`
	Feedback    string   `json:"feedback"`
}

// CoachResult は講評に信頼度と消費クレジットを加えた API の出力です。
type CoachResult struct {
	Coaching
	Confidence     float64 `json:"confidence"`
	PointsDeducted int     `json:"pointsDeducted"`
	// Attempt は講評を生成した戦略の番号 (1 始まり) です。
	Attempt int `json:"attempt"`
}
