package review

import (
	"time"

	"github.com/shopspring/decimal"
)

// Submission 是一次评价提交，创建后不可变；Bonus 由 QualityScore 确定性推导。
type Submission struct {
	ReviewID           string          `json:"reviewId"`
	SessionID          string          `json:"sessionId"`
	UserID             string          `json:"userId"`
	Rating             int             `json:"rating"`
	Text               string          `json:"text"`
	QualityScore       float64         `json:"qualityScore"`
	Bonus              int             `json:"bonus"`
	Label              string          `json:"label"`
	Feedback           string          `json:"feedback"`
	AppliedBonusAmount decimal.Decimal `json:"appliedBonusAmount"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Request is what the review form posts.
type Request struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Rating    int    `json:"rating"`
	Text      string `json:"text"`
}

// BackendResult is the scoring the backend returns for a review.
type BackendResult struct {
	ReviewID           string
	QualityScore       float64
	BonusPercentage    int
	AppliedBonusAmount decimal.Decimal
}

// Preview is a draft grade shown before the user submits.
type Preview struct {
	QualityScore float64 `json:"qualityScore"`
	Bonus        int     `json:"bonus"`
	Label        string  `json:"label"`
	Feedback     string  `json:"feedback"`
	Source       string  `json:"source"` // "ai" or "heuristic"
}
