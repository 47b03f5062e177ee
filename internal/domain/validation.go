package domain

import "time"

// PriceRating 估价评级
type PriceRating string

const (
	RatingExcellent  PriceRating = "excellent"
	RatingGood       PriceRating = "good"
	RatingFair       PriceRating = "fair"
	RatingPoor       PriceRating = "poor"
	RatingOverpriced PriceRating = "overpriced"
)

// MarketPosition 相对市场位置
type MarketPosition string

const (
	PositionUnderpriced MarketPosition = "underpriced"
	PositionFair        MarketPosition = "fair"
	PositionOverpriced  MarketPosition = "overpriced"
)

// ValidationResult 一次估价的输出（创建后不可变，不持久化）
type ValidationResult struct {
	Rating         PriceRating    `json:"rating"`
	MarketPosition MarketPosition `json:"marketPosition"`
	Confidence     float64        `json:"confidence"` // 0..1
	Insights       []string       `json:"insights"`   // 人类可读的说明，保持输入顺序
	ValidatedAt    time.Time      `json:"validatedAt"`
	Signature      string         `json:"signature,omitempty"` // 后端 attestation（fallback 路径为空或本地标记）
}

// PositionForRating 评级到市场位置的固定映射
func PositionForRating(r PriceRating) MarketPosition {
	switch r {
	case RatingExcellent, RatingGood:
		return PositionUnderpriced
	case RatingFair:
		return PositionFair
	default:
		return PositionOverpriced
	}
}
