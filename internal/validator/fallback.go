package validator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skydeed/skydeed/internal/domain"
)

// 价格带边界（单层要价，USD）与各带固定置信度
var (
	bandExcellent = decimal.NewFromInt(30000)
	bandGood      = decimal.NewFromInt(50000)
	bandFair      = decimal.NewFromInt(70000)
	bandPoor      = decimal.NewFromInt(90000)
)

// 上下文洞察阈值
const (
	manyFloorsThreshold = 20    // 可售楼层超过此值视为大宗挂牌
	tallBuildingMeters  = 150.0 // 规划高度超过此值视为超高层
)

// computeFallback 确定性估价：单层要价分带 -> 评级/置信度
// 输出与真实后端同构，调用方不需要区分路径
func computeFallback(listing *domain.ListingDescriptor) *domain.ValidationResult {
	ppf := listing.PricePerFloor()

	var rating domain.PriceRating
	var confidence float64
	switch {
	case ppf.LessThan(bandExcellent):
		rating, confidence = domain.RatingExcellent, 0.95
	case ppf.LessThan(bandGood):
		rating, confidence = domain.RatingGood, 0.88
	case ppf.LessThan(bandFair):
		rating, confidence = domain.RatingFair, 0.82
	case ppf.LessThan(bandPoor):
		rating, confidence = domain.RatingPoor, 0.75
	default:
		rating, confidence = domain.RatingOverpriced, 0.91
	}

	insights := []string{
		fmt.Sprintf("每层要价约 $%s，评级 %s", ppf.Round(0).String(), rating),
	}
	if listing.AvailableFloors > manyFloorsThreshold {
		insights = append(insights, fmt.Sprintf("可售楼层 %d 层，属于大宗挂牌，适合分批收购", listing.AvailableFloors))
	}
	if listing.MaxHeight > tallBuildingMeters {
		insights = append(insights, fmt.Sprintf("规划高度 %.0fm，超高层空域权通常有额外溢价空间", listing.MaxHeight))
	}

	return &domain.ValidationResult{
		Rating:         rating,
		MarketPosition: domain.PositionForRating(rating),
		Confidence:     confidence,
		Insights:       insights,
		ValidatedAt:    time.Now(),
	}
}
