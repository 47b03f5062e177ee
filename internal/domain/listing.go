package domain

import (
	"github.com/shopspring/decimal"
)

// ListingDescriptor 一条空域权挂牌（上游挂牌数据，创建后不可变）
type ListingDescriptor struct {
	TokenID         string          `json:"tokenId"`         // 上游 token 标识
	PropertyAddress string          `json:"propertyAddress"` // 物业地址
	CurrentHeight   float64         `json:"currentHeight"`   // 当前建筑高度（米）
	MaxHeight       float64         `json:"maxHeight"`       // 规划最大高度（米）
	AvailableFloors int             `json:"availableFloors"` // 可出售楼层数
	AskingPrice     decimal.Decimal `json:"askingPrice"`     // 要价（USD）
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
}

// IsValid 验证挂牌是否可用于估价/铸造
func (l *ListingDescriptor) IsValid() bool {
	return l != nil && l.PropertyAddress != "" && l.AvailableFloors > 0 && l.AskingPrice.IsPositive()
}

// PricePerFloor 单层要价；AvailableFloors<=0 时返回零值
func (l *ListingDescriptor) PricePerFloor() decimal.Decimal {
	if l == nil || l.AvailableFloors <= 0 {
		return decimal.Zero
	}
	return l.AskingPrice.Div(decimal.NewFromInt(int64(l.AvailableFloors)))
}
