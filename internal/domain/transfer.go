package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus 跨链转移状态
// 状态机：pending -> sent -> delivered；pending -> failed
// 一旦 sent，只能由外部确认推进到 delivered，客户端不得标记 failed
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferSent      TransferStatus = "sent"
	TransferDelivered TransferStatus = "delivered"
	TransferFailed    TransferStatus = "failed"
)

// CanTransition 判断状态迁移是否合法（只允许前向迁移）
func (s TransferStatus) CanTransition(next TransferStatus) bool {
	switch s {
	case TransferPending:
		return next == TransferSent || next == TransferFailed
	case TransferSent:
		return next == TransferDelivered
	default:
		return false
	}
}

// Terminal 是否终态
func (s TransferStatus) Terminal() bool {
	return s == TransferDelivered || s == TransferFailed
}

// TokenPayload 被转移 token 的描述性数据
type TokenPayload struct {
	TokenID         uint64 `json:"tokenId"`
	Name            string `json:"name"`
	PropertyAddress string `json:"propertyAddress"`
	ImageURI        string `json:"imageUri,omitempty"`
	MetadataURI     string `json:"metadataUri,omitempty"`
}

// TransferRecord 一次跨链转移记录
// Status 由 Manager 通过 update-by-id 推进；整条历史持久化并在启动时恢复
type TransferRecord struct {
	ID            string          `json:"id"`
	SourceChain   string          `json:"sourceChain"`
	DestChain     string          `json:"destChain"`
	Payload       TokenPayload    `json:"payload"`
	Status        TransferStatus  `json:"status"`
	MessageID     string          `json:"messageId,omitempty"`
	TxHash        string          `json:"txHash,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	PaymentToken  string          `json:"paymentToken,omitempty"`  // 空表示原生代币支付
	PaymentAmount decimal.Decimal `json:"paymentAmount"`
	FailReason    string          `json:"failReason,omitempty"`
}
