package domain

// MintReceipt 一次成功铸造的结果（创建后不可变）
type MintReceipt struct {
	TxHash      string `json:"txHash"`
	TokenID     uint64 `json:"tokenId"` // Transfer 事件缺失时为 0（降级结果，铸造本身已成功）
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	ExplorerURL string `json:"explorerUrl"`
}
