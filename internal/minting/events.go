package minting

import (
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// transferTopic ERC-721 Transfer(address,address,uint256) 事件签名
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// extractTokenID 从回执日志里提取新分配的 tokenID
// 按 "在日志列表里找第一条形状匹配的事件" 处理：找不到返回 (0, false)，不报错
func extractTokenID(receipt *ethtypes.Receipt, contract common.Address) (uint64, bool) {
	if receipt == nil {
		return 0, false
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != contract {
			continue
		}
		// ERC-721 Transfer 有 4 个 topic：签名 + from + to + tokenId（均 indexed）
		if len(log.Topics) != 4 || log.Topics[0] != transferTopic {
			continue
		}
		return log.Topics[3].Big().Uint64(), true
	}
	return 0, false
}
