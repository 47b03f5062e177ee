package minting

import (
	"errors"
	"fmt"
	"strings"
)

// 前置条件与执行期的类型化错误
// 每一类都对应前端一条独立的用户可见提示，禁止折叠成笼统的 "mint failed"
var (
	// ErrProviderUnavailable 找不到可用的签名 provider
	ErrProviderUnavailable = errors.New("minting: signing provider unavailable")
	// ErrNetworkSwitchFailed 切换（含添加）目标网络失败
	ErrNetworkSwitchFailed = errors.New("minting: network switch failed")
	// ErrNotAuthorized 接收地址不在授权铸造名单且不是合约 owner
	ErrNotAuthorized = errors.New("minting: recipient not authorized to mint")
	// ErrDuplicateListing 该物业 key 已在链上存在
	ErrDuplicateListing = errors.New("minting: listing already minted")
	// ErrUserRejected 用户在钱包里拒绝了签名
	ErrUserRejected = errors.New("minting: user rejected the transaction")
	// ErrInsufficientFunds 账户余额不足以支付 gas
	ErrInsufficientFunds = errors.New("minting: insufficient funds for gas")

	// ErrUnrecognizedNetwork provider 不认识目标网络（需要先 AddNetwork）
	ErrUnrecognizedNetwork = errors.New("minting: network not recognized by provider")
)

// RPCError 节点级失败；调用方可重试
type RPCError struct {
	Err error
}

func (e *RPCError) Error() string { return fmt.Sprintf("minting: rpc failure: %v", e.Err) }
func (e *RPCError) Unwrap() error { return e.Err }

// RevertError 合约 revert；Reason 为链上原因原文
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return fmt.Sprintf("minting: contract revert: %s", e.Reason) }

// mapSendError 把 provider/节点返回的错误映射到类型化错误
// revert 原因会进一步映射到具体条件（重复挂牌 / 未授权 / 一般 revert）
func mapSendError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return ErrUserRejected
	case strings.Contains(msg, "insufficient funds"):
		return ErrInsufficientFunds
	case strings.Contains(msg, "execution reverted"):
		return mapRevert(msg)
	default:
		return &RPCError{Err: err}
	}
}

// mapRevert 根据 revert 原因细分条件
func mapRevert(reason string) error {
	switch {
	case strings.Contains(reason, "already minted"), strings.Contains(reason, "duplicate"):
		return ErrDuplicateListing
	case strings.Contains(reason, "not authorized"), strings.Contains(reason, "unauthorized"):
		return ErrNotAuthorized
	default:
		return &RevertError{Reason: reason}
	}
}
