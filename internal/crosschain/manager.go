package crosschain

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/skydeed/skydeed/internal/domain"
	"github.com/skydeed/skydeed/internal/minting"
)

var (
	// ErrTransferNotFound 指定 id 的转移记录不存在
	ErrTransferNotFound = errors.New("crosschain: transfer not found")
	// ErrInvalidTransition 非法状态迁移
	ErrInvalidTransition = errors.New("crosschain: invalid status transition")
	// ErrNoProvider 未配置签名 provider，发送与估费不可用
	ErrNoProvider = errors.New("crosschain: no signing provider configured")
)

// SenderABI 源链 sender 合约 ABI（仅客户端用到的函数）
const SenderABI = `[
	{
		"inputs": [
			{"name": "destinationChainSelector", "type": "uint64"},
			{"name": "receiver", "type": "address"},
			{"name": "tokenData", "type": "string"}
		],
		"name": "sendMessage",
		"outputs": [{"name": "messageId", "type": "bytes32"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "destinationChainSelector", "type": "uint64"},
			{"name": "receiver", "type": "address"},
			{"name": "tokenData", "type": "string"}
		],
		"name": "getFee",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// messageSentTopic sender 合约 MessageSent(bytes32) 事件签名
var messageSentTopic = crypto.Keccak256Hash([]byte("MessageSent(bytes32)"))

// SendOptions 跨链发送的支付选项
type SendOptions struct {
	PaymentToken  string // 空表示原生代币
	PaymentAmount decimal.Decimal
}

// ManagerConfig 转移管理器配置
type ManagerConfig struct {
	SourceChain string
	Table       *SelectorTable
	Store       *HistoryStore
	Provider    minting.ChainProvider
	Checker     StatusChecker
}

// Manager 跨链转移管理器
// 记录按创建顺序维护，状态推进一律走 update-by-id，
// delivered 只接受外部确认（StatusChecker 或投递推送），不做本地臆断
type Manager struct {
	mu sync.Mutex

	sourceChain string
	table       *SelectorTable
	store       *HistoryStore
	provider    minting.ChainProvider
	checker     StatusChecker
	abi         abi.ABI

	order   []string
	records map[string]*domain.TransferRecord
	seqs    map[string]uint64
	nextSeq uint64

	log *logrus.Entry
}

// NewManager 创建管理器并从持久层恢复历史
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Table == nil {
		return nil, errors.New("crosschain: selector table is required")
	}
	parsed, err := abi.JSON(strings.NewReader(SenderABI))
	if err != nil {
		return nil, errors.Wrap(err, "crosschain: parse sender abi")
	}

	m := &Manager{
		sourceChain: normalizeChain(cfg.SourceChain),
		table:       cfg.Table,
		store:       cfg.Store,
		provider:    cfg.Provider,
		checker:     cfg.Checker,
		abi:         parsed,
		records:     make(map[string]*domain.TransferRecord),
		seqs:        make(map[string]uint64),
		log:         logrus.WithField("service", "crosschain"),
	}

	if cfg.Store != nil {
		restored, nextSeq, err := cfg.Store.All()
		if err != nil {
			return nil, errors.Wrap(err, "crosschain: restore history")
		}
		for i := range restored {
			rec := restored[i]
			m.order = append(m.order, rec.ID)
			m.records[rec.ID] = &rec
			m.seqs[rec.ID] = nextSeq - uint64(len(restored)-i)
		}
		m.nextSeq = nextSeq
		if len(restored) > 0 {
			m.log.WithField("count", len(restored)).Info("已恢复跨链转移历史")
		}
	}
	return m, nil
}

// EstimateFee 估算跨链费用（原生代币计）
// 链路解析失败时不会发出任何网络请求
func (m *Manager) EstimateFee(ctx context.Context, destChain string, payload *domain.TokenPayload) (decimal.Decimal, error) {
	route, err := m.table.Resolve(m.sourceChain, destChain)
	if err != nil {
		return decimal.Zero, err
	}
	if m.provider == nil {
		return decimal.Zero, ErrNoProvider
	}

	data, err := m.packPayloadCall("getFee", route, payload)
	if err != nil {
		return decimal.Zero, err
	}
	out, err := m.provider.CallContract(ctx, route.Sender, data)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "crosschain: fee query failed")
	}
	fee, err := m.abi.Unpack("getFee", out)
	if err != nil || len(fee) != 1 {
		return decimal.Zero, errors.Wrap(err, "crosschain: unpack fee")
	}
	wei, ok := fee[0].(*big.Int)
	if !ok {
		return decimal.Zero, errors.New("crosschain: unexpected fee type")
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

// SendPayload 发起一次跨链转移，返回转移记录 id
// 发送失败时记录保留为 failed，id 仍然返回给调用方
func (m *Manager) SendPayload(ctx context.Context, destChain string, payload *domain.TokenPayload, opts SendOptions) (string, error) {
	// 先解析链路：同链/未部署在任何网络调用之前拦下
	route, err := m.table.Resolve(m.sourceChain, destChain)
	if err != nil {
		return "", err
	}
	// 没有签名 provider 就不登记记录，避免留下永远 pending 的孤儿
	if m.provider == nil {
		return "", ErrNoProvider
	}

	rec := &domain.TransferRecord{
		ID:            uuid.NewString(),
		SourceChain:   route.SourceChain,
		DestChain:     route.DestChain,
		Payload:       *payload,
		Status:        domain.TransferPending,
		CreatedAt:     time.Now().UTC(),
		PaymentToken:  opts.PaymentToken,
		PaymentAmount: opts.PaymentAmount,
	}
	if err := m.append(rec); err != nil {
		return "", err
	}

	data, err := m.packPayloadCall("sendMessage", route, payload)
	if err != nil {
		m.markFailed(rec.ID, err.Error())
		return rec.ID, err
	}

	txHash, err := m.submit(ctx, route.Sender, data)
	if err != nil {
		m.markFailed(rec.ID, err.Error())
		return rec.ID, errors.Wrap(err, "crosschain: send failed")
	}

	if err := m.update(rec.ID, domain.TransferSent, func(r *domain.TransferRecord) {
		r.TxHash = txHash.Hex()
	}); err != nil {
		return rec.ID, err
	}
	m.log.WithFields(logrus.Fields{
		"id":   rec.ID,
		"tx":   txHash.Hex(),
		"dest": route.DestChain,
	}).Info("跨链消息已提交")

	// 尽力取一次回执拿 messageId，拿不到就留给 CheckStatus 补
	if receipt, rerr := m.provider.TransactionReceipt(ctx, txHash); rerr == nil && receipt != nil {
		if msgID, ok := extractMessageID(receipt, route.Sender); ok {
			_ = m.annotate(rec.ID, func(r *domain.TransferRecord) {
				r.MessageID = msgID
			})
		}
	}
	return rec.ID, nil
}

// CheckStatus 查询并推进一条转移的状态
// sent 记录向中继查询投递确认，确认后推进到 delivered
func (m *Manager) CheckStatus(ctx context.Context, id string) (domain.TransferStatus, error) {
	rec, ok := m.Record(id)
	if !ok {
		return "", ErrTransferNotFound
	}
	if rec.Status != domain.TransferSent {
		return rec.Status, nil
	}

	messageID := rec.MessageID
	if messageID == "" {
		messageID = m.backfillMessageID(ctx, rec)
		if messageID == "" {
			return domain.TransferSent, nil
		}
	}

	if m.checker == nil {
		return domain.TransferSent, nil
	}
	state, err := m.checker.MessageState(ctx, messageID)
	if err != nil {
		return domain.TransferSent, err
	}
	if state == MessageDelivered {
		if err := m.update(id, domain.TransferDelivered, nil); err != nil {
			return rec.Status, err
		}
		return domain.TransferDelivered, nil
	}
	return domain.TransferSent, nil
}

// ConfirmDelivered 按 messageId 确认投递（投递推送回调用）
func (m *Manager) ConfirmDelivered(messageID string) error {
	m.mu.Lock()
	var id string
	for _, rec := range m.records {
		if rec.MessageID == messageID {
			id = rec.ID
			break
		}
	}
	m.mu.Unlock()
	if id == "" {
		return errors.Wrapf(ErrTransferNotFound, "messageId %s", messageID)
	}
	return m.update(id, domain.TransferDelivered, nil)
}

// Record 取一条记录的副本
func (m *Manager) Record(id string) (domain.TransferRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.TransferRecord{}, false
	}
	return *rec, true
}

// History 按创建顺序返回全部记录的副本
func (m *Manager) History() []domain.TransferRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TransferRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.records[id])
	}
	return out
}

// ClearHistory 显式清空历史（内存 + 持久层），不受重启影响
func (m *Manager) ClearHistory() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			return err
		}
	}
	m.order = nil
	m.records = make(map[string]*domain.TransferRecord)
	m.seqs = make(map[string]uint64)
	return nil
}

// append 登记新记录并持久化
func (m *Manager) append(rec *domain.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.nextSeq
	m.nextSeq++
	m.order = append(m.order, rec.ID)
	m.records[rec.ID] = rec
	m.seqs[rec.ID] = seq
	return m.persistLocked(rec.ID)
}

// update 按 id 推进状态，迁移必须合法
func (m *Manager) update(id string, next domain.TransferStatus, mutate func(*domain.TransferRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrTransferNotFound
	}
	if !rec.Status.CanTransition(next) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", rec.Status, next)
	}
	rec.Status = next
	if mutate != nil {
		mutate(rec)
	}
	return m.persistLocked(id)
}

// annotate 改记录的附属字段，不动状态
func (m *Manager) annotate(id string, mutate func(*domain.TransferRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrTransferNotFound
	}
	mutate(rec)
	return m.persistLocked(id)
}

func (m *Manager) markFailed(id, reason string) {
	if err := m.update(id, domain.TransferFailed, func(r *domain.TransferRecord) {
		r.FailReason = reason
	}); err != nil {
		m.log.WithError(err).WithField("id", id).Warn("标记失败状态未成功")
	}
}

func (m *Manager) persistLocked(id string) error {
	if m.store == nil {
		return nil
	}
	return m.store.Put(m.seqs[id], m.records[id])
}

func (m *Manager) backfillMessageID(ctx context.Context, rec domain.TransferRecord) string {
	if rec.TxHash == "" || m.provider == nil {
		return ""
	}
	route, err := m.table.Resolve(rec.SourceChain, rec.DestChain)
	if err != nil {
		return ""
	}
	receipt, err := m.provider.TransactionReceipt(ctx, common.HexToHash(rec.TxHash))
	if err != nil || receipt == nil {
		return ""
	}
	msgID, ok := extractMessageID(receipt, route.Sender)
	if !ok {
		return ""
	}
	_ = m.annotate(rec.ID, func(r *domain.TransferRecord) {
		r.MessageID = msgID
	})
	return msgID
}

func (m *Manager) packPayloadCall(method string, route *Route, payload *domain.TokenPayload) ([]byte, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	data, err := m.abi.Pack(method, route.DestSelector, route.Receiver, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "crosschain: pack %s", method)
	}
	return data, nil
}

func (m *Manager) submit(ctx context.Context, sender common.Address, data []byte) (common.Hash, error) {
	account, err := m.provider.Account(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	gasLimit, err := m.provider.EstimateGas(ctx, account, sender, data)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := m.provider.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return m.provider.SubmitTransaction(ctx, sender, data, gasLimit, gasPrice)
}

// marshalPayload token 数据以 JSON 字符串形式上链
func marshalPayload(payload *domain.TokenPayload) (string, error) {
	if payload == nil {
		return "", errors.New("crosschain: payload is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "crosschain: encode payload")
	}
	return string(raw), nil
}

// extractMessageID 从回执日志提取 MessageSent 事件里的 messageId
func extractMessageID(receipt *ethtypes.Receipt, sender common.Address) (string, bool) {
	for _, log := range receipt.Logs {
		if log == nil || log.Address != sender {
			continue
		}
		if len(log.Topics) != 2 || log.Topics[0] != messageSentTopic {
			continue
		}
		return log.Topics[1].Hex(), true
	}
	return "", false
}
