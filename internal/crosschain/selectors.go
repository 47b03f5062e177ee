package crosschain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/skydeed/skydeed/internal/config"
)

// 链路解析错误
var (
	// ErrSameChain 源链与目标链相同
	ErrSameChain = errors.New("crosschain: source and destination chain are identical")
	// ErrUnknownChain 链名没有对应的 selector
	ErrUnknownChain = errors.New("crosschain: unknown chain")
	// ErrContractsNotDeployed 该链对缺少 sender/receiver 合约配置
	ErrContractsNotDeployed = errors.New("crosschain: sender/receiver contracts not deployed for chain pair")
)

// Route 一条已解析的跨链链路
type Route struct {
	SourceChain  string
	DestChain    string
	DestSelector uint64         // 协议级 chain selector（与原生 chainID 是两个命名空间）
	Sender       common.Address // 源链 sender 合约
	Receiver     common.Address // 目标链 receiver 合约
}

// SelectorTable 逻辑链名 -> selector / 合约地址
type SelectorTable struct {
	selectors map[string]uint64
	senders   map[string]common.Address
	receivers map[string]common.Address
}

// NewSelectorTable 从配置构建路由表
func NewSelectorTable(cfg config.ChainlinkConfig) *SelectorTable {
	t := &SelectorTable{
		selectors: make(map[string]uint64, len(cfg.Selectors)),
		senders:   make(map[string]common.Address, len(cfg.Senders)),
		receivers: make(map[string]common.Address, len(cfg.Receivers)),
	}
	for name, sel := range cfg.Selectors {
		t.selectors[normalizeChain(name)] = sel
	}
	for name, addr := range cfg.Senders {
		t.senders[normalizeChain(name)] = common.HexToAddress(addr)
	}
	for name, addr := range cfg.Receivers {
		t.receivers[normalizeChain(name)] = common.HexToAddress(addr)
	}
	return t
}

// Selector 查询协议级 chain selector
func (t *SelectorTable) Selector(chain string) (uint64, error) {
	sel, ok := t.selectors[normalizeChain(chain)]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownChain, "chain %q", chain)
	}
	return sel, nil
}

// Resolve 解析链对为可用链路
// 顺序：同链检查 -> selector 存在 -> sender/receiver 合约齐备
func (t *SelectorTable) Resolve(src, dst string) (*Route, error) {
	src = normalizeChain(src)
	dst = normalizeChain(dst)
	if src == dst {
		return nil, ErrSameChain
	}

	destSel, err := t.Selector(dst)
	if err != nil {
		return nil, err
	}
	if _, err := t.Selector(src); err != nil {
		return nil, err
	}

	sender, ok := t.senders[src]
	if !ok || sender == (common.Address{}) {
		return nil, errors.Wrapf(ErrContractsNotDeployed, "no sender on %q", src)
	}
	receiver, ok := t.receivers[dst]
	if !ok || receiver == (common.Address{}) {
		return nil, errors.Wrapf(ErrContractsNotDeployed, "no receiver on %q", dst)
	}

	return &Route{
		SourceChain:  src,
		DestChain:    dst,
		DestSelector: destSel,
		Sender:       sender,
		Receiver:     receiver,
	}, nil
}

func normalizeChain(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
