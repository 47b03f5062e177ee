package minting

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/skydeed/skydeed/internal/config"
	"github.com/skydeed/skydeed/internal/domain"
)

const (
	// gasLimitMarginPct gas limit 安全边际（估算值上浮 30%，避免拥堵期欠估导致的偶发失败）
	gasLimitMarginPct = 30
	// minGasPriceWei gas 价格下限（30 gwei）
	minGasPriceWei = 30_000_000_000
	// receiptPollInterval 回执轮询间隔
	receiptPollInterval = 2 * time.Second
	// receiptPollTimeout 回执等待上限
	receiptPollTimeout = 90 * time.Second
)

// RightsTokenABI rights token 合约 ABI（只包含客户端用到的函数）
const RightsTokenABI = `[
	{
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "propertyKey", "type": "string"},
			{"name": "tokenURI", "type": "string"}
		],
		"name": "mintAirRights",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "propertyKey", "type": "string"}],
		"name": "propertyExists",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "minter", "type": "address"}],
		"name": "isAuthorizedMinter",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "owner",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ClientConfig 铸造客户端配置
type ClientConfig struct {
	Contract   common.Address       // rights token 合约地址
	Owner      common.Address       // 合约 owner（始终有铸造权）
	Authorized []common.Address     // 本地授权铸造名单（链上名单的镜像）
	Network    config.NetworkConfig // 必须铸造到的目标网络
}

// Client 授权铸造客户端
// 四个前置条件严格按序检查，每一步都依赖上一步建立的网络/账户状态
type Client struct {
	provider   ChainProvider
	cfg        ClientConfig
	abi        abi.ABI
	authorized map[common.Address]bool
	log        *logrus.Entry
}

// NewClient 创建铸造客户端
func NewClient(provider ChainProvider, cfg ClientConfig) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(RightsTokenABI))
	if err != nil {
		return nil, fmt.Errorf("minting: parse abi: %w", err)
	}
	authorized := make(map[common.Address]bool, len(cfg.Authorized))
	for _, a := range cfg.Authorized {
		authorized[a] = true
	}
	return &Client{
		provider:   provider,
		cfg:        cfg,
		abi:        parsed,
		authorized: authorized,
		log:        logrus.WithField("service", "minting"),
	}, nil
}

// Mint 铸造空域权 token
// 前置条件检查顺序（每条都是硬失败）：
// 1) provider 可达  2) 网络匹配（必要时切换/添加）  3) 接收地址有铸造权  4) 物业 key 未被占用
func (c *Client) Mint(ctx context.Context, listing *domain.ListingDescriptor, recipient common.Address) (*domain.MintReceipt, error) {
	// 1) provider 可达
	if c.provider == nil {
		return nil, ErrProviderUnavailable
	}
	account, err := c.provider.Account(ctx)
	if err != nil || account == (common.Address{}) {
		return nil, ErrProviderUnavailable
	}

	// 2) 网络匹配
	if err := c.ensureNetwork(ctx); err != nil {
		return nil, err
	}

	// 3) 授权检查
	if err := c.checkAuthorized(ctx, recipient); err != nil {
		return nil, err
	}

	// 4) 物业 key 唯一性
	propertyKey := buildPropertyKey(listing.PropertyAddress)
	if err := c.checkNotMinted(ctx, propertyKey); err != nil {
		return nil, err
	}

	// 执行铸造
	data, err := c.abi.Pack("mintAirRights", recipient, propertyKey, listing.TokenID)
	if err != nil {
		return nil, fmt.Errorf("minting: pack mint call: %w", err)
	}

	gasLimit, gasPrice, err := c.prepareGas(ctx, account, data)
	if err != nil {
		return nil, err
	}

	txHash, err := c.provider.SubmitTransaction(ctx, c.cfg.Contract, data, gasLimit, gasPrice)
	if err != nil {
		return nil, mapSendError(err)
	}

	c.log.WithFields(logrus.Fields{
		"tx":        txHash.Hex(),
		"recipient": recipient.Hex(),
		"key":       propertyKey,
	}).Info("铸造交易已提交")

	receipt, err := c.waitMined(ctx, txHash)
	if err != nil {
		return nil, &RPCError{Err: err}
	}

	// 事件缺失时 tokenID 为 0：铸造本身已成功，这是降级结果而不是失败
	tokenID, ok := extractTokenID(receipt, c.cfg.Contract)
	if !ok {
		c.log.WithField("tx", txHash.Hex()).Warn("回执中没有 Transfer 事件，tokenID 置 0")
	}

	return &domain.MintReceipt{
		TxHash:      txHash.Hex(),
		TokenID:     tokenID,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		ExplorerURL: fmt.Sprintf("%s/tx/%s", strings.TrimSuffix(c.cfg.Network.ExplorerURL, "/"), txHash.Hex()),
	}, nil
}

// ensureNetwork 确保激活网络是目标网络；不认识就先注册定义再切
func (c *Client) ensureNetwork(ctx context.Context) error {
	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		return ErrProviderUnavailable
	}
	target := new(big.Int).SetUint64(c.cfg.Network.ChainID)
	if chainID.Cmp(target) == 0 {
		return nil
	}

	err = c.provider.SwitchNetwork(ctx, target)
	if err == ErrUnrecognizedNetwork {
		if addErr := c.provider.AddNetwork(ctx, c.cfg.Network); addErr != nil {
			return fmt.Errorf("%w: %v", ErrNetworkSwitchFailed, addErr)
		}
		err = c.provider.SwitchNetwork(ctx, target)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkSwitchFailed, err)
	}
	return nil
}

// checkAuthorized 本地名单/owner 命中即放行，否则查链上名单
func (c *Client) checkAuthorized(ctx context.Context, recipient common.Address) error {
	if recipient == c.cfg.Owner || c.authorized[recipient] {
		return nil
	}

	data, err := c.abi.Pack("isAuthorizedMinter", recipient)
	if err != nil {
		return fmt.Errorf("minting: pack isAuthorizedMinter: %w", err)
	}
	out, err := c.provider.CallContract(ctx, c.cfg.Contract, data)
	if err != nil {
		return &RPCError{Err: err}
	}
	var ok bool
	if err := c.abi.UnpackIntoInterface(&ok, "isAuthorizedMinter", out); err != nil {
		return fmt.Errorf("minting: unpack isAuthorizedMinter: %w", err)
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// checkNotMinted 物业 key 占用检查
func (c *Client) checkNotMinted(ctx context.Context, propertyKey string) error {
	data, err := c.abi.Pack("propertyExists", propertyKey)
	if err != nil {
		return fmt.Errorf("minting: pack propertyExists: %w", err)
	}
	out, err := c.provider.CallContract(ctx, c.cfg.Contract, data)
	if err != nil {
		return &RPCError{Err: err}
	}
	var exists bool
	if err := c.abi.UnpackIntoInterface(&exists, "propertyExists", out); err != nil {
		return fmt.Errorf("minting: unpack propertyExists: %w", err)
	}
	if exists {
		return ErrDuplicateListing
	}
	return nil
}

// prepareGas 估算 gas 并套用安全边际与价格下限
func (c *Client) prepareGas(ctx context.Context, from common.Address, data []byte) (uint64, *big.Int, error) {
	estimate, err := c.provider.EstimateGas(ctx, from, c.cfg.Contract, data)
	if err != nil {
		return 0, nil, mapSendError(err)
	}
	gasLimit := estimate * (100 + gasLimitMarginPct) / 100

	gasPrice, err := c.provider.SuggestGasPrice(ctx)
	if err != nil {
		return 0, nil, &RPCError{Err: err}
	}
	floor := big.NewInt(minGasPriceWei)
	if gasPrice.Cmp(floor) < 0 {
		gasPrice = floor
	}
	return gasLimit, gasPrice, nil
}

// waitMined 轮询回执直到上链或超时
func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	deadline := time.Now().Add(receiptPollTimeout)
	for {
		receipt, err := c.provider.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("minting: receipt timeout for %s", txHash.Hex())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

// buildPropertyKey 物业地址规范化 + 唯一性后缀
// 后缀保证同一地址重复挂牌不会在链上撞 key
func buildPropertyKey(address string) string {
	normalized := strings.ToLower(strings.TrimSpace(address))
	normalized = strings.Join(strings.Fields(normalized), "-")
	return fmt.Sprintf("%s#%d", normalized, time.Now().UnixNano())
}
