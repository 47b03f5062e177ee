package minting

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/skydeed/skydeed/internal/config"
)

// ChainProvider 钱包式签名 provider 的能力接口
// 账户/链查询、切网、gas 估算、交易提交、回执获取都走这一个口，
// 具体实现可以是本地助记词钱包，也可以是注入的外部 provider
type ChainProvider interface {
	// Account 当前签名账户；provider 不可达或没有账户时返回错误
	Account(ctx context.Context) (common.Address, error)
	// ChainID 当前激活网络
	ChainID(ctx context.Context) (*big.Int, error)
	// SwitchNetwork 切到指定网络；不认识该网络时返回 ErrUnrecognizedNetwork
	SwitchNetwork(ctx context.Context, chainID *big.Int) error
	// AddNetwork 注册网络定义（之后才能 SwitchNetwork 过去）
	AddNetwork(ctx context.Context, def config.NetworkConfig) error
	// CallContract 只读合约调用
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// EstimateGas 估算交易 gas 用量
	EstimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error)
	// SuggestGasPrice 节点建议的 gas 价格
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// SubmitTransaction 签名并提交交易，返回交易哈希
	SubmitTransaction(ctx context.Context, to common.Address, data []byte, gasLimit uint64, gasPrice *big.Int) (common.Hash, error)
	// TransactionReceipt 获取交易回执（含事件日志）
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// RPCProvider 基于本地私钥 + ethclient 的 ChainProvider 实现
// "切网" 对本地钱包而言就是重连目标网络的 RPC 节点
type RPCProvider struct {
	networks map[uint64]config.NetworkConfig // chainID -> 已注册网络

	client     *ethclient.Client
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey
}

// NewRPCProvider 连接初始网络并就绪签名账户
func NewRPCProvider(initial config.NetworkConfig, privateKeyHex string) (*RPCProvider, error) {
	pk, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	p := &RPCProvider{
		networks:   map[uint64]config.NetworkConfig{initial.ChainID: initial},
		privateKey: pk,
	}
	if err := p.dial(initial); err != nil {
		return nil, err
	}
	return p, nil
}

// NewRPCProviderFromMnemonic 从助记词派生签名私钥
func NewRPCProviderFromMnemonic(initial config.NetworkConfig, mnemonic, derivationPath string) (*RPCProvider, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, fmt.Errorf("minting: mnemonic is required")
	}
	if strings.TrimSpace(derivationPath) == "" {
		derivationPath = "m/44'/60'/0'/0/0"
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("minting: invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("minting: invalid derivation path: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("minting: derive failed: %w", err)
	}
	pkHex, err := w.PrivateKeyHex(acct)
	if err != nil {
		return nil, fmt.Errorf("minting: private key failed: %w", err)
	}
	return NewRPCProvider(initial, pkHex)
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("minting: parse private key: %w", err)
	}
	return pk, nil
}

func (p *RPCProvider) dial(def config.NetworkConfig) error {
	if len(def.RPCURLs) == 0 {
		return fmt.Errorf("minting: network %s has no rpc url", def.Name)
	}
	// 依次尝试 RPC 列表，取第一个能连上的
	var lastErr error
	for _, url := range def.RPCURLs {
		client, err := ethclient.Dial(url)
		if err != nil {
			lastErr = err
			continue
		}
		if p.client != nil {
			p.client.Close()
		}
		p.client = client
		p.chainID = new(big.Int).SetUint64(def.ChainID)
		return nil
	}
	return fmt.Errorf("minting: dial %s: %w", def.Name, lastErr)
}

func (p *RPCProvider) Account(_ context.Context) (common.Address, error) {
	if p == nil || p.privateKey == nil {
		return common.Address{}, ErrProviderUnavailable
	}
	return crypto.PubkeyToAddress(p.privateKey.PublicKey), nil
}

func (p *RPCProvider) ChainID(_ context.Context) (*big.Int, error) {
	if p.client == nil {
		return nil, ErrProviderUnavailable
	}
	return new(big.Int).Set(p.chainID), nil
}

func (p *RPCProvider) SwitchNetwork(_ context.Context, chainID *big.Int) error {
	def, ok := p.networks[chainID.Uint64()]
	if !ok {
		return ErrUnrecognizedNetwork
	}
	if p.chainID != nil && p.chainID.Cmp(chainID) == 0 {
		return nil
	}
	return p.dial(def)
}

func (p *RPCProvider) AddNetwork(_ context.Context, def config.NetworkConfig) error {
	if def.ChainID == 0 {
		return fmt.Errorf("minting: network definition missing chain id")
	}
	p.networks[def.ChainID] = def
	return nil
}

func (p *RPCProvider) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return p.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (p *RPCProvider) EstimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error) {
	return p.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: big.NewInt(0),
	})
}

func (p *RPCProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return p.client.SuggestGasPrice(ctx)
}

func (p *RPCProvider) SubmitTransaction(ctx context.Context, to common.Address, data []byte, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	from := crypto.PubkeyToAddress(p.privateKey.PublicKey)

	nonce, err := p.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("minting: fetch nonce: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(p.chainID), p.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("minting: sign tx: %w", err)
	}

	if err := p.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, err
	}
	return signedTx.Hash(), nil
}

func (p *RPCProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return p.client.TransactionReceipt(ctx, txHash)
}
