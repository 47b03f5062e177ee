package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkConfig 单条链网络定义（用于钱包 wallet_addEthereumChain 以及浏览器链接）
type NetworkConfig struct {
	Name            string   `yaml:"name"`             // 逻辑链名，例如 "base" / "arbitrum"
	ChainID         uint64   `yaml:"chain_id"`         // 原生网络 ID
	RPCURLs         []string `yaml:"rpc_urls"`         // RPC 节点列表
	ExplorerURL     string   `yaml:"explorer_url"`     // 区块浏览器地址（不带尾部斜杠）
	CurrencySymbol  string   `yaml:"currency_symbol"`  // 原生代币符号
	CurrencyDecimal int      `yaml:"currency_decimal"` // 原生代币精度
}

// ChainlinkConfig 跨链消息协议配置
// 注意：selector 与 chain_id 是两个命名空间，不能混用
type ChainlinkConfig struct {
	// Selectors 逻辑链名 -> 协议级 chain selector
	Selectors map[string]uint64 `yaml:"selectors"`
	// Senders 逻辑链名 -> 源链 sender 合约地址
	Senders map[string]string `yaml:"senders"`
	// Receivers 逻辑链名 -> 目标链 receiver 合约地址
	Receivers map[string]string `yaml:"receivers"`
	// RelayerURL 中继状态查询服务地址
	RelayerURL string `yaml:"relayer_url"`
	// RelayerWSURL 中继送达推送（websocket，可选）
	RelayerWSURL string `yaml:"relayer_ws_url"`
}

// EnclaveConfig 机密计算后端配置
type EnclaveConfig struct {
	BaseURL   string `yaml:"base_url"`   // 后端地址
	PublicKey string `yaml:"public_key"` // 后端公钥（未压缩 hex，用于验证 attestation 签名）
	AppID     string `yaml:"app_id"`     // 注册的应用 ID
}

// MintConfig 铸造客户端配置
type MintConfig struct {
	TargetNetwork     string   `yaml:"target_network"`     // 必须铸造到的逻辑链名
	ContractAddress   string   `yaml:"contract_address"`   // rights token 合约地址
	OwnerAddress      string   `yaml:"owner_address"`      // 合约 owner（始终有铸造权）
	AuthorizedMinters []string `yaml:"authorized_minters"` // 授权铸造者白名单
	Mnemonic          string   `yaml:"mnemonic"`           // 本地签名钱包助记词（可被环境变量覆盖）
	DerivationPath    string   `yaml:"derivation_path"`    // 派生路径，默认 m/44'/60'/0'/0/0
}

// Config 应用配置
type Config struct {
	Listen    string                   `yaml:"listen"`     // HTTP 监听地址
	DataDir   string                   `yaml:"data_dir"`   // badger/sqlite 数据目录
	LogLevel  string                   `yaml:"log_level"`  // 日志级别
	LogFile   string                   `yaml:"log_file"`   // 日志文件
	Networks  map[string]NetworkConfig `yaml:"networks"`   // 逻辑链名 -> 网络定义
	Chainlink ChainlinkConfig          `yaml:"chainlink"`  // 跨链协议配置
	Enclave   EnclaveConfig            `yaml:"enclave"`    // 机密后端配置
	Mint      MintConfig               `yaml:"mint"`       // 铸造配置
}

// Load 从 YAML 文件加载配置，并应用环境变量覆盖
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Listen:   ":8080",
		DataDir:  "data",
		LogLevel: "info",
	}
}

// applyEnv 环境变量优先于文件（敏感项只建议通过环境变量提供）
func (c *Config) applyEnv() {
	if v := os.Getenv("SKYDEED_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("SKYDEED_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SKYDEED_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SKYDEED_MNEMONIC"); v != "" {
		c.Mint.Mnemonic = v
	}
	if v := os.Getenv("SKYDEED_ENCLAVE_URL"); v != "" {
		c.Enclave.BaseURL = v
	}
	if v := os.Getenv("SKYDEED_RELAYER_URL"); v != "" {
		c.Chainlink.RelayerURL = v
	}
}

func (c *Config) validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("config: at least one network is required")
	}
	if c.Mint.TargetNetwork != "" {
		if _, ok := c.Networks[c.Mint.TargetNetwork]; !ok {
			return fmt.Errorf("config: mint.target_network %q not in networks", c.Mint.TargetNetwork)
		}
	}
	for name, sel := range c.Chainlink.Selectors {
		if sel == 0 {
			return fmt.Errorf("config: selector for %q is zero", name)
		}
	}
	return nil
}

// EnvInt 读取整型环境变量，未设置或非法时返回默认值
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
