package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
listen: ":9090"
data_dir: "var/data"
networks:
  base:
    name: base
    chain_id: 8453
    rpc_urls: ["https://mainnet.base.org"]
    explorer_url: "https://basescan.org"
    currency_symbol: ETH
    currency_decimal: 18
  ethereum:
    name: ethereum
    chain_id: 1
    rpc_urls: ["https://eth.llamarpc.com"]
chainlink:
  selectors:
    base: 15971525489660198786
    ethereum: 5009297550715157269
  senders:
    base: "0x0000000000000000000000000000000000000A01"
  receivers:
    ethereum: "0x0000000000000000000000000000000000000A02"
  relayer_url: "https://relayer.example.com"
mint:
  target_network: base
  contract_address: "0x0000000000000000000000000000000000000AA0"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Networks["base"].ChainID != 8453 {
		t.Fatalf("base chain id = %d", cfg.Networks["base"].ChainID)
	}
	if cfg.Chainlink.Selectors["ethereum"] != 5009297550715157269 {
		t.Fatalf("ethereum selector = %d", cfg.Chainlink.Selectors["ethereum"])
	}
	if cfg.LogLevel != "info" { // 默认值
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SKYDEED_LISTEN", ":7070")
	t.Setenv("SKYDEED_MNEMONIC", "test test test test test test test test test test test junk")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Fatalf("env override ignored, listen = %q", cfg.Listen)
	}
	if cfg.Mint.Mnemonic == "" {
		t.Fatal("mnemonic env override ignored")
	}
}

func TestLoad_UnknownTargetNetwork(t *testing.T) {
	bad := strings.Replace(sampleYAML, "target_network: base", "target_network: solana", 1)
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for unknown target network")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("SKYDEED_TEST_INT", "8")
	if got := EnvInt("SKYDEED_TEST_INT", 4); got != 8 {
		t.Fatalf("EnvInt = %d", got)
	}
	if got := EnvInt("SKYDEED_TEST_INT_MISSING", 4); got != 4 {
		t.Fatalf("EnvInt default = %d", got)
	}
	t.Setenv("SKYDEED_TEST_INT_BAD", "abc")
	if got := EnvInt("SKYDEED_TEST_INT_BAD", 4); got != 4 {
		t.Fatalf("EnvInt bad value = %d", got)
	}
}
