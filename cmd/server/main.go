package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/skydeed/skydeed/internal/config"
	"github.com/skydeed/skydeed/internal/crosschain"
	"github.com/skydeed/skydeed/internal/listingcache"
	"github.com/skydeed/skydeed/internal/minting"
	"github.com/skydeed/skydeed/internal/server"
	"github.com/skydeed/skydeed/internal/validator"
	"github.com/skydeed/skydeed/pkg/logger"
	"github.com/skydeed/skydeed/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		cfgPath    = flag.String("config", getenv("SKYDEED_CONFIG", "config.yaml"), "config yaml path")
		listenAddr = flag.String("listen", "", "HTTP listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	}); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	sd := shutdown.NewManager()

	// 估价服务：后端没配就直接以 fallback 模式起
	var backend validator.Backend
	if cfg.Enclave.BaseURL != "" {
		enclave, err := validator.NewEnclaveClient(validator.EnclaveOptions{
			BaseURL:   cfg.Enclave.BaseURL,
			AppID:     cfg.Enclave.AppID,
			PublicKey: cfg.Enclave.PublicKey,
		})
		if err != nil {
			log.Fatalf("init enclave client failed: %v", err)
		}
		backend = enclave
	}
	priceValidator := validator.New(backend, &validator.Options{
		BatchConcurrency: config.EnvInt("SKYDEED_BATCH_CONCURRENCY", 0),
	})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		_ = priceValidator.Initialize(ctx) // 探测失败只会降级，不会阻止启动
		cancel()
	}
	logger.Infof("估价服务就绪，模式: %s", priceValidator.Mode())

	// 铸造客户端：没配助记词就不开铸造接口
	var (
		minter        *minting.Client
		chainProvider minting.ChainProvider
	)
	targetNet, haveTarget := cfg.Networks[cfg.Mint.TargetNetwork]
	if haveTarget && cfg.Mint.Mnemonic != "" {
		provider, err := minting.NewRPCProviderFromMnemonic(targetNet, cfg.Mint.Mnemonic, cfg.Mint.DerivationPath)
		if err != nil {
			log.Fatalf("init chain provider failed: %v", err)
		}
		chainProvider = provider

		authorized := make([]common.Address, 0, len(cfg.Mint.AuthorizedMinters))
		for _, a := range cfg.Mint.AuthorizedMinters {
			authorized = append(authorized, common.HexToAddress(a))
		}
		minter, err = minting.NewClient(provider, minting.ClientConfig{
			Contract:   common.HexToAddress(cfg.Mint.ContractAddress),
			Owner:      common.HexToAddress(cfg.Mint.OwnerAddress),
			Authorized: authorized,
			Network:    targetNet,
		})
		if err != nil {
			log.Fatalf("init minting client failed: %v", err)
		}
	} else {
		logger.Warnf("签名钱包未配置（缺少目标网络或助记词），/api/mint 与跨链发送/估费将不可用")
	}

	// 跨链转移：badger 历史 + 中继确认，转移与铸造共用一个签名钱包
	store, err := crosschain.OpenStore(crosschain.StoreOptions{
		Path: filepath.Join(cfg.DataDir, "transfers.badger"),
	})
	if err != nil {
		log.Fatalf("open transfer store failed: %v", err)
	}
	sd.OnShutdown("transfer-store", func(context.Context) { _ = store.Close() })

	var checker crosschain.StatusChecker
	if cfg.Chainlink.RelayerURL != "" {
		checker = crosschain.NewRelayerClient(cfg.Chainlink.RelayerURL)
	}
	transfers, err := crosschain.NewManager(crosschain.ManagerConfig{
		SourceChain: cfg.Mint.TargetNetwork,
		Table:       crosschain.NewSelectorTable(cfg.Chainlink),
		Store:       store,
		Provider:    chainProvider,
		Checker:     checker,
	})
	if err != nil {
		log.Fatalf("init transfer manager failed: %v", err)
	}

	// 投递推送（可选）：没有推送时只能靠 CheckStatus 轮询确认
	if cfg.Chainlink.RelayerWSURL != "" {
		feed := crosschain.NewDeliveryFeed(cfg.Chainlink.RelayerWSURL, transfers)
		if err := feed.Start(context.Background()); err != nil {
			logger.Warnf("投递推送连接失败: %v", err)
		} else {
			sd.OnShutdown("delivery-feed", func(context.Context) { _ = feed.Close() })
		}
	}

	// 本地挂牌缓存
	listings, err := listingcache.Open(filepath.Join(cfg.DataDir, "listings.db"))
	if err != nil {
		log.Fatalf("open listing cache failed: %v", err)
	}
	sd.OnShutdown("listing-cache", func(context.Context) { _ = listings.Close() })

	srv, err := server.New(server.Config{
		Validator: priceValidator,
		Minter:    minter,
		Transfers: transfers,
		Listings:  listings,
	})
	if err != nil {
		log.Fatalf("init server failed: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("API 服务监听 %s", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	sd.Shutdown(ctx)

	fmt.Println("server stopped")
}
