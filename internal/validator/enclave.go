package validator

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skydeed/skydeed/internal/domain"
)

// Backend 机密计算后端的最小接口
// 真实实现是 EnclaveClient；测试注入 fake
type Backend interface {
	// Probe 检查后端已注册且处于 active 状态
	Probe(ctx context.Context) error
	// Evaluate 提交加密的挂牌数据并返回经过 attestation 验证的结果
	Evaluate(ctx context.Context, listing *domain.ListingDescriptor) (*domain.ValidationResult, error)
	// Insights 拉取区域级市场洞察
	Insights(ctx context.Context, region string) ([]string, error)
}

// EnclaveClient 机密估价后端客户端
//
// 协议：
// - GET  /v1/apps/{appID}/status       -> {registered, active}
// - POST /v1/evaluate                  -> {result, signature, publicKey}
// 请求体 = 密封后的挂牌数据 + nonce + 时间戳；响应必须带可验证的签名
type EnclaveClient struct {
	http      *resty.Client
	appID     string
	publicKey []byte // 配置的后端公钥（未压缩）；为空时信任响应携带的公钥
}

// EnclaveOptions 客户端配置
type EnclaveOptions struct {
	BaseURL   string
	AppID     string
	PublicKey string // 未压缩公钥 hex（可带 0x / 04 前缀）
	Timeout   time.Duration
}

// NewEnclaveClient 创建机密后端客户端
func NewEnclaveClient(opt EnclaveOptions) (*EnclaveClient, error) {
	if strings.TrimSpace(opt.BaseURL) == "" {
		return nil, errors.New("enclave: base url is required")
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 20 * time.Second
	}

	var pub []byte
	if raw := strings.TrimPrefix(strings.TrimSpace(opt.PublicKey), "0x"); raw != "" {
		b, err := hex.DecodeString(raw)
		if err != nil {
			return nil, errors.Wrap(err, "enclave: bad public key")
		}
		pub = b
	}

	// resty 会自动读取 HTTP_PROXY / HTTPS_PROXY 环境变量
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opt.BaseURL, "/")).
		SetTimeout(opt.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second)

	return &EnclaveClient{
		http:      client,
		appID:     opt.AppID,
		publicKey: pub,
	}, nil
}

type statusResponse struct {
	Registered bool `json:"registered"`
	Active     bool `json:"active"`
}

// Probe 检查后端注册/存活状态；任何非 2xx 或未注册都视为失败
func (c *EnclaveClient) Probe(ctx context.Context) error {
	var out statusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(fmt.Sprintf("/v1/apps/%s/status", c.appID))
	if err != nil {
		return errors.Wrap(err, "enclave: status request")
	}
	if !resp.IsSuccess() {
		return errors.Errorf("enclave: status http %d", resp.StatusCode())
	}
	if !out.Registered || !out.Active {
		return errors.Errorf("enclave: app not ready (registered=%v active=%v)", out.Registered, out.Active)
	}
	return nil
}

type evaluateRequest struct {
	AppID     string `json:"appId"`
	Payload   string `json:"payload"` // 密封后的挂牌数据（base64）
	Digest    string `json:"digest"`  // keccak256(payload | nonce | timestamp)
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

type evaluateResponse struct {
	Result    json.RawMessage `json:"result"`
	Signature string          `json:"signature"` // hex，65 字节 r||s||v
	PublicKey string          `json:"publicKey"` // 未压缩公钥 hex
}

type enclaveResult struct {
	Rating         string   `json:"rating"`
	MarketPosition string   `json:"marketPosition"`
	Confidence     float64  `json:"confidence"`
	Insights       []string `json:"insights"`
}

// Evaluate 密封 -> 提交 -> 验签 -> 解包
// 验签失败与传输失败等价，由上层统一降级处理
func (c *EnclaveClient) Evaluate(ctx context.Context, listing *domain.ListingDescriptor) (*domain.ValidationResult, error) {
	nonce := uuid.NewString()
	now := time.Now()

	payload, digest, err := sealListing(listing, nonce, now.Unix())
	if err != nil {
		return nil, err
	}

	req := evaluateRequest{
		AppID:     c.appID,
		Payload:   payload,
		Digest:    digest,
		Nonce:     nonce,
		Timestamp: now.Unix(),
	}

	var out evaluateResponse
	// 后端不标 Content-Type 也必须按 JSON 解，否则验签拿到的是零值响应
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/v1/evaluate")
	if err != nil {
		return nil, errors.Wrap(err, "enclave: evaluate request")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("enclave: evaluate http %d", resp.StatusCode())
	}

	if err := c.verifyAttestation(out, nonce); err != nil {
		return nil, err
	}

	var er enclaveResult
	if err := json.Unmarshal(out.Result, &er); err != nil {
		return nil, errors.Wrap(err, "enclave: bad result body")
	}

	return &domain.ValidationResult{
		Rating:         domain.PriceRating(er.Rating),
		MarketPosition: domain.MarketPosition(er.MarketPosition),
		Confidence:     er.Confidence,
		Insights:       er.Insights,
		ValidatedAt:    time.Now(),
		Signature:      out.Signature,
	}, nil
}

// verifyAttestation 用后端公钥验证 result 上的签名
// 签名消息 = keccak256(result 原文 | nonce)
func (c *EnclaveClient) verifyAttestation(out evaluateResponse, nonce string) error {
	sigHex := strings.TrimPrefix(out.Signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return errors.Wrap(err, "enclave: bad signature encoding")
	}
	if len(sig) < 64 {
		return errors.Errorf("enclave: signature too short: %d", len(sig))
	}

	pub := c.publicKey
	if len(pub) == 0 {
		raw := strings.TrimPrefix(out.PublicKey, "0x")
		pub, err = hex.DecodeString(raw)
		if err != nil {
			return errors.Wrap(err, "enclave: bad public key encoding")
		}
	}

	hash := crypto.Keccak256(out.Result, []byte(nonce))
	// VerifySignature 只取 64 字节 r||s
	if !crypto.VerifySignature(pub, hash, sig[:64]) {
		return errors.New("enclave: attestation signature mismatch")
	}
	return nil
}

type insightsResponse struct {
	Region   string   `json:"region"`
	Insights []string `json:"insights"`
}

// Insights 拉取区域洞察（无签名要求，纯咨询数据）
func (c *EnclaveClient) Insights(ctx context.Context, region string) ([]string, error) {
	var out insightsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(fmt.Sprintf("/v1/insights/%s", region))
	if err != nil {
		return nil, errors.Wrap(err, "enclave: insights request")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("enclave: insights http %d", resp.StatusCode())
	}
	if len(out.Insights) == 0 {
		return nil, errors.New("enclave: empty insights")
	}
	return out.Insights, nil
}

// sealListing 密封挂牌数据
// 传输层加密方案可插拔；这里用 base64 封包并附上绑定 nonce/时间戳的 keccak 摘要，
// 保证后端可以校验载荷完整性
func sealListing(listing *domain.ListingDescriptor, nonce string, ts int64) (payload, digest string, err error) {
	body, err := json.Marshal(listing)
	if err != nil {
		return "", "", errors.Wrap(err, "enclave: marshal listing")
	}
	payload = base64.StdEncoding.EncodeToString(body)
	sum := crypto.Keccak256([]byte(payload), []byte(nonce), []byte(fmt.Sprintf("%d", ts)))
	return payload, "0x" + hex.EncodeToString(sum), nil
}
