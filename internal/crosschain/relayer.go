package crosschain

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// MessageState 中继侧观察到的消息状态
type MessageState string

const (
	MessageInFlight  MessageState = "in_flight"
	MessageDelivered MessageState = "delivered"
	MessageUnknown   MessageState = "unknown"
)

// StatusChecker 目标链投递确认的查询口
// delivered 只能由这里的确认推进，Manager 自己不猜
type StatusChecker interface {
	MessageState(ctx context.Context, messageID string) (MessageState, error)
}

// RelayerClient 跨链中继的 REST 客户端
type RelayerClient struct {
	http *resty.Client
}

type relayerStatusResponse struct {
	MessageID string `json:"messageId"`
	State     string `json:"state"`
	DestTx    string `json:"destTransactionHash,omitempty"`
}

// NewRelayerClient 创建中继客户端
func NewRelayerClient(baseURL string) *RelayerClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &RelayerClient{http: client}
}

// MessageState 查询某条跨链消息在中继侧的状态
func (c *RelayerClient) MessageState(ctx context.Context, messageID string) (MessageState, error) {
	var out relayerStatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(fmt.Sprintf("/v1/messages/%s", messageID))
	if err != nil {
		return MessageUnknown, errors.Wrap(err, "crosschain: relayer request failed")
	}
	if resp.StatusCode() == 404 {
		// 中继还没看到这条消息，按在途处理
		return MessageInFlight, nil
	}
	if resp.IsError() {
		return MessageUnknown, errors.Errorf("crosschain: relayer returned %d", resp.StatusCode())
	}

	switch out.State {
	case "delivered", "success":
		return MessageDelivered, nil
	case "in_flight", "pending", "committed":
		return MessageInFlight, nil
	default:
		return MessageUnknown, nil
	}
}
