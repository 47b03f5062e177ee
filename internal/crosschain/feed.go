package crosschain

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DeliveryFeed 中继投递推送的 WebSocket 客户端
// 收到 delivered 推送时按 messageId 确认投递，
// 读失败走信号驱动的重连，context 取消即全部退出
type DeliveryFeed struct {
	url     string
	manager *Manager

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	reconnectC     chan struct{}
	reconnectDelay time.Duration
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	log *logrus.Entry
}

type deliveryEvent struct {
	MessageID string `json:"messageId"`
	State     string `json:"state"`
}

// NewDeliveryFeed 创建投递推送客户端
func NewDeliveryFeed(url string, manager *Manager) *DeliveryFeed {
	return &DeliveryFeed{
		url:            url,
		manager:        manager,
		reconnectC:     make(chan struct{}, 1),
		reconnectDelay: 5 * time.Second,
		log:            logrus.WithField("service", "delivery-feed"),
	}
}

// Start 建立连接并启动读取/重连 goroutine
func (f *DeliveryFeed) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	if err := f.dial(); err != nil {
		cancel()
		return err
	}

	f.wg.Add(2)
	go func() {
		defer f.wg.Done()
		f.readLoop(ctx)
	}()
	go func() {
		defer f.wg.Done()
		f.reconnector(ctx)
	}()
	return nil
}

func (f *DeliveryFeed) dial() error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.Dial(f.url, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.conn = conn
	f.closed = false
	f.mu.Unlock()

	f.log.WithField("url", f.url).Info("投递推送已连接")
	return nil
}

func (f *DeliveryFeed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.Lock()
		conn := f.conn
		closed := f.closed
		f.mu.Unlock()
		if conn == nil || closed {
			// 等重连器恢复连接
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		// 读超时用来周期性检查 context
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			f.log.WithError(err).Warn("投递推送读取失败，触发重连")
			f.markClosed()
			f.signalReconnect()
			continue
		}

		var event deliveryEvent
		if err := json.Unmarshal(message, &event); err != nil {
			f.log.WithError(err).Debug("投递推送消息解析失败")
			continue
		}
		if event.State != string(MessageDelivered) || event.MessageID == "" {
			continue
		}
		if err := f.manager.ConfirmDelivered(event.MessageID); err != nil {
			// 推送可能涉及别的客户端发起的转移，找不到记录不算错
			f.log.WithField("messageId", event.MessageID).Debug("投递确认未匹配本地记录")
			continue
		}
		f.log.WithField("messageId", event.MessageID).Info("跨链消息已投递")
	}
}

func (f *DeliveryFeed) reconnector(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.reconnectC:
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.reconnectDelay):
			}
			if err := f.dial(); err != nil {
				f.log.WithError(err).Warn("投递推送重连失败，稍后再试")
				f.signalReconnect()
			}
		}
	}
}

func (f *DeliveryFeed) signalReconnect() {
	select {
	case f.reconnectC <- struct{}{}:
	default:
	}
}

func (f *DeliveryFeed) markClosed() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Close 关闭连接并等待 goroutine 退出
func (f *DeliveryFeed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	f.wg.Wait()
	return nil
}
