package shutdown

import (
	"context"
	"sync"

	"github.com/skydeed/skydeed/pkg/logger"
)

// Handler 关闭回调；ctx 带整体关闭的截止时间
type Handler func(ctx context.Context)

type entry struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
// 回调并发执行，整体受 Shutdown 传入的 ctx 限时
type Manager struct {
	mu      sync.Mutex
	entries []entry
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调，name 用于日志定位哪个回调卡住
func (m *Manager) OnShutdown(name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry{name: name, fn: fn})
}

// Shutdown 执行所有关闭回调并阻塞到全部完成或 ctx 到期
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	entries := m.entries
	m.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(entries))

	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, e := range entries {
		go func(e entry) {
			defer wg.Done()
			e.fn(ctx)
			logger.Debugf("关闭回调完成: %s", e.name)
		}(e)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("所有关闭回调已完成")
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
	}
}
