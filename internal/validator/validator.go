package validator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skydeed/skydeed/internal/domain"
	"github.com/skydeed/skydeed/pkg/cache"
)

// ServiceMode 估价服务当前模式
type ServiceMode string

const (
	ModeReal     ServiceMode = "real"
	ModeFallback ServiceMode = "fallback"
)

// Options 控制 fallback 行为
// 约定：零值取默认
type Options struct {
	// FallbackDelayPerItem 每条挂牌的人为处理延迟（默认 120ms）。
	// fallback 是纯本地计算，延迟让 UI 可见耗时与真实后端同量级。
	FallbackDelayPerItem time.Duration

	// BatchConcurrency fallback 批量校验的并发上限（默认 4）。
	// 真实路径始终串行：首个失败要把剩余项全部切到 fallback。
	BatchConcurrency int
}

func (o Options) normalized() Options {
	if o.FallbackDelayPerItem <= 0 {
		o.FallbackDelayPerItem = 120 * time.Millisecond
	}
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = 4
	}
	return o
}

// Service 机密估价服务
//
// 粘性降级：真实后端首次失败后 fellBack 置位，进程内所有后续调用走 fallback，
// 只有重新 Initialize 一个新实例才会回到 real 模式。
// 该标志是单向的，并发触发是幂等的。
//
// Service 对调用方从不返回估价错误：任何失败都被吸收并降级为可用结果。
type Service struct {
	backend Backend
	opts    Options

	// fellBack 单向降级标志
	fellBack atomic.Bool

	insights *cache.InsightsCache
	log      *logrus.Entry
}

// New 创建估价服务；backend 为 nil 时直接以 fallback 模式工作
func New(backend Backend, opt *Options) *Service {
	o := Options{}
	if opt != nil {
		o = *opt
	}
	s := &Service{
		backend:  backend,
		opts:     o.normalized(),
		insights: cache.NewInsightsCache(),
		log:      logrus.WithField("service", "validator"),
	}
	if backend == nil {
		s.fellBack.Store(true)
	}
	return s
}

// Initialize 探测机密后端
// 任何失败都不向上抛：静默切换到 fallback 并返回 nil，
// 估价服务绝不能成为购买流程的硬依赖
func (s *Service) Initialize(ctx context.Context) error {
	if s.fellBack.Load() {
		return nil
	}
	if err := s.backend.Probe(ctx); err != nil {
		s.trip("initialize probe failed", err)
	}
	return nil
}

// Mode 返回当前模式
func (s *Service) Mode() ServiceMode {
	if s.fellBack.Load() {
		return ModeFallback
	}
	return ModeReal
}

// trip 触发单向降级；只在首次触发时记日志
func (s *Service) trip(reason string, err error) {
	if s.fellBack.CompareAndSwap(false, true) {
		s.log.WithError(err).Warnf("机密后端不可用，切换到本地 fallback 估价: %s", reason)
	}
}

// ValidatePrice 估价单条挂牌
// 永不失败：real 路径出错时先降级再用 fallback 重算，调用方总能拿到结果
func (s *Service) ValidatePrice(ctx context.Context, listing *domain.ListingDescriptor) *domain.ValidationResult {
	if !s.fellBack.Load() {
		result, err := s.backend.Evaluate(ctx, listing)
		if err == nil {
			return result
		}
		s.trip("evaluate failed", err)
	}

	sleepCtx(ctx, s.opts.FallbackDelayPerItem)
	return computeFallback(listing)
}

// BatchValidate 批量估价，结果保持输入顺序
// real 模式逐条串行；首个失败把整个剩余批次切到 fallback（并发执行）
func (s *Service) BatchValidate(ctx context.Context, listings []*domain.ListingDescriptor) []*domain.ValidationResult {
	results := make([]*domain.ValidationResult, len(listings))

	next := 0
	for !s.fellBack.Load() && next < len(listings) {
		result, err := s.backend.Evaluate(ctx, listings[next])
		if err != nil {
			s.trip("batch evaluate failed", err)
			break
		}
		results[next] = result
		next++
	}

	if next >= len(listings) {
		return results
	}

	// fallback 路径：剩余项并发计算
	// 除单向的 fellBack 标志外，各项之间没有共享可变状态
	sem := make(chan struct{}, s.opts.BatchConcurrency)
	var wg sync.WaitGroup
	for i := next; i < len(listings); i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			sleepCtx(ctx, s.opts.FallbackDelayPerItem)
			results[idx] = computeFallback(listings[idx])
		}(i)
	}
	wg.Wait()

	return results
}

// sleepCtx 可取消的延迟
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
