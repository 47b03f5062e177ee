package validator

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/quick"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/skydeed/skydeed/internal/domain"
)

// fakeBackend 可编程的后端替身
type fakeBackend struct {
	probeErr    error
	evalErr     error
	insightsErr error

	evalCalls  atomic.Int64
	failAfterN int64 // >0 时：前 N 次 Evaluate 成功，之后失败
}

func (f *fakeBackend) Probe(_ context.Context) error { return f.probeErr }

func (f *fakeBackend) Evaluate(_ context.Context, _ *domain.ListingDescriptor) (*domain.ValidationResult, error) {
	n := f.evalCalls.Add(1)
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	if f.failAfterN > 0 && n > f.failAfterN {
		return nil, errors.New("enclave gone")
	}
	return &domain.ValidationResult{
		Rating:         domain.RatingGood,
		MarketPosition: domain.PositionUnderpriced,
		Confidence:     0.9,
		Insights:       []string{"enclave result"},
		ValidatedAt:    time.Now(),
		Signature:      "0xattested",
	}, nil
}

func (f *fakeBackend) Insights(_ context.Context, _ string) ([]string, error) {
	if f.insightsErr != nil {
		return nil, f.insightsErr
	}
	return []string{"enclave insight"}, nil
}

func fastOpts() *Options {
	return &Options{FallbackDelayPerItem: time.Millisecond, BatchConcurrency: 4}
}

func listingWith(floors int, price int64) *domain.ListingDescriptor {
	return &domain.ListingDescriptor{
		TokenID:         "L1",
		PropertyAddress: "88 Canal St",
		CurrentHeight:   40,
		MaxHeight:       120,
		AvailableFloors: floors,
		AskingPrice:     decimal.NewFromInt(price),
	}
}

func TestFallbackBands(t *testing.T) {
	s := New(nil, fastOpts()) // backend 为 nil：直接 fallback

	cases := []struct {
		floors     int
		price      int64
		rating     domain.PriceRating
		confidence float64
	}{
		{25, 600000, domain.RatingExcellent, 0.95}, // 24k/层
		{10, 450000, domain.RatingGood, 0.88},      // 45k/层
		{10, 650000, domain.RatingFair, 0.82},      // 65k/层
		{10, 850000, domain.RatingPoor, 0.75},      // 85k/层
		{10, 1200000, domain.RatingOverpriced, 0.91},
	}
	for _, tc := range cases {
		r := s.ValidatePrice(context.Background(), listingWith(tc.floors, tc.price))
		require.Equal(t, tc.rating, r.Rating, "floors=%d price=%d", tc.floors, tc.price)
		require.InDelta(t, tc.confidence, r.Confidence, 1e-9)
		require.NotEmpty(t, r.Insights)
		require.Equal(t, domain.PositionForRating(tc.rating), r.MarketPosition)
	}
}

func TestStickyFallback(t *testing.T) {
	fb := &fakeBackend{evalErr: errors.New("transport down")}
	s := New(fb, fastOpts())

	if s.Mode() != ModeReal {
		t.Fatalf("expected real mode before first failure, got %s", s.Mode())
	}

	// 首次调用：real 失败 -> 降级 -> 仍返回可用结果
	r := s.ValidatePrice(context.Background(), listingWith(25, 600000))
	require.NotNil(t, r)
	require.Equal(t, ModeFallback, s.Mode())

	// 后续两次调用必须全部走 fallback，不再触碰后端
	before := fb.evalCalls.Load()
	r2 := s.ValidatePrice(context.Background(), listingWith(25, 600000))
	r3 := s.ValidatePrice(context.Background(), listingWith(25, 600000))
	require.Equal(t, before, fb.evalCalls.Load(), "backend must not be called after trip")
	require.Empty(t, r2.Signature)
	require.Empty(t, r3.Signature)
	require.Equal(t, domain.RatingExcellent, r2.Rating)
}

func TestInitializeNeverErrors(t *testing.T) {
	fb := &fakeBackend{probeErr: errors.New("not registered")}
	s := New(fb, fastOpts())

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize must absorb probe failure, got %v", err)
	}
	if s.Mode() != ModeFallback {
		t.Fatalf("expected fallback after failed probe, got %s", s.Mode())
	}
}

func TestBatchValidate_TripsRemainder(t *testing.T) {
	fb := &fakeBackend{failAfterN: 2}
	s := New(fb, fastOpts())

	listings := []*domain.ListingDescriptor{
		listingWith(25, 600000),
		listingWith(10, 450000),
		listingWith(10, 650000),
		listingWith(10, 850000),
		listingWith(10, 1200000),
	}
	results := s.BatchValidate(context.Background(), listings)
	require.Len(t, results, len(listings))
	for i, r := range results {
		require.NotNil(t, r, "result %d", i)
		require.NotEmpty(t, r.Insights, "result %d", i)
	}

	// 前两条来自 real 后端，第三条触发失败，剩余全部 fallback
	require.Equal(t, "0xattested", results[0].Signature)
	require.Equal(t, "0xattested", results[1].Signature)
	require.Empty(t, results[2].Signature)
	require.Empty(t, results[4].Signature)
	require.Equal(t, ModeFallback, s.Mode())
	// 后端只应被调用到失败为止（2 成功 + 1 失败）
	require.Equal(t, int64(3), fb.evalCalls.Load())
}

func TestGetMarketInsights_RecursesIntoFallback(t *testing.T) {
	fb := &fakeBackend{insightsErr: errors.New("backend error")}
	s := New(fb, fastOpts())

	out := s.GetMarketInsights(context.Background(), "midtown")
	if len(out) == 0 {
		t.Fatalf("expected fallback insights, got none")
	}
	if s.Mode() != ModeFallback {
		t.Fatalf("expected fallback mode after insights failure")
	}

	// 确定性：同区域再次调用结果一致
	out2 := s.GetMarketInsights(context.Background(), "midtown")
	require.Equal(t, out, out2)
}

// 属性：任意挂牌输入，confidence ∈ [0,1] 且 insights 非空
func TestProperty_FallbackResultAlwaysUsable(t *testing.T) {
	s := New(nil, &Options{FallbackDelayPerItem: time.Nanosecond})

	property := func(floors int, priceCents int64) bool {
		// 输入域约束
		if floors <= 0 {
			floors = 1 + (-floors)%500
		}
		if priceCents < 0 {
			priceCents = -priceCents
		}
		l := listingWith(floors%1000+1, priceCents%100000000+1)
		r := s.ValidatePrice(context.Background(), l)
		return r != nil && r.Confidence >= 0 && r.Confidence <= 1 && len(r.Insights) > 0
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatalf("property failed: %v", err)
	}
}
