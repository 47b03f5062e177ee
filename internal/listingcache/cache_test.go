package listingcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/skydeed/skydeed/internal/domain"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "listings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func listing(tokenID string) *domain.ListingDescriptor {
	return &domain.ListingDescriptor{
		TokenID:         tokenID,
		PropertyAddress: "88 Canal St",
		CurrentHeight:   40,
		MaxHeight:       120,
		AvailableFloors: 25,
		AskingPrice:     decimal.NewFromInt(600000),
		Latitude:        40.7181,
		Longitude:       -73.9973,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, listing("SKY-1"), StageDraft))

	entry, err := c.Get(ctx, "SKY-1")
	require.NoError(t, err)
	require.Equal(t, StageDraft, entry.Stage)
	require.Equal(t, "88 Canal St", entry.Listing.PropertyAddress)
	require.True(t, entry.Listing.AskingPrice.Equal(decimal.NewFromInt(600000)))
	require.InDelta(t, 40.7181, entry.Listing.Latitude, 1e-9)
}

func TestPutUpsertsExisting(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, listing("SKY-1"), StageDraft))
	updated := listing("SKY-1")
	updated.AskingPrice = decimal.NewFromInt(450000)
	require.NoError(t, c.Put(ctx, updated, StageValidated))

	entry, err := c.Get(ctx, "SKY-1")
	require.NoError(t, err)
	require.Equal(t, StageValidated, entry.Stage)
	require.True(t, entry.Listing.AskingPrice.Equal(decimal.NewFromInt(450000)))

	all, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestAdvanceUnknownListing(t *testing.T) {
	c := openTestCache(t)
	err := c.Advance(context.Background(), "nope", StageMinted)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdvanceAndDelete(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, listing("SKY-1"), StageValidated))
	require.NoError(t, c.Advance(ctx, "SKY-1", StageMinted))

	entry, err := c.Get(ctx, "SKY-1")
	require.NoError(t, err)
	require.Equal(t, StageMinted, entry.Stage)

	require.NoError(t, c.Delete(ctx, "SKY-1"))
	_, err = c.Get(ctx, "SKY-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeOlderThan(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, listing("SKY-1"), StageDraft))
	require.NoError(t, c.Put(ctx, listing("SKY-2"), StageDraft))

	// 窗口足够大，什么都不删
	n, err := c.PurgeOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)

	// 窗口为负等于把截止时间推到未来，全部过期
	n, err = c.PurgeOlderThan(ctx, -time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
