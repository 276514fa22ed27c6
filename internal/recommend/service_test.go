package recommend

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/relevance"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

// countingStore records how often content is read
type countingStore struct {
	*storage.MemoryStore
	contentReads atomic.Int32
}

func (s *countingStore) GetContent(ctx context.Context, ref string) (*models.Content, error) {
	s.contentReads.Add(1)
	return s.MemoryStore.GetContent(ctx, ref)
}

func testCatalog() []models.Candidate {
	return []models.Candidate{
		{Vendor: models.VendorREI, ProductID: "boots", Name: "Hiking Boots", Kind: models.KindGear, Categories: []string{"hiking"}, Seasons: []models.Season{models.Spring}, Price: decimal.NewFromInt(180), DomainSpecific: true},
		{Vendor: models.VendorREI, ProductID: "poles", Name: "Trekking Poles", Kind: models.KindGear, Categories: []string{"hiking"}, Price: decimal.NewFromInt(90)},
		{Vendor: models.VendorBackcountry, ProductID: "socks", Name: "Canyon Socks", Kind: models.KindGear, Categories: []string{"canyoneering"}, Seasons: []models.Season{models.Spring}, Price: decimal.NewFromInt(35), DomainSpecific: true},
		{Vendor: models.VendorGetYourGuide, ProductID: "tour", Name: "Narrows Tour", Kind: models.KindActivity, Categories: []string{"canyoneering"}, Price: decimal.NewFromInt(150), DomainSpecific: true},
		{Vendor: models.VendorREI, ProductID: "goggles", Name: "Ski Goggles", Kind: models.KindGear, Categories: []string{"skiing"}, Price: decimal.NewFromInt(120), DomainSpecific: true},
	}
}

func saveSnapshot(t *testing.T, store *storage.MemoryStore, vendor models.Vendor, id, price string, availability models.Availability) {
	t.Helper()
	require.NoError(t, store.SaveSnapshot(context.Background(), &models.InventorySnapshot{
		ID:                models.SnapshotID(vendor, id),
		Vendor:            vendor,
		ExternalProductID: id,
		Price:             decimal.RequireFromString(price),
		Availability:      availability,
		AffiliateLink:     "https://" + string(vendor) + ".example.com/" + id + "?ref=trailpost",
		LastUpdated:       time.Now(),
	}))
}

func newFixture(t *testing.T) (*countingStore, *Service) {
	t.Helper()
	mem := storage.NewMemoryStore()
	mem.PutContent(models.Content{Ref: "zion-narrows", Title: "Zion Narrows Guided Hike in Spring"})
	store := &countingStore{MemoryStore: mem}
	svc := NewService(store, relevance.NewDefaultScorer(), testCatalog(), NewMemoryCache(), time.Hour)
	return store, svc
}

func TestRecommendationsFor_OnlyInStockWithLivePrice(t *testing.T) {
	store, svc := newFixture(t)
	saveSnapshot(t, store.MemoryStore, models.VendorREI, "boots", "149.95", models.InStock)
	saveSnapshot(t, store.MemoryStore, models.VendorREI, "poles", "90", models.OutOfStock)
	saveSnapshot(t, store.MemoryStore, models.VendorBackcountry, "socks", "30", models.LowStock)
	saveSnapshot(t, store.MemoryStore, models.VendorGetYourGuide, "tour", "129", models.InStock)

	links, err := svc.RecommendationsFor(context.Background(), "zion-narrows", nil)
	require.NoError(t, err)
	require.Len(t, links, 2)

	assert.Equal(t, "boots", links[0].ProductID)
	assert.True(t, links[0].Price.Equal(decimal.RequireFromString("149.95")), "price comes from the snapshot")
	assert.Equal(t, "https://rei.example.com/boots?ref=trailpost", links[0].URL)
	assert.Equal(t, "Hiking Boots", links[0].Name)
	assert.Equal(t, "tour", links[1].ProductID)

	for i := 1; i < len(links); i++ {
		assert.GreaterOrEqual(t, links[i-1].RelevanceScore, links[i].RelevanceScore)
	}
}

func TestRecommendationsFor_DropsCandidatesWithoutSnapshot(t *testing.T) {
	store, svc := newFixture(t)
	saveSnapshot(t, store.MemoryStore, models.VendorGetYourGuide, "tour", "129", models.InStock)

	links, err := svc.RecommendationsFor(context.Background(), "zion-narrows", nil)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "tour", links[0].ProductID)
}

func TestRecommendationsFor_CachesScoredSetButJoinsLive(t *testing.T) {
	store, svc := newFixture(t)
	saveSnapshot(t, store.MemoryStore, models.VendorREI, "boots", "180", models.InStock)

	links, err := svc.RecommendationsFor(context.Background(), "zion-narrows", nil)
	require.NoError(t, err)
	require.Len(t, links, 1)

	// stock changes after the scored set was cached
	saveSnapshot(t, store.MemoryStore, models.VendorREI, "boots", "180", models.OutOfStock)
	saveSnapshot(t, store.MemoryStore, models.VendorREI, "poles", "80", models.InStock)

	links, err = svc.RecommendationsFor(context.Background(), "zion-narrows", nil)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "poles", links[0].ProductID)

	assert.Equal(t, int32(1), store.contentReads.Load(), "second request is served from cache")
}

func TestRecommendationsFor_CacheKeyedByPreferences(t *testing.T) {
	store, svc := newFixture(t)
	saveSnapshot(t, store.MemoryStore, models.VendorREI, "boots", "180", models.InStock)

	_, err := svc.RecommendationsFor(context.Background(), "zion-narrows", nil)
	require.NoError(t, err)
	prefs := &models.UserPreferences{Budget: decimal.NewNullDecimal(decimal.NewFromInt(200))}
	links, err := svc.RecommendationsFor(context.Background(), "zion-narrows", prefs)
	require.NoError(t, err)

	assert.Equal(t, int32(2), store.contentReads.Load())
	require.Len(t, links, 1)
	assert.Equal(t, 1.0, links[0].RelevanceScore)
}

func TestRecommendationsFor_UnknownContentIsEmpty(t *testing.T) {
	_, svc := newFixture(t)

	links, err := svc.RecommendationsFor(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.NotNil(t, links)
	assert.Empty(t, links)
}

func TestRecommendationsFor_RequiresContentRef(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.RecommendationsFor(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]models.RecommendationItem, bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

func (brokenCache) Set(context.Context, string, []models.RecommendationItem, time.Duration) error {
	return errors.New("redis: connection refused")
}

func TestRecommendationsFor_CacheFailureFallsThrough(t *testing.T) {
	mem := storage.NewMemoryStore()
	mem.PutContent(models.Content{Ref: "zion-narrows", Title: "Zion Narrows Guided Hike in Spring"})
	saveSnapshot(t, mem, models.VendorREI, "boots", "180", models.InStock)
	svc := NewService(mem, relevance.NewDefaultScorer(), testCatalog(), brokenCache{}, time.Hour)

	links, err := svc.RecommendationsFor(context.Background(), "zion-narrows", nil)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	items := []models.RecommendationItem{{SourceCategory: "hiking", RelevanceScore: 0.9}}
	require.NoError(t, cache.Set(context.Background(), "k", items, time.Minute))

	got, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "hiking", got[0].SourceCategory)
	assert.Equal(t, 0.9, got[0].RelevanceScore)

	now = now.Add(time.Minute)
	_, ok, err = cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "zion|budget=any", CacheKey("zion", nil))
	assert.Equal(t, "zion|budget=any", CacheKey("zion", &models.UserPreferences{}))
	assert.Equal(t, "zion|budget=150.5", CacheKey("zion", &models.UserPreferences{Budget: decimal.NewNullDecimal(decimal.RequireFromString("150.50"))}))
}
