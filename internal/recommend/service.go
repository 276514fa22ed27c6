package recommend

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/metrics"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/relevance"
	"github.com/trailpost/affiliate-engine/internal/storage"
	"golang.org/x/sync/singleflight"
)

// Store is the persistence the orchestrator reads
type Store interface {
	storage.ContentProvider
	GetSnapshot(ctx context.Context, vendor models.Vendor, productID string) (*models.InventorySnapshot, error)
}

// Service joins relevance scoring with live inventory to produce
// purchasable recommendations
type Service struct {
	store   Store
	scorer  *relevance.Scorer
	catalog []models.Candidate
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
}

// NewService creates a new recommendation orchestrator. cache may be nil.
func NewService(store Store, scorer *relevance.Scorer, catalog []models.Candidate, cache Cache, ttl time.Duration) *Service {
	return &Service{
		store:   store,
		scorer:  scorer,
		catalog: catalog,
		cache:   cache,
		ttl:     ttl,
	}
}

// CacheKey identifies the scored set for a content item and preference set
func CacheKey(contentRef string, prefs *models.UserPreferences) string {
	budget := "any"
	if prefs != nil && prefs.Budget.Valid {
		budget = prefs.Budget.Decimal.String()
	}
	return contentRef + "|budget=" + budget
}

// RecommendationsFor returns the in-stock affiliate links for contentRef
// ranked by relevance. Lookup failures degrade to an empty list; only a
// missing contentRef is reported as an error.
func (s *Service) RecommendationsFor(ctx context.Context, contentRef string, prefs *models.UserPreferences) ([]models.AffiliateLink, error) {
	contentRef = strings.TrimSpace(contentRef)
	if contentRef == "" {
		return nil, models.NewValidationError("contentRef", "is required")
	}

	items, err := s.scored(ctx, contentRef, prefs)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logrus.Infof("No content found for %s", contentRef)
		} else {
			logrus.Errorf("Failed to score recommendations for %s: %v", contentRef, err)
		}
		return []models.AffiliateLink{}, nil
	}

	links := s.join(ctx, items)
	metrics.RecommendationsServed.Observe(float64(len(links)))
	return links, nil
}

// scored returns the cached scorer output for the content, computing and
// caching it on a miss. Concurrent misses for one key share a computation.
func (s *Service) scored(ctx context.Context, contentRef string, prefs *models.UserPreferences) ([]models.RecommendationItem, error) {
	key := CacheKey(contentRef, prefs)

	if s.cache != nil {
		items, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.RecommendationCacheRequests.WithLabelValues("error").Inc()
			logrus.Warnf("Recommendation cache read failed for %s: %v", key, err)
		case ok:
			metrics.RecommendationCacheRequests.WithLabelValues("hit").Inc()
			return items, nil
		default:
			metrics.RecommendationCacheRequests.WithLabelValues("miss").Inc()
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		content, err := s.store.GetContent(ctx, contentRef)
		if err != nil {
			return nil, err
		}
		items := s.scorer.Score(*content, s.catalog, prefs)

		if s.cache != nil {
			if err := s.cache.Set(ctx, key, items, s.ttl); err != nil {
				logrus.Warnf("Failed to cache recommendations for %s: %v", key, err)
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.RecommendationItem), nil
}

// join keeps the items whose current snapshot is in stock and prices them
// from that snapshot. A missing snapshot drops the item.
func (s *Service) join(ctx context.Context, items []models.RecommendationItem) []models.AffiliateLink {
	links := make([]models.AffiliateLink, 0, len(items))
	for _, item := range items {
		c := item.Candidate
		snapshot, err := s.store.GetSnapshot(ctx, c.Vendor, c.ProductID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				logrus.WithFields(logrus.Fields{
					"vendor":     c.Vendor,
					"product_id": c.ProductID,
				}).Warnf("Inventory lookup failed, dropping recommendation: %v", err)
			}
			continue
		}
		if !snapshot.Availability.Purchasable() {
			continue
		}

		name := snapshot.Name
		if name == "" {
			name = c.Name
		}
		links = append(links, models.AffiliateLink{
			Vendor:         c.Vendor,
			ProductID:      c.ProductID,
			Name:           name,
			Kind:           c.Kind,
			Category:       item.SourceCategory,
			Price:          snapshot.Price,
			OriginalPrice:  snapshot.OriginalPrice,
			URL:            snapshot.AffiliateLink,
			RelevanceScore: item.RelevanceScore,
		})
	}

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].RelevanceScore > links[j].RelevanceScore
	})
	return links
}
