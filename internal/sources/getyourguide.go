package sources

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// GetYourGuideSource implements the GetYourGuide partner activities API
type GetYourGuideSource struct {
	feed *feedClient
}

type gygActivity struct {
	ActivityID int    `json:"activity_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Category   string `json:"category"`
	Available  bool   `json:"available"`
	Price      struct {
		Values struct {
			Amount         decimal.Decimal     `json:"amount"`
			AmountOriginal decimal.NullDecimal `json:"amount_original"`
		} `json:"values"`
	} `json:"price"`
}

type gygResponse struct {
	Data struct {
		Activities []gygActivity `json:"activities"`
	} `json:"data"`
}

// NewGetYourGuideSource creates a new GetYourGuide source
func NewGetYourGuideSource(api config.VendorAPI) *GetYourGuideSource {
	return &GetYourGuideSource{feed: newFeedClient(models.VendorGetYourGuide, api, "X-Access-Token")}
}

func (g *GetYourGuideSource) GetName() models.Vendor {
	return models.VendorGetYourGuide
}

func (g *GetYourGuideSource) IsEnabled() bool {
	return g.feed.enabled()
}

func (g *GetYourGuideSource) FetchProduct(ctx context.Context, productID string) (*models.ProductQuote, error) {
	var result gygResponse
	if err := g.feed.getJSON(ctx, "/1/activities/"+productID, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Data.Activities) == 0 {
		return nil, fmt.Errorf("getyourguide activity %s: %w", productID, models.ErrNotFound)
	}
	return g.toQuote(result.Data.Activities[0]), nil
}

func (g *GetYourGuideSource) FetchCatalog(ctx context.Context) ([]models.ProductQuote, error) {
	const pageSize = 50
	var quotes []models.ProductQuote

	for page := 0; page < maxCatalogPages; page++ {
		var result gygResponse
		query := map[string]string{
			"offset": strconv.Itoa(page * pageSize),
			"limit":  strconv.Itoa(pageSize),
		}
		if err := g.feed.getJSON(ctx, "/1/activities", query, &result); err != nil {
			return quotes, fmt.Errorf("failed to fetch GetYourGuide activities: %w", err)
		}
		for _, activity := range result.Data.Activities {
			quotes = append(quotes, *g.toQuote(activity))
		}
		if len(result.Data.Activities) < pageSize {
			break
		}
	}

	return quotes, nil
}

func (g *GetYourGuideSource) toQuote(a gygActivity) *models.ProductQuote {
	quote := &models.ProductQuote{
		Vendor:        models.VendorGetYourGuide,
		ProductID:     strconv.Itoa(a.ActivityID),
		Name:          a.Title,
		Price:         a.Price.Values.Amount,
		OriginalPrice: a.Price.Values.AmountOriginal,
		Availability:  models.OutOfStock,
		AffiliateLink: g.feed.trackedLink(a.URL, "partner_id"),
		Category:      "activity",
	}
	if a.Category != "" {
		quote.Category = a.Category
	}
	if a.Available {
		quote.Availability = models.InStock
	}
	return quote
}
