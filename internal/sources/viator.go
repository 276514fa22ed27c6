package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// ViatorSource implements the Viator partner products API
type ViatorSource struct {
	feed *feedClient
}

type viatorProduct struct {
	ProductCode string `json:"productCode"`
	Title       string `json:"title"`
	ProductURL  string `json:"productUrl"`
	Status      string `json:"status"`
	Bookable    *bool  `json:"bookable"`
	Pricing     struct {
		Summary struct {
			FromPrice           decimal.Decimal     `json:"fromPrice"`
			FromPriceBeforeSale decimal.NullDecimal `json:"fromPriceBeforeDiscount"`
		} `json:"summary"`
	} `json:"pricing"`
	Tags []string `json:"tags"`
}

type viatorSearchResponse struct {
	Products   []viatorProduct `json:"products"`
	TotalCount int             `json:"totalCount"`
}

// NewViatorSource creates a new Viator source
func NewViatorSource(api config.VendorAPI) *ViatorSource {
	return &ViatorSource{feed: newFeedClient(models.VendorViator, api, "exp-api-key")}
}

func (v *ViatorSource) GetName() models.Vendor {
	return models.VendorViator
}

func (v *ViatorSource) IsEnabled() bool {
	return v.feed.enabled()
}

func (v *ViatorSource) FetchProduct(ctx context.Context, productID string) (*models.ProductQuote, error) {
	var product viatorProduct
	if err := v.feed.getJSON(ctx, "/partner/products/"+productID, nil, &product); err != nil {
		return nil, err
	}
	return v.toQuote(product), nil
}

func (v *ViatorSource) FetchCatalog(ctx context.Context) ([]models.ProductQuote, error) {
	const pageSize = 50
	var quotes []models.ProductQuote

	for page := 0; page < maxCatalogPages; page++ {
		var result viatorSearchResponse
		query := map[string]string{
			"start": strconv.Itoa(page*pageSize + 1),
			"count": strconv.Itoa(pageSize),
		}
		if err := v.feed.getJSON(ctx, "/partner/products/search", query, &result); err != nil {
			return quotes, fmt.Errorf("failed to search Viator products: %w", err)
		}
		for _, product := range result.Products {
			quotes = append(quotes, *v.toQuote(product))
		}
		if len(result.Products) < pageSize || len(quotes) >= result.TotalCount {
			break
		}
	}

	return quotes, nil
}

func (v *ViatorSource) toQuote(p viatorProduct) *models.ProductQuote {
	quote := &models.ProductQuote{
		Vendor:        models.VendorViator,
		ProductID:     p.ProductCode,
		Name:          p.Title,
		Price:         p.Pricing.Summary.FromPrice,
		OriginalPrice: p.Pricing.Summary.FromPriceBeforeSale,
		Availability:  models.InStock,
		AffiliateLink: v.feed.trackedLink(p.ProductURL, "pid"),
		Category:      "activity",
	}
	if len(p.Tags) > 0 {
		quote.Category = strings.ToLower(p.Tags[0])
	}

	switch {
	case strings.EqualFold(p.Status, "INACTIVE"):
		quote.Availability = models.Discontinued
	case p.Bookable != nil && !*p.Bookable:
		quote.Availability = models.OutOfStock
	}

	return quote
}
