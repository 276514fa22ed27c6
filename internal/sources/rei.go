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

// REISource implements the REI partner product feed
type REISource struct {
	feed *feedClient
}

type reiProduct struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	URL          string `json:"url"`
	Availability string `json:"availability"`
	Inventory    *int   `json:"inventory"`
	Price        struct {
		Current decimal.Decimal     `json:"current"`
		Regular decimal.NullDecimal `json:"regular"`
	} `json:"price"`
}

type reiCatalogPage struct {
	Products []reiProduct `json:"products"`
	NextPage int          `json:"next_page"`
}

// NewREISource creates a new REI source
func NewREISource(api config.VendorAPI) *REISource {
	return &REISource{feed: newFeedClient(models.VendorREI, api, "X-Api-Key")}
}

func (r *REISource) GetName() models.Vendor {
	return models.VendorREI
}

func (r *REISource) IsEnabled() bool {
	return r.feed.enabled()
}

func (r *REISource) FetchProduct(ctx context.Context, productID string) (*models.ProductQuote, error) {
	var product reiProduct
	if err := r.feed.getJSON(ctx, "/products/"+productID, nil, &product); err != nil {
		return nil, err
	}
	return r.toQuote(product), nil
}

func (r *REISource) FetchCatalog(ctx context.Context) ([]models.ProductQuote, error) {
	var quotes []models.ProductQuote
	page := 1

	for i := 0; i < maxCatalogPages && page > 0; i++ {
		select {
		case <-ctx.Done():
			return quotes, ctx.Err()
		default:
		}

		var result reiCatalogPage
		if err := r.feed.getJSON(ctx, "/products", map[string]string{"page": strconv.Itoa(page)}, &result); err != nil {
			return quotes, fmt.Errorf("failed to fetch REI catalog page %d: %w", page, err)
		}
		for _, product := range result.Products {
			quotes = append(quotes, *r.toQuote(product))
		}
		page = result.NextPage
	}

	return quotes, nil
}

func (r *REISource) toQuote(p reiProduct) *models.ProductQuote {
	quote := &models.ProductQuote{
		Vendor:        models.VendorREI,
		ProductID:     p.SKU,
		Name:          p.Name,
		Price:         p.Price.Current,
		OriginalPrice: p.Price.Regular,
		StockQuantity: p.Inventory,
		AffiliateLink: r.feed.trackedLink(p.URL, "avad"),
		Category:      strings.ToLower(p.Category),
	}

	switch strings.ToUpper(p.Availability) {
	case "IN_STOCK":
		quote.Availability = models.InStock
		if p.Inventory != nil {
			quote.Availability = availabilityFromCount(*p.Inventory)
		}
	case "LIMITED":
		quote.Availability = models.LowStock
	case "DISCONTINUED":
		quote.Availability = models.Discontinued
	default:
		quote.Availability = models.OutOfStock
	}

	return quote
}
