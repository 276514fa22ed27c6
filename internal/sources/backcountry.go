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

// BackcountrySource implements the Backcountry affiliate catalog API
type BackcountrySource struct {
	feed *feedClient
}

type backcountryItem struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	SalePrice  decimal.Decimal `json:"sale_price"`
	ListPrice  decimal.Decimal `json:"list_price"`
	StockLevel int             `json:"stock_level"`
	Status     string          `json:"status"`
	Department string          `json:"department"`
	Deeplink   string          `json:"deeplink"`
}

type backcountryCatalog struct {
	Items  []backcountryItem `json:"items"`
	Offset int               `json:"offset"`
	Total  int               `json:"total"`
}

// NewBackcountrySource creates a new Backcountry source
func NewBackcountrySource(api config.VendorAPI) *BackcountrySource {
	return &BackcountrySource{feed: newFeedClient(models.VendorBackcountry, api, "Authorization")}
}

func (b *BackcountrySource) GetName() models.Vendor {
	return models.VendorBackcountry
}

func (b *BackcountrySource) IsEnabled() bool {
	return b.feed.enabled()
}

func (b *BackcountrySource) FetchProduct(ctx context.Context, productID string) (*models.ProductQuote, error) {
	var item backcountryItem
	if err := b.feed.getJSON(ctx, "/v1/items/"+productID, nil, &item); err != nil {
		return nil, err
	}
	return b.toQuote(item), nil
}

func (b *BackcountrySource) FetchCatalog(ctx context.Context) ([]models.ProductQuote, error) {
	const pageSize = 100
	var quotes []models.ProductQuote

	for page := 0; page < maxCatalogPages; page++ {
		var result backcountryCatalog
		query := map[string]string{
			"offset": strconv.Itoa(page * pageSize),
			"limit":  strconv.Itoa(pageSize),
		}
		if err := b.feed.getJSON(ctx, "/v1/items", query, &result); err != nil {
			return quotes, fmt.Errorf("failed to fetch Backcountry catalog at offset %d: %w", page*pageSize, err)
		}
		for _, item := range result.Items {
			quotes = append(quotes, *b.toQuote(item))
		}
		if len(result.Items) < pageSize || len(quotes) >= result.Total {
			break
		}
	}

	return quotes, nil
}

func (b *BackcountrySource) toQuote(item backcountryItem) *models.ProductQuote {
	stock := item.StockLevel
	quote := &models.ProductQuote{
		Vendor:        models.VendorBackcountry,
		ProductID:     item.ID,
		Name:          item.Title,
		Price:         item.SalePrice,
		StockQuantity: &stock,
		Availability:  availabilityFromCount(item.StockLevel),
		AffiliateLink: b.feed.trackedLink(item.Deeplink, "CMP_ID"),
		Category:      strings.ToLower(item.Department),
	}

	if item.ListPrice.GreaterThan(item.SalePrice) {
		quote.OriginalPrice = decimal.NewNullDecimal(item.ListPrice)
	}
	if strings.EqualFold(item.Status, "discontinued") {
		quote.Availability = models.Discontinued
	}

	return quote
}
