package sources

import (
	"context"

	"github.com/trailpost/affiliate-engine/internal/models"
)

// Source interface defines the contract for vendor catalog and price feeds
type Source interface {
	GetName() models.Vendor
	IsEnabled() bool
	// FetchProduct returns the current price and availability of one product
	FetchProduct(ctx context.Context, productID string) (*models.ProductQuote, error)
	// FetchCatalog returns every product the vendor exposes to the program
	FetchCatalog(ctx context.Context) ([]models.ProductQuote, error)
}
