package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/models"
	"golang.org/x/time/rate"
)

// lowStockThreshold is the unit count at or below which a product is low stock
const lowStockThreshold = 5

// maxCatalogPages bounds a full catalog walk
const maxCatalogPages = 50

// feedClient is the HTTP plumbing shared by the vendor partner feeds
type feedClient struct {
	vendor    models.Vendor
	baseURL   string
	apiKey    string
	partnerID string
	client    *resty.Client
	limiter   *rate.Limiter
}

func newFeedClient(vendor models.Vendor, api config.VendorAPI, authHeader string) *feedClient {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "Trailpost-Affiliate-Engine/1.0").
		SetHeader("Accept", "application/json")
	if api.APIKey != "" {
		client.SetHeader(authHeader, api.APIKey)
	}

	rps := api.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &feedClient{
		vendor:    vendor,
		baseURL:   api.BaseURL,
		apiKey:    api.APIKey,
		partnerID: api.PartnerID,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (f *feedClient) enabled() bool {
	return f.baseURL != "" && f.apiKey != ""
}

// getJSON performs a rate-limited GET and decodes the JSON body into out
func (f *feedClient) getJSON(ctx context.Context, path string, query map[string]string, out interface{}) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(f.baseURL + path)
	if err != nil {
		return err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%s%s: %w", f.vendor, path, models.ErrNotFound)
	default:
		return fmt.Errorf("%s API returned status %d", f.vendor, resp.StatusCode())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", f.vendor, err)
	}
	return nil
}

// trackedLink tags a product URL with the publisher's partner id
func (f *feedClient) trackedLink(raw, param string) string {
	if raw == "" || f.partnerID == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		logrus.Debugf("Leaving unparseable %s link untagged: %v", f.vendor, err)
		return raw
	}
	q := u.Query()
	q.Set(param, f.partnerID)
	u.RawQuery = q.Encode()
	return u.String()
}

// availabilityFromCount maps a stock count onto an availability state
func availabilityFromCount(count int) models.Availability {
	switch {
	case count <= 0:
		return models.OutOfStock
	case count <= lowStockThreshold:
		return models.LowStock
	default:
		return models.InStock
	}
}

// NewSources builds every vendor feed the program integrates with
func NewSources(cfg *config.Config) []Source {
	return []Source{
		NewREISource(cfg.VendorAPIs[models.VendorREI]),
		NewBackcountrySource(cfg.VendorAPIs[models.VendorBackcountry]),
		NewGetYourGuideSource(cfg.VendorAPIs[models.VendorGetYourGuide]),
		NewViatorSource(cfg.VendorAPIs[models.VendorViator]),
	}
}
