package clicks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

type failingClicks struct {
	storage.ClickRepository
}

func (failingClicks) CreateClick(ctx context.Context, click *models.Click) error {
	return models.StorageError("create click", errors.New("connection refused"))
}

func validRequest() Request {
	return Request{
		Vendor:     "REI",
		TargetURL:  "https://www.rei.com/product/123",
		ContentRef: "zion-narrows",
		SessionID:  "sess-1",
		Client:     models.ClientContext{UserAgent: "Mozilla/5.0", IP: "203.0.113.9"},
		Campaign:   models.CampaignContext{Source: "newsletter", Medium: "email"},
	}
}

func TestRecordClick_Persists(t *testing.T) {
	store := storage.NewMemoryStore()
	service := NewService(store)

	id, err := service.RecordClick(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	click, err := store.GetClick(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.VendorREI, click.Vendor)
	assert.Equal(t, "zion-narrows", click.ContentRef)
	assert.Equal(t, "newsletter", click.Campaign.Source)
	assert.False(t, click.Converted)
	assert.False(t, click.ConversionValue.Valid)
}

func TestRecordClick_NoDeduplication(t *testing.T) {
	service := NewService(storage.NewMemoryStore())

	first, err := service.RecordClick(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := service.RecordClick(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestRecordClick_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Request)
		field  string
	}{
		{
			name:   "Unknown vendor",
			modify: func(r *Request) { r.Vendor = "etsy" },
			field:  "vendor",
		},
		{
			name:   "Empty target",
			modify: func(r *Request) { r.TargetURL = "  " },
			field:  "linkUrl",
		},
		{
			name:   "Relative target",
			modify: func(r *Request) { r.TargetURL = "/product/123" },
			field:  "linkUrl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			req := validRequest()
			tt.modify(&req)

			_, err := NewService(store).RecordClick(context.Background(), req)

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestRecordClick_StorageUnavailable(t *testing.T) {
	service := NewService(failingClicks{})

	_, err := service.RecordClick(context.Background(), validRequest())
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}
