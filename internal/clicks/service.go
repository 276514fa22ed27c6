package clicks

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/metrics"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

// Request describes one outbound affiliate link activation
type Request struct {
	Vendor     string
	TargetURL  string
	Client     models.ClientContext
	Campaign   models.CampaignContext
	ContentRef string
	SessionID  string
}

// Recorder is the contract the HTTP layer uses to record clicks
type Recorder interface {
	RecordClick(ctx context.Context, req Request) (string, error)
}

// Service records attributed clicks. Repeated clicks are never
// deduplicated; every activation gets its own id.
type Service struct {
	repo storage.ClickRepository
	now  func() time.Time
}

var _ Recorder = (*Service)(nil)

// NewService creates a new click recorder
func NewService(repo storage.ClickRepository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// RecordClick validates and persists a click, returning its id. A
// persistence failure is returned wrapped in models.ErrStorageUnavailable.
func (s *Service) RecordClick(ctx context.Context, req Request) (string, error) {
	vendor, ok := models.ParseVendor(req.Vendor)
	if !ok {
		return "", models.NewValidationError("vendor", fmt.Sprintf("unknown vendor %q", req.Vendor))
	}

	target := strings.TrimSpace(req.TargetURL)
	if target == "" {
		return "", models.NewValidationError("linkUrl", "must not be empty")
	}
	if u, err := url.Parse(target); err != nil || u.Host == "" {
		return "", models.NewValidationError("linkUrl", "must be an absolute URL")
	}

	click := &models.Click{
		ID:         uuid.NewString(),
		ContentRef: strings.TrimSpace(req.ContentRef),
		Vendor:     vendor,
		TargetURL:  target,
		Client:     req.Client,
		Campaign:   req.Campaign,
		SessionID:  req.SessionID,
		CreatedAt:  s.now(),
	}

	if err := s.repo.CreateClick(ctx, click); err != nil {
		metrics.ClickRecordFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"vendor":      vendor,
			"content_ref": click.ContentRef,
		}).Errorf("Failed to record click: %v", err)
		return "", err
	}

	metrics.ClicksRecorded.WithLabelValues(string(vendor)).Inc()
	logrus.WithFields(logrus.Fields{
		"click_id": click.ID,
		"vendor":   vendor,
	}).Debug("Recorded affiliate click")

	return click.ID, nil
}
