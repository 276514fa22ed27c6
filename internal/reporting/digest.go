package reporting

import (
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/notifications"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

// ArchivePrefix is the blob prefix every archived revenue report shares
const ArchivePrefix = "reports/revenue-"

// Digest builds the daily revenue report, archives it and sends it out
type Digest struct {
	reporter  *Service
	archive   storage.ArchiveStore
	notifier  notifications.NotificationInterface
	retention int
}

// NewDigest creates a revenue digest publisher. archive and notifier may be
// nil. retention is how many archived reports to keep; 0 keeps all of them.
func NewDigest(reporter *Service, archive storage.ArchiveStore, notifier notifications.NotificationInterface, retention int) *Digest {
	return &Digest{reporter: reporter, archive: archive, notifier: notifier, retention: retention}
}

// ArchiveName is the blob name a report generated on its day is stored under
func ArchiveName(report *models.RevenueReport) string {
	return fmt.Sprintf("%s%s.json", ArchivePrefix, report.GeneratedAt.Format("2006-01-02"))
}

// Run publishes the report for timeframe. Archive and send are attempted
// independently; the first failure is returned.
func (d *Digest) Run(ctx context.Context, timeframe models.Timeframe) (*models.RevenueReport, error) {
	report, err := d.reporter.Report(ctx, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to build revenue report: %w", err)
	}

	var firstErr error

	if d.archive != nil {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return report, fmt.Errorf("failed to marshal revenue report: %w", err)
		}
		name := ArchiveName(report)
		if err := d.archive.Store(ctx, name, data); err != nil {
			logrus.Errorf("Failed to archive revenue report %s: %v", name, err)
			firstErr = fmt.Errorf("failed to archive revenue report: %w", err)
		} else {
			logrus.Infof("Archived revenue report to %s", name)
			d.prune(ctx)
		}
	}

	if d.notifier != nil {
		if err := d.notifier.SendReport(report); err != nil {
			logrus.Errorf("Failed to send revenue report: %v", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to send revenue report: %w", err)
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"timeframe":   timeframe,
		"commission":  report.TotalCommission,
		"conversions": report.ConversionCount,
	}).Info("Published revenue digest")

	return report, firstErr
}

// prune deletes the oldest archived reports beyond the retention count.
// Names sort by date, so the oldest come first.
func (d *Digest) prune(ctx context.Context) {
	if d.retention <= 0 {
		return
	}
	names, err := d.archive.List(ctx, ArchivePrefix)
	if err != nil {
		logrus.Warnf("Failed to list archived revenue reports: %v", err)
		return
	}
	if len(names) <= d.retention {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-d.retention] {
		if err := d.archive.Delete(ctx, name); err != nil {
			logrus.Warnf("Failed to delete archived revenue report %s: %v", name, err)
			continue
		}
		logrus.Debugf("Pruned archived revenue report %s", name)
	}
}

// Latest returns the most recently archived report
func Latest(ctx context.Context, archive storage.ArchiveStore) (string, *models.RevenueReport, error) {
	names, err := archive.List(ctx, ArchivePrefix)
	if err != nil {
		return "", nil, fmt.Errorf("failed to list archived revenue reports: %w", err)
	}
	if len(names) == 0 {
		return "", nil, fmt.Errorf("no archived revenue reports: %w", models.ErrNotFound)
	}
	sort.Strings(names)
	name := names[len(names)-1]

	data, err := archive.Retrieve(ctx, name)
	if err != nil {
		return name, nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	var report models.RevenueReport
	if err := json.Unmarshal(data, &report); err != nil {
		return name, nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return name, &report, nil
}
