package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/reporting"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

const outputDir = "report_output"

// fileArchive keeps archived reports in a local directory
type fileArchive struct {
	dir string
}

var _ storage.ArchiveStore = (*fileArchive)(nil)

func (f *fileArchive) path(name string) string {
	return filepath.Join(f.dir, filepath.FromSlash(name))
}

func (f *fileArchive) Store(_ context.Context, name string, data []byte) error {
	path := f.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Printf("\n💾 Report saved to: %s\n", path)
	return nil
}

func (f *fileArchive) Retrieve(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(f.path(name))
}

func (f *fileArchive) List(_ context.Context, prefix string) ([]string, error) {
	matches, err := filepath.Glob(f.path(prefix) + "*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(f.dir, m)
		if err != nil {
			continue
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return names, nil
}

func (f *fileArchive) Delete(_ context.Context, name string) error {
	return os.Remove(f.path(name))
}

// terminalNotifier prints reports instead of sending them
type terminalNotifier struct{}

func (terminalNotifier) SendReport(report *models.RevenueReport) error {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("📊 AFFILIATE REVENUE REPORT")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("📅 Period: last %s (%s to %s)\n", report.Timeframe,
		report.PeriodStart.Format("2006-01-02 15:04"), report.PeriodEnd.Format("2006-01-02 15:04 UTC"))
	fmt.Printf("🛒 Conversions: %d\n", report.ConversionCount)
	fmt.Printf("💵 Revenue: $%.2f (avg order $%.2f)\n", report.TotalRevenue, report.AvgOrderValue)
	fmt.Printf("💰 Commission: $%.2f\n", report.TotalCommission)
	fmt.Printf("📈 Projected: $%.2f / month, $%.2f / year\n", report.ProjectedMonthlyCommission, report.ProjectedAnnualCommission)

	if len(report.ByVendor) > 0 {
		fmt.Println("\n🏪 By vendor:")
		for _, v := range report.ByVendor {
			fmt.Printf("   • %-14s %3d conversions  $%10.2f revenue  $%8.2f commission\n",
				string(v.Vendor)+":", v.Conversions, v.Revenue, v.Commission)
		}
	}

	if len(report.ByContent) > 0 {
		fmt.Println("\n📝 Top content:")
		for i, c := range report.ByContent {
			if i >= 10 {
				fmt.Printf("   ... and %d more pages\n", len(report.ByContent)-10)
				break
			}
			fmt.Printf("   %2d. %-40s $%8.2f (%d conversions)\n", i+1, c.ContentRef, c.Commission, c.Conversions)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	return nil
}

func (terminalNotifier) SendAlert(alert *models.Alert) error {
	fmt.Println("\n🚨 ALERT")
	fmt.Printf("Type: %s\n", alert.Type)
	fmt.Printf("Message: %s\n", alert.Message)
	return nil
}

func main() {
	fmt.Println("💰 Affiliate Engine - Revenue Report")
	fmt.Println("====================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	archive := reportArchive(ctx, cfg)

	if len(os.Args) > 1 && os.Args[1] == "history" {
		showHistory(ctx, archive)
		return
	}

	timeframe := models.TimeframeWeek
	if len(os.Args) > 1 {
		tf, err := models.ParseTimeframe(os.Args[1])
		if err != nil {
			log.Fatalf("Usage: revenue-report [day|week|month|quarter|year|history]: %v", err)
		}
		timeframe = tf
	}

	store, err := storage.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	digest := reporting.NewDigest(reporting.NewService(store), archive, terminalNotifier{}, cfg.ReportArchiveRetention)
	if _, err := digest.Run(ctx, timeframe); err != nil {
		fmt.Printf("❌ Error generating report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Revenue report completed!")
}

// reportArchive uses the engine's Azure archive when configured and the
// local output directory otherwise
func reportArchive(ctx context.Context, cfg *config.Config) storage.ArchiveStore {
	if cfg.StorageAccount == "" {
		fmt.Printf("📁 Archiving to local '%s' directory\n", outputDir)
		return &fileArchive{dir: outputDir}
	}
	archive, err := storage.NewAzureArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
	if err != nil {
		log.Fatalf("Failed to initialize report archive: %v", err)
	}
	fmt.Printf("☁️  Archiving to Azure container '%s'\n", cfg.StorageContainer)
	return archive
}

// showHistory lists archived reports and prints the newest one
func showHistory(ctx context.Context, archive storage.ArchiveStore) {
	names, err := archive.List(ctx, reporting.ArchivePrefix)
	if err != nil {
		log.Fatalf("Failed to list archived reports: %v", err)
	}
	sort.Strings(names)
	fmt.Printf("\n🗂️  %d archived reports\n", len(names))
	for _, name := range names {
		fmt.Printf("   • %s\n", name)
	}

	name, report, err := reporting.Latest(ctx, archive)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n📄 Latest: %s\n", name)
	_ = terminalNotifier{}.SendReport(report)
}
