package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/monitoring"
	"github.com/trailpost/affiliate-engine/internal/sources"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

// printNotifier writes alerts to the terminal instead of Teams or email
type printNotifier struct{}

func (p *printNotifier) SendReport(report *models.RevenueReport) error {
	fmt.Printf("📊 Revenue report: %.2f total\n", report.TotalCommission)
	return nil
}

func (p *printNotifier) SendAlert(alert *models.Alert) error {
	fmt.Printf("🚨 ALERT: %s\n", alert.Message)
	return nil
}

func main() {
	fmt.Println("🧪 Affiliate Engine - One-shot Inventory Sync")
	fmt.Println("=============================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Snapshots stay in memory; nothing is written to the database
	store := storage.NewMemoryStore()
	srcs := sources.WrapAll(sources.NewSources(cfg), sources.DefaultBreakerSettings())
	service := monitoring.NewService(monitoring.SettingsFromConfig(cfg), store, &printNotifier{}, srcs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Println("\n🔍 Running full catalog sync against live vendor feeds...")
	printResult(service.RunFullSync(ctx))

	snapshots, err := store.ListSnapshots(ctx, models.InventoryFilter{})
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}
	byVendor := make(map[models.Vendor]int)
	for _, s := range snapshots {
		byVendor[s.Vendor]++
	}
	for _, vendor := range models.Vendors {
		fmt.Printf("   • %s: %d products\n", vendor, byVendor[vendor])
	}

	fmt.Println("\n🔁 Running price check over the synced catalog...")
	printResult(service.RunPriceCheck(ctx))

	fmt.Println("\n✅ Sync run completed")
}

func printResult(result *monitoring.SyncResult) {
	fmt.Printf("   processed=%d updated=%d failed=%d alerts=%d\n",
		result.Processed, result.Updated, result.Failed, result.Alerts)
	for _, vendor := range result.Skipped {
		fmt.Printf("   ⚠️  %s skipped (previous cycle still running)\n", vendor)
	}
	for i, err := range result.Errors {
		if i >= 5 {
			fmt.Printf("   ... and %d more errors\n", len(result.Errors)-i)
			break
		}
		fmt.Printf("   ❌ %v\n", err)
	}
}
