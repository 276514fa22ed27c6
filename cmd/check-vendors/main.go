package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/sources"
)

func main() {
	fmt.Println("🔍 Affiliate Engine - Vendor API Connectivity Check")
	fmt.Println("===================================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Println("\n📡 Checking vendor catalog feeds...")
	fmt.Println(strings.Repeat("-", 50))

	for _, source := range sources.NewSources(cfg) {
		checkSource(ctx, cfg, source)
	}

	fmt.Println("\n✅ Vendor connectivity check completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Set <VENDOR>_API_URL and <VENDOR>_API_KEY for disabled vendors")
	fmt.Println("   • Run the engine with: make run")
}

func checkSource(ctx context.Context, cfg *config.Config, source sources.Source) {
	fmt.Printf("🔸 Checking %s... ", source.GetName())

	if !source.IsEnabled() {
		fmt.Printf("⚠️  DISABLED (missing API URL or key)\n")
		return
	}

	start := time.Now()
	quotes, err := source.FetchCatalog(ctx)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS (%d products in %s)\n", len(quotes), time.Since(start).Round(time.Millisecond))
	if len(quotes) == 0 {
		return
	}

	sample := quotes[0]
	fmt.Printf("   📝 Sample: %s - %s (%s)\n", sample.Name, sample.Price.StringFixed(2), sample.Availability)

	// Single product lookups are what the price check cycle uses
	fetchCtx, cancel := context.WithTimeout(ctx, cfg.VendorFetchTimeout)
	defer cancel()
	if _, err := source.FetchProduct(fetchCtx, sample.ProductID); err != nil {
		fmt.Printf("   ⚠️  Product lookup for %s failed: %v\n", sample.ProductID, err)
	}
}
