// Package main is a development utility for generating a license key code
// with a ready-to-run SQL INSERT statement, so developers can seed a
// redeemable key in a local database without running the full server flow.
// Do not use generated keys in production; use the admin API, which records
// who created each key.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/Daziusm/anonbuci-sub001/internal/auth"
)

func main() {
	productID := flag.String("product-id", "", "product UUID the key grants access to")
	days := flag.Int("days", 30, "subscription days the key grants")
	flag.Parse()

	if *productID == "" {
		log.Fatal("usage: generate-key -product-id <uuid> [-days 30]")
	}

	code, err := auth.NewLicenseCode()
	if err != nil {
		log.Fatalf("failed to generate license code: %v", err)
	}

	fmt.Printf("Code: %s\n\n", code)
	fmt.Println("SQL to seed the key:")
	fmt.Printf(`INSERT INTO license_keys (id, code, product_id, duration_days, is_used, created_at)
VALUES ('%s', '%s', '%s', %d, FALSE, NOW());
`, uuid.New().String(), code, *productID, *days)
}
