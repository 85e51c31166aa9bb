package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/models"
)

func main() {
	asJSON := flag.Bool("json", false, "Print mismatches as JSON")
	failOnMismatch := flag.Bool("fail-on-mismatch", true, "Exit with status 2 when any product disagrees with its history")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	mismatches, err := models.ReconcileInventory(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(mismatches); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
	} else {
		for _, m := range mismatches {
			fmt.Printf("product=%s quantity=%d history_total=%d drift=%d\n", m.ProductCode, m.Quantity, m.HistoryTotal, m.Quantity-m.HistoryTotal)
		}
		fmt.Printf("%d product(s) out of balance\n", len(mismatches))
	}

	if *failOnMismatch && len(mismatches) > 0 {
		os.Exit(2)
	}
}
