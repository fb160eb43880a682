package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_scalper/internal/domain"
	"github.com/vitos/crypto_scalper/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "scalper.db", "path to the sqlite journal")
	limit := flag.Int("limit", 50, "rows to show")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	orders, err := store.ListOrders(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list orders: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d orders:\n", len(orders))
	for _, o := range orders {
		fmt.Printf("- %s %s %s %s %s @ %s qty %s (%s)\n",
			o.CreatedAt.Format("2006-01-02 15:04:05"), o.ID, o.Symbol, o.Side, o.Type,
			o.FilledPrice, o.FilledQuantity, o.Status)
	}

	pairs, err := store.ListOrderPairs(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list order pairs: %v\n", err)
		os.Exit(1)
	}

	total := decimal.Zero
	wins, losses := 0, 0
	fmt.Printf("\nFound %d order pairs:\n", len(pairs))
	for _, p := range pairs {
		fmt.Printf("- %s %s %s@%s -> %s@%s realized %s\n",
			p.ClosedAt.Format("2006-01-02 15:04:05"), p.Opened.Symbol,
			p.Closed.Side, p.Closed.FilledPrice, p.Opened.Side, p.Opened.FilledPrice, p.Realized)
		if p.Opened.Side != domain.SideSell {
			continue
		}
		total = total.Add(p.Realized)
		if p.Realized.IsPositive() {
			wins++
		} else {
			losses++
		}
	}
	fmt.Printf("\nRealized: %s (%d wins, %d losses)\n", total, wins, losses)
}
