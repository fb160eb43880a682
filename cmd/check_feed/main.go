package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_scalper/internal/config"
	"github.com/vitos/crypto_scalper/internal/domain"
	"github.com/vitos/crypto_scalper/internal/infrastructure/exchange"
	"github.com/vitos/crypto_scalper/internal/infrastructure/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "symbol to watch, defaults to scalper.symbol")
	duration := flag.Duration("for", 10*time.Second, "how long to print quotes")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *symbol == "" {
		*symbol = cfg.Scalper.Symbol
	}

	log, err := logger.NewLogger("warn")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	fmt.Printf("Testing Bybit spot feed...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Exchange.WSEndpoint)

	adapter := exchange.NewBybitSpotAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log)
	defer adapter.Close()

	// 2. Subscribe and print quotes
	count := 0
	quotes := make(chan domain.Quote, 64)
	unsubscribe, err := adapter.SubscribeQuotes(*symbol, func(q domain.Quote) {
		select {
		case quotes <- q:
		default:
		}
	})
	if err != nil {
		fmt.Printf("❌ Failed to subscribe: %v\n", err)
		os.Exit(1)
	}
	defer unsubscribe()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	timeout := time.After(*duration)

	for {
		select {
		case q := <-quotes:
			count++
			fmt.Printf("%s %s bid=%s ask=%s mid=%s\n",
				q.Time.Format("15:04:05.000"), q.Symbol, q.BestBid, q.BestAsk, q.Mid())
		case <-timeout:
			if count == 0 {
				fmt.Printf("❌ No quotes for %s in %s\n", *symbol, *duration)
				os.Exit(1)
			}
			fmt.Printf("✅ %d quotes for %s\n", count, *symbol)
			return
		case <-stop:
			return
		}
	}
}
