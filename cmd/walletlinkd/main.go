package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/walletlink/internal/link"
	"github.com/danmuck/walletlink/internal/logging"
	"github.com/danmuck/walletlink/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to a walletlinkd TOML config")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("walletlinkd")

	cfg := link.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "walletlinkd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	svc := link.NewService(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "walletlinkd: %v\n", err)
		os.Exit(1)
	}
}
