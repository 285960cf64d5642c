package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ridgeline/gateway/internal/gateway"
	"github.com/ridgeline/gateway/internal/gwconfig"
	"github.com/ridgeline/gateway/internal/proxy"
	"github.com/ridgeline/gateway/internal/reload"
	"github.com/ridgeline/gateway/internal/serverstate"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "Path to dynamic configuration file")
	adminAddr := flag.String("admin", ":8081", "Admin API listen address (empty to disable)")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("API Gateway %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := gwconfig.NewLoader()
	dyn, err := loader.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *validateOnly {
		if _, err := reload.Compile(1, dyn, nil, serverstate.NewStore()); err != nil {
			log.Fatalf("configuration is invalid: %v", err)
		}
		fmt.Println("configuration is valid")
		os.Exit(0)
	}

	log.Printf("starting API Gateway %s", version)
	log.Printf("configuration loaded from %s", *configPath)
	log.Printf("entry points configured: %d", len(dyn.EntryPoints))

	server := gateway.NewServer(proxy.Config{}, *adminAddr)
	if err := server.Reload(dyn, nil); err != nil {
		log.Fatalf("failed to apply configuration: %v", err)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
