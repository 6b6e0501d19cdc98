package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/chatroom/internal/server"
)

var configPath = flag.String("config", "", "Path to a TOML config file; environment variables override it")

func main() {
	flag.Parse()
	fmt.Println("Starting chat room relay...")

	// Create configuration
	config := server.NewConfigFromEnv()
	if *configPath != "" {
		var err error
		if config, err = server.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := server.NewServer(config)
	if err := relay.Run(ctx); err != nil {
		log.Fatalf("Relay stopped: %v", err)
	}

	log.Println("Relay exited cleanly")
}
