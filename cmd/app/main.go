package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"MarketPulse/internal/di"
	"MarketPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv %s: %v", *envFile, err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		cleanup()
		os.Exit(1)
	}
}
