package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gorillas-Team/Gorilink/internal/config"
	"github.com/Gorillas-Team/Gorilink/internal/discord"
	"github.com/Gorillas-Team/Gorilink/internal/logger"
	"github.com/Gorillas-Team/Gorilink/internal/shutdown"
	"github.com/Gorillas-Team/Gorilink/internal/telemetry"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config.json", "Path to config file")
	logLevel := flag.String("log", "", "Log level (error, warn, info, debug); overrides the config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	levelName := cfg.LogLevel
	if *logLevel != "" {
		levelName = *logLevel
	}
	level, ok := logger.ParseLevel(levelName)
	logger.Setup(level)
	if !ok {
		logger.Warn.Printf("Unknown log level %q, using info", levelName)
	}
	logger.Info.Println("Starting Gorilink bot...")

	telemetry.Init()
	stopTracing, err := telemetry.InitTracing("gorilink", version)
	if err != nil {
		logger.Error.Printf("Tracing disabled: %v", err)
		stopTracing = func() {}
	}
	defer stopTracing()

	shutdownManager := shutdown.NewManager()

	if cfg.MetricsAddr != "" {
		metricsServer := telemetry.NewServer(cfg.MetricsAddr)
		if err := metricsServer.Start(); err != nil {
			logger.Error.Printf("Failed to start metrics server: %v", err)
		} else {
			shutdownManager.Register(metricsServer)
		}
	}

	discordClient, err := discord.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create Discord client: %v", err)
	}

	if err := discordClient.Connect(); err != nil {
		log.Fatalf("Failed to connect to Discord: %v", err)
	}

	// Shut down in reverse: players leave voice before the gateway closes.
	if discordClient.DB != nil {
		shutdownManager.Register(discordClient.DB)
	}
	shutdownManager.Register(discordClient)
	shutdownManager.Register(discordClient.Manager)

	logger.Info.Println("Bot is now running. Press Ctrl+C to exit.")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info.Println("Shutdown signal received...")

	if err := shutdownManager.Shutdown(30 * time.Second); err != nil {
		logger.Error.Printf("Shutdown error: %v", err)
		stopTracing()
		os.Exit(1)
	}

	logger.Info.Println("Shutdown complete.")
}
