package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/relay"
	"chat-relay/internal/utils"

	"github.com/joho/godotenv"
)

var (
	configFile = flag.String("config", "config.yaml", "Configuration file path")
	port       = flag.Int("port", 0, "Override relay server port")
	version    = flag.Bool("version", false, "Show version information")

	// This will be set by build process
	Version = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Chat Relay %s\n", Version)
		os.Exit(0)
	}

	// .env存在时先加载，配置里的${VAR}展开依赖这些环境变量
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: failed to load .env: %v", err)
		}
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	// Initialize HTTP clients with configured timeouts
	if err := initHTTPClientsFromConfig(cfg); err != nil {
		log.Fatalf("Failed to initialize HTTP clients: %v", err)
	}

	relayServer, err := relay.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create relay server: %v", err)
	}

	go func() {
		if err := relayServer.Start(); err != nil {
			log.Fatalf("Relay server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("\n=== Chat Relay %s ===\n", Version)
	fmt.Printf("Relay Server: http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Log API: http://%s:%d/admin/api/logs\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Configuration File: %s\n", *configFile)
	fmt.Printf("\nPress Ctrl+C to stop the server...\n\n")

	<-quit
	fmt.Println("\nShutting down server...")

	// Graceful shutdown: close logger and database connections
	if logger := relayServer.GetLogger(); logger != nil {
		if err := logger.Close(); err != nil {
			log.Printf("Error closing logger: %v", err)
		} else {
			log.Println("Logger closed successfully")
		}
	}
}

// initHTTPClientsFromConfig initializes HTTP clients with timeout configurations
func initHTTPClientsFromConfig(cfg *config.Config) error {
	relayTimeouts := utils.TimeoutConfig{}

	var err error
	if relayTimeouts.TLSHandshake, err = utils.ParseTimeoutWithDefault(cfg.Timeouts.Relay.TLSHandshake, "relay.tls_handshake", 10*time.Second); err != nil {
		return err
	}
	if relayTimeouts.ResponseHeader, err = utils.ParseTimeoutWithDefault(cfg.Timeouts.Relay.ResponseHeader, "relay.response_header", 60*time.Second); err != nil {
		return err
	}
	if relayTimeouts.IdleConnection, err = utils.ParseTimeoutWithDefault(cfg.Timeouts.Relay.IdleConnection, "relay.idle_connection", 90*time.Second); err != nil {
		return err
	}

	triggerTimeouts := utils.TimeoutConfig{}
	if triggerTimeouts.TLSHandshake, err = utils.ParseTimeoutWithDefault(cfg.Timeouts.Trigger.TLSHandshake, "trigger.tls_handshake", 10*time.Second); err != nil {
		return err
	}
	if triggerTimeouts.ResponseHeader, err = utils.ParseTimeoutWithDefault(cfg.Timeouts.Trigger.ResponseHeader, "trigger.response_header", 30*time.Second); err != nil {
		return err
	}
	if triggerTimeouts.IdleConnection, err = utils.ParseTimeoutWithDefault(cfg.Timeouts.Trigger.IdleConnection, "trigger.idle_connection", 60*time.Second); err != nil {
		return err
	}
	if triggerTimeouts.OverallRequest, err = utils.ParseTimeoutWithDefault(cfg.Timeouts.Trigger.OverallRequest, "trigger.overall_request", 30*time.Second); err != nil {
		return err
	}

	utils.InitHTTPClientsWithTimeouts(relayTimeouts, triggerTimeouts)
	return nil
}
