package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

// Single-process deployment: coordinator, timer authority, outbox relay, and
// gateway all in one binary. The split runners under gateway/cmd and
// session/authority/cmd cover the multi-process topology.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := setupPool(ctx)
	if err != nil {
		log.Fatalf("Failed to setup connection pool: %v", err)
	}
	defer pool.Close()

	database, err := setupDatabase()
	if err != nil {
		log.Fatalf("Failed to setup database: %v", err)
	}
	defer database.Close()

	services, err := setupServices(pool, database, config)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}

	if err := services.Outbox.Start(ctx); err != nil {
		log.Fatalf("Failed to start outbox worker: %v", err)
	}

	go func() {
		if err := services.Supervisor.Run(ctx); err != nil {
			log.Printf("Authority supervisor failed: %v", err)
		}
	}()

	go func() {
		if err := services.Gateway.Start(ctx); err != nil {
			log.Printf("Gateway service failed: %v", err)
		}
	}()

	server := setupServer(services, config)
	go func() {
		log.Printf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}

	cancel()
	if err := services.Outbox.Stop(); err != nil {
		log.Printf("Outbox worker stop failed: %v", err)
	}
	time.Sleep(1 * time.Second)

	log.Println("Shutdown complete")
}
