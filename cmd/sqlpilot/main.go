package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sqlpilot/internal/config"
	"sqlpilot/internal/db"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/measure"
	"sqlpilot/internal/pipeline"
	"sqlpilot/internal/run"
	"sqlpilot/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	ctx := context.Background()

	oracle, err := llm.NewGeminiClient(ctx, llm.GeminiOptions{
		APIKey: cfg.LLM.APIKey,
		Model:  cfg.LLM.Model,
		RPS:    cfg.LLM.RPS,
		Burst:  cfg.LLM.Burst,
	})
	if err != nil {
		log.Fatalf("Failed to initialize oracle client: %v", err)
	}
	defer oracle.Close()

	var executor db.Executor
	if cfg.DatabaseURL != "" {
		executor, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer executor.Close()
	}

	index := measure.NewIndex(cfg.MeasuresDir, cfg.IndexFile)
	resolver := measure.NewResolver(index, cfg.MeasuresDir)
	engine := pipeline.NewEngine(oracle, resolver, executor)

	broker := run.NewEventBroker()
	runs := run.NewService(engine, broker)

	handler := server.NewHandler(runs, broker, index, cfg.ExportDir, cfg.ReviewEnabled)
	srv := server.New(cfg.Port, server.NewMux(handler))

	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exiting")
}
