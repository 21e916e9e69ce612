package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	clientDir := flag.String("client", "", "Path to spectator client directory (empty: API and websocket only)")
	dbPath := flag.String("db", "forcefield.db", "SQLite database path")
	scenarioPath := flag.String("scenario", "", "Scenario JSON file (default: the reference battle)")
	workers := flag.Int("workers", 0, "Worker goroutines shared by all battles (0: 2 x CPUs)")
	bench := flag.Bool("bench", false, "Run the scenario once headless, print duration and speedup, then exit")
	refMs := flag.Float64("ref-ms", refPerformanceMs, "Reference duration in ms for the -bench speedup")
	publicURL := flag.String("public-url", "", "Base URL encoded in spectate QR codes (default: request host)")
	flag.Parse()

	cfg, err := LoadScenario(*scenarioPath)
	if err != nil {
		log.Fatalf("scenario: %v", err)
	}

	pool := NewWorkerPool(*workers)
	defer pool.Close()
	log.Printf("Worker pool: %d goroutines", pool.Size())

	if *bench {
		if _, err := RunBench(cfg, pool, *refMs, os.Stdout); err != nil {
			log.Printf("bench: %v", err)
			os.Exit(1)
		}
		return
	}

	db, err := OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	analytics := NewAnalytics(db)
	sessions := NewSessionManager(pool, db, analytics)
	hub := NewHub(sessions, db, analytics, cfg)
	go hub.Run()

	server := &http.Server{Addr: *addr, Handler: SetupRoutes(hub, *clientDir, *publicURL)}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on %s", *addr)
		if *clientDir != "" {
			log.Printf("Serving client files from %s", *clientDir)
		}
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessions.RunReaper(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		sessions.StopAll()
		analytics.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}
}
