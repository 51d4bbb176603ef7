// tenderwatch-alert-service
//
// Alert matching & deduplication engine for public-tender listings:
//   - twice-daily digest pass: evaluate active alerts over the recent
//     listing window, record detections idempotently, send one
//     consolidated email per owner
//   - manual collection sessions: per-data-source progress tracking with
//     duplicate-checked listing entry
//
// Publishes EVENT_DETECTION_CREATED and EVENT_SESSION_COMPLETED to Redis
// for the gateway's SSE forward.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenderwatch/alert-service/internal/alert"
	"tenderwatch/alert-service/internal/api"
	"tenderwatch/alert-service/internal/collect"
	"tenderwatch/alert-service/internal/config"
	"tenderwatch/alert-service/internal/db"
	"tenderwatch/alert-service/internal/detection"
	"tenderwatch/alert-service/internal/digest"
	"tenderwatch/alert-service/internal/feed"
	"tenderwatch/alert-service/internal/scoring"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[alert-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[alert-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[alert-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[alert-service] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[alert-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[alert-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[alert-service] Redis connected ✓")

	// ── Engine wiring ────────────────────────────────────────────────────────
	listings := feed.NewPGProvider(pool)
	alerts := alert.NewService(pool)
	detections := detection.NewStore(pool, rdb)
	sessions := collect.NewService(pool, rdb, listings)
	scorer := scoring.NewClient(cfg.ScoringAPIURL, cfg.ScoringTimeout)

	runner := digest.NewRunner(alerts, listings, detections,
		digest.LogMailer{}, digest.NewPGHistory(pool), cfg.MatchWindow)
	scheduler := digest.NewScheduler(rdb, runner, cfg.DigestCron)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("[alert-service] Scheduler: %v", err)
	}
	defer scheduler.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	api.NewAlertHandler(alerts).RegisterRoutes(mux)
	api.NewDetectionHandler(detections, scorer).RegisterRoutes(mux)
	api.NewSessionHandler(sessions).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[alert-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[alert-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[alert-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[alert-service] Shutdown error: %v", err)
	}
	log.Println("[alert-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "alert-service",
		"version": version,
	})
}
