package main

import (
	"context"
	"log"

	"github.com/robertarktes/showtime-reservations/internal/app"
	"github.com/robertarktes/showtime-reservations/internal/catalog"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/config"
	"github.com/robertarktes/showtime-reservations/internal/observability"
)

// seed copies the shows in SHOWS_FILE into the MongoDB catalog.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.MongoURI == "" || cfg.ShowsFile == "" {
		log.Fatalf("seed needs MONGO_URI and SHOWS_FILE")
	}
	ctx := context.Background()
	logger := observability.NewLoggerWithLevel(cfg.LogLevel)

	shows, err := catalog.LoadFile(cfg.ShowsFile)
	if err != nil {
		log.Fatalf("failed to load shows: %v", err)
	}
	infra, err := app.Open(ctx, cfg, clock.Real{}, logger)
	if err != nil {
		log.Fatalf("failed to open infrastructure: %v", err)
	}
	defer infra.Close()

	for _, s := range shows {
		if err := infra.MongoCatalog.CreateShow(ctx, s); err != nil {
			log.Fatalf("failed to seed show %s: %v", s.ID, err)
		}
		logger.WithFields(map[string]interface{}{"show_id": s.ID, "title": s.Title}).Info("show seeded")
	}
	logger.WithField("count", len(shows)).Info("seeding completed")
}
