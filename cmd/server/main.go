package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/resotel/tariff-conventions/internal/config"
	"github.com/resotel/tariff-conventions/internal/database"
	"github.com/resotel/tariff-conventions/internal/engine"
	"github.com/resotel/tariff-conventions/internal/handler"
	"github.com/resotel/tariff-conventions/internal/middleware"
	"github.com/resotel/tariff-conventions/internal/queue"
	"github.com/resotel/tariff-conventions/internal/repository"
	"github.com/resotel/tariff-conventions/internal/router"
)

func main() {
	// Load a local .env when present; real deployments set the
	// environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs the response cache and the rate limiter.  A nil
	// client disables both and the service keeps running.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; response cache and rate limiting disabled")
	}

	repo := repository.NewConventionRepo(db)
	resolver := engine.NewResolver(repo)
	orchestrator := engine.NewOrchestrator(repo)

	pricingHandler := handler.NewPricingHandler(resolver)
	conventionHandler := handler.NewConventionHandler(orchestrator, repo)

	e := echo.New()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterPricing(e, pricingHandler, conventionHandler, rdb)
	router.RegisterAdmin(e, conventionHandler, cfg.JWTSecret)

	// Audit consumer appends every convention change to
	// logs/conventions.log; it reconnects on its own and never brings
	// the server down.
	go func() {
		if err := queue.StartConventionConsumer(); err != nil {
			log.Printf("convention consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
