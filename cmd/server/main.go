package main // Entry point package

import (
	"context" // Context for the reaper lifetime
	"log"     // Logging library

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/adityamehta/reservation-inventory/internal/cache"       // Inventory snapshot cache
	"github.com/adityamehta/reservation-inventory/internal/config"      // Internal config loader
	"github.com/adityamehta/reservation-inventory/internal/database"    // MySQL connection pool
	"github.com/adityamehta/reservation-inventory/internal/handler"     // HTTP handlers
	"github.com/adityamehta/reservation-inventory/internal/idempotency" // Request deduplication
	"github.com/adityamehta/reservation-inventory/internal/inventory"   // Inventory state machine
	"github.com/adityamehta/reservation-inventory/internal/kv"          // Key-value store abstraction
	"github.com/adityamehta/reservation-inventory/internal/lock"        // Distributed per-SKU locks
	"github.com/adityamehta/reservation-inventory/internal/queue"       // RabbitMQ event publisher
	"github.com/adityamehta/reservation-inventory/internal/repository"  // DB repositories
	"github.com/adityamehta/reservation-inventory/internal/router"      // Internal router setup
	"github.com/adityamehta/reservation-inventory/internal/service"     // Reservation lifecycle
)

func main() {
	_ = godotenv.Load() // Load .env when present; real env always wins
	cfg := config.Load()

	// MySQL holds the durable state: products, reservations, customers.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs locks, idempotency and snapshots.  When it is not
	// reachable the process falls back to an in-memory store: correct on
	// a single node, degraded in a multi-node deployment.
	var store kv.Store
	if rdb := config.NewRedisClient(); rdb != nil {
		store = kv.NewRedisStore(rdb)
		log.Printf("redis connected")
	} else {
		store = kv.NewMemoryStore()
		log.Printf("redis unavailable, using in-process store")
	}

	products := repository.NewProductRepo(db)
	reservations := repository.NewReservationRepo(db)
	customers := repository.NewCustomerRepo(db)

	locks := lock.NewWithOptions(store, cfg.LockTTL, cfg.LockPollInterval, cfg.LockMaxAttempts)
	snapshots := cache.NewInventoryCache(store, cache.DefaultTTL)
	inv := inventory.NewService(products, locks, snapshots)

	coordinator := idempotency.NewCoordinator(store, idempotency.Config{})
	publisher := queue.NewPublisher(cfg.AMQPURL)
	lifecycle := service.NewReservationService(reservations, customers, inv, coordinator, publisher, cfg.ReservationTTL)

	// Background expiry sweep returns units held by overdue PENDING
	// reservations.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go service.NewReaper(lifecycle, cfg.ReaperInterval, cfg.ReaperBatch).Run(ctx)

	// Watch the reconcile queue so partial confirm failures land in an
	// operator-visible log.
	if cfg.AMQPURL != "" {
		go func() {
			if err := queue.StartReconcileConsumer(cfg.AMQPURL); err != nil {
				log.Printf("reconcile consumer: %v", err)
			}
		}()
	}

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, customers), cfg.JWTSecret)
	router.RegisterProducts(e, handler.NewProductHandler(products, inv), cfg.JWTSecret)
	router.RegisterReservations(e, handler.NewReservationHandler(lifecycle), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
