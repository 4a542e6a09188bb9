package main

import (
	"context"
	"database/sql"
	"fleet-route-engine/internal/adapters/cache"
	"fleet-route-engine/internal/adapters/locks"
	"fleet-route-engine/internal/adapters/repositories"
	"fleet-route-engine/internal/adapters/routing"
	"fleet-route-engine/internal/api"
	"fleet-route-engine/internal/config"
	"fleet-route-engine/internal/platform/db"
	"fleet-route-engine/internal/ports"
	"fleet-route-engine/internal/services"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// main is the application composition root.
// It wires concrete adapters (SQL, routing provider, route leases) behind ports
// and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	conn, err := openDatabase(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	provider, err := newProvider(cfg, conn)
	if err != nil {
		log.Fatal(err)
	}

	locker, err := newLocker(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	repo := repositories.NewSQLRouteRepository(conn)
	engine := services.NewEngine(services.Deps{
		Store:            repo,
		Provider:         provider,
		Locker:           locker,
		BaseLocation:     cfg.BaseLocation,
		WriteConcurrency: cfg.WriteConcurrency,
	})
	router := api.NewRouter(repo, engine)

	// Timeouts leave room for a split that re-optimizes several groups
	// against the external provider.
	log.Printf("Server listening addr=:%s provider=%s", cfg.Port, cfg.RoutingProvider)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

// openDatabase connects to Postgres when DATABASE_URL is set. Otherwise it
// opens the SQLite file and initializes and seeds it for local runs. Seeding
// only adds missing routes, so state survives restarts.
func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.DatabaseURL != "" {
		return db.Open(cfg.DatabaseURL)
	}

	conn, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	if err := initAndSeed(ctx, conn, cfg.SeedPath); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func initAndSeed(ctx context.Context, conn *sql.DB, seedPath string) error {
	if err := repositories.InitSchema(ctx, conn); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}

	if err := repositories.SeedFromJSON(ctx, conn, seedPath); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}

	return nil
}

func newProvider(cfg config.Config, conn *sql.DB) (ports.RoutingProvider, error) {
	switch cfg.RoutingProvider {
	case "google":
		return routing.NewGoogleProvider(cfg.GoogleMapsAPIKey, cfg.ProviderTimeout)
	case "ors":
		// ORS geocodes every address; the SQL cache avoids repeated lookups.
		return routing.NewORSProvider(cfg.ORSAPIKey, cfg.ProviderTimeout, cache.NewGeocodeCache(conn, cfg.GeocodeCacheTTL))
	case "stub":
		log.Println("Using stub routing provider (waypoints keep their order)")
		return routing.NewStubProvider(), nil
	}
	return nil, fmt.Errorf("unknown routing provider %q", cfg.RoutingProvider)
}

// newLocker leases routes in Redis when REDIS_URL is set, so several server
// instances can share a database. Without it leases are process-local.
func newLocker(ctx context.Context, cfg config.Config) (ports.RouteLocker, error) {
	if cfg.RedisURL == "" {
		log.Println("REDIS_URL not set, using in-process route leases")
		return locks.NewLocalLocker(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return locks.NewRedisLocker(client, cfg.RouteLockTTL)
}
