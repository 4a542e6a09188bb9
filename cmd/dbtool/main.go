package main

import (
	"context"
	"database/sql"
	"fleet-route-engine/internal/adapters/cache"
	"fleet-route-engine/internal/adapters/repositories"
	"fleet-route-engine/internal/config"
	"fleet-route-engine/internal/platform/db"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// dbtool creates the schema and loads seed routes.
//
//	dbtool          init and seed
//	dbtool init     schema only
//	dbtool seed     seed routes that do not exist yet
//	dbtool reseed   replace seeded routes and their stops
//	dbtool purge    drop geocode cache entries older than GEOCODE_CACHE_TTL
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cmd := "all"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if cmd != "all" && cmd != "init" && cmd != "seed" && cmd != "reseed" && cmd != "purge" {
		log.Fatalf("unknown command %q (want init, seed, reseed or purge)", cmd)
	}

	conn, err := open()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	ctx := context.Background()

	if cmd == "all" || cmd == "init" {
		log.Println("Initializing database schema...")
		if err := repositories.InitSchema(ctx, conn); err != nil {
			log.Fatalf("schema initialization failed: %v", err)
		}
		log.Println("Schema ready.")
	}

	seedPath := config.Get("SEED_PATH", "data/seeds/routes.json")
	switch cmd {
	case "all", "seed":
		log.Printf("Seeding database from %s...", seedPath)
		if err := repositories.SeedFromJSON(ctx, conn, seedPath); err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
		log.Println("Seeding complete.")
	case "reseed":
		log.Printf("Replacing seeded routes from %s...", seedPath)
		if err := repositories.ReseedFromJSON(ctx, conn, seedPath); err != nil {
			log.Fatalf("reseeding failed: %v", err)
		}
		log.Println("Reseeding complete.")
	case "purge":
		ttl, err := time.ParseDuration(config.Get("GEOCODE_CACHE_TTL", "720h"))
		if err != nil {
			log.Fatalf("GEOCODE_CACHE_TTL: %v", err)
		}
		n, err := cache.NewGeocodeCache(conn, ttl).Purge(ctx)
		if err != nil {
			log.Fatalf("purge failed: %v", err)
		}
		log.Printf("Purged %d geocode cache entries older than %s.", n, ttl)
	}
}

// open prefers Postgres (DATABASE_URL) and falls back to the SQLite file.
func open() (*sql.DB, error) {
	if databaseURL := config.Get("DATABASE_URL", ""); databaseURL != "" {
		return db.Open(databaseURL)
	}
	return db.OpenSQLite(config.Get("DB_PATH", "data/app.db"))
}
