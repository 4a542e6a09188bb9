package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fleet-route-engine/internal/domain"
	"fmt"
	"os"
	"strings"
	"time"
)

// InitSchema creates the routes, stops and geocode_cache tables. The DDL is
// accepted by both Postgres and SQLite.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		driver_id TEXT NULL,
		vehicle_id TEXT NULL,
		route_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)
	`

	createStopsQuery := `
	CREATE TABLE IF NOT EXISTS stops (
		id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL REFERENCES routes(id),
		customer_id TEXT NOT NULL DEFAULT '',
		sequence_position INTEGER NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		weight_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume_m3 DOUBLE PRECISION NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		street TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		UNIQUE (route_id, sequence_position)
	)
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lon DOUBLE PRECISION NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		geocoded_at TEXT NOT NULL
	)
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_routes_status
	ON routes(status)
	`

	statements := []string{
		createRoutesQuery,
		createStopsQuery,
		createGeocodeCacheQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type StopSeed struct {
	ID         string  `json:"id"`
	CustomerID string  `json:"customer_id"`
	Priority   string  `json:"priority"`
	WeightKg   float64 `json:"weight_kg"`
	VolumeM3   float64 `json:"volume_m3"`
	Completed  bool    `json:"completed"`
	Street     string  `json:"street"`
	City       string  `json:"city"`
	State      string  `json:"state"`
}

type RouteSeed struct {
	ID        string     `json:"id"`
	DriverID  *string    `json:"driver_id"`
	VehicleID *string    `json:"vehicle_id"`
	Date      string     `json:"date"`
	Status    string     `json:"status"`
	Stops     []StopSeed `json:"stops"`
}

// SeedFromJSON loads routes and their stops from a JSON array. Stops are
// numbered by their order in the file. Routes that already exist are left
// alone along with their stops, so seeding a live database is safe.
func SeedFromJSON(ctx context.Context, db *sql.DB, jsonPath string) error {
	return seed(ctx, db, jsonPath, false)
}

// ReseedFromJSON is SeedFromJSON for fixtures: every seeded route is deleted
// and inserted again with its stops, discarding optimize, split and merge
// results. Stops moved to other routes by a merge are deleted as well.
func ReseedFromJSON(ctx context.Context, db *sql.DB, jsonPath string) error {
	return seed(ctx, db, jsonPath, true)
}

func seed(ctx context.Context, db *sql.DB, jsonPath string, replace bool) error {
	if db == nil {
		return errors.New("seed routes: DB is nil")
	}

	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed routes: read %q: %w", jsonPath, err)
	}

	var data []RouteSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed routes: parse json: %w", err)
	}

	routes := make([]domain.Route, 0, len(data))
	stops := make([][]domain.Stop, 0, len(data))
	for i, item := range data {
		r, rs, err := item.toDomain()
		if err != nil {
			return fmt.Errorf("seed routes: item %d: %w", i+1, err)
		}
		routes = append(routes, r)
		stops = append(stops, rs)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed routes: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timestampLayout)
	for i, r := range routes {
		if replace {
			if _, err := tx.ExecContext(ctx, `DELETE FROM stops WHERE route_id = $1`, r.ID); err != nil {
				return fmt.Errorf("seed routes: clear stops of %s: %w", r.ID, err)
			}
			for _, st := range stops[i] {
				if _, err := tx.ExecContext(ctx, `DELETE FROM stops WHERE id = $1`, st.ID); err != nil {
					return fmt.Errorf("seed routes: clear stop %s: %w", st.ID, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE id = $1`, r.ID); err != nil {
				return fmt.Errorf("seed routes: clear route %s: %w", r.ID, err)
			}
		}

		res, err := tx.ExecContext(ctx, `
		INSERT INTO routes (id, driver_id, vehicle_id, route_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO NOTHING
		`, r.ID, nullable(r.DriverID), nullable(r.VehicleID), r.Date.Format(domain.DateLayout), string(r.Status), now)
		if err != nil {
			return fmt.Errorf("seed routes: insert route %s: %w", r.ID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("seed routes: insert route %s: rows affected: %w", r.ID, err)
		}
		if n == 0 {
			// Already seeded; its stops may have been reordered, split or merged since.
			continue
		}

		for j := range stops[i] {
			if err := insertStop(ctx, tx, &stops[i][j]); err != nil {
				return fmt.Errorf("seed routes: route %s: %w", r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed routes: commit tx: %w", err)
	}

	return nil
}

func (rs RouteSeed) toDomain() (domain.Route, []domain.Stop, error) {
	id := strings.TrimSpace(rs.ID)
	if id == "" {
		return domain.Route{}, nil, errors.New("route id cannot be empty")
	}

	date, err := time.Parse(domain.DateLayout, rs.Date)
	if err != nil {
		return domain.Route{}, nil, fmt.Errorf("route %s: parse date: %w", id, err)
	}

	status := domain.RouteStatus(rs.Status)
	if rs.Status == "" {
		status = domain.RouteStatusPending
	}
	if !status.Valid() {
		return domain.Route{}, nil, fmt.Errorf("route %s: invalid status %q", id, rs.Status)
	}

	route := domain.Route{ID: id, DriverID: rs.DriverID, VehicleID: rs.VehicleID, Date: date, Status: status}

	stops := make([]domain.Stop, 0, len(rs.Stops))
	for i, s := range rs.Stops {
		sid := strings.TrimSpace(s.ID)
		if sid == "" {
			return domain.Route{}, nil, fmt.Errorf("route %s: stop %d: id cannot be empty", id, i+1)
		}
		tier, err := domain.ParsePriorityTier(s.Priority)
		if err != nil {
			return domain.Route{}, nil, fmt.Errorf("route %s: stop %s: %w", id, sid, err)
		}
		stops = append(stops, domain.Stop{
			ID:               sid,
			RouteID:          id,
			CustomerID:       s.CustomerID,
			SequencePosition: i + 1,
			Priority:         tier,
			WeightKg:         s.WeightKg,
			VolumeM3:         s.VolumeM3,
			Completed:        s.Completed,
			Street:           s.Street,
			City:             s.City,
			State:            s.State,
		})
	}

	return route, stops, nil
}
