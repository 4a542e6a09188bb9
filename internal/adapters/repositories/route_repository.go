package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLRouteRepository implements ports.Store and ports.StopReorderer on
// database/sql. Statements use $n placeholders and run unchanged on Postgres
// (pgx) and SQLite (modernc).
type SQLRouteRepository struct{ DB *sql.DB }

func NewSQLRouteRepository(db *sql.DB) *SQLRouteRepository {
	return &SQLRouteRepository{DB: db}
}

const timestampLayout = time.RFC3339Nano

func (s *SQLRouteRepository) GetRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	if s.DB == nil {
		return nil, errors.New("route repository: DB is nil")
	}

	query := `
	SELECT id, driver_id, vehicle_id, route_date, status, created_at, updated_at
	FROM routes
	WHERE id = $1
	`

	var (
		r                domain.Route
		driver, vehicle  sql.NullString
		date, status     string
		created, updated string
	)
	err := s.DB.QueryRowContext(ctx, query, routeID).
		Scan(&r.ID, &driver, &vehicle, &date, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get route %s: %w", routeID, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", routeID, err)
	}

	if driver.Valid {
		r.DriverID = &driver.String
	}
	if vehicle.Valid {
		r.VehicleID = &vehicle.String
	}
	r.Status = domain.RouteStatus(status)

	if r.Date, err = time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("get route %s: parse route_date: %w", routeID, err)
	}
	if r.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return nil, fmt.Errorf("get route %s: parse created_at: %w", routeID, err)
	}
	if r.UpdatedAt, err = time.Parse(timestampLayout, updated); err != nil {
		return nil, fmt.Errorf("get route %s: parse updated_at: %w", routeID, err)
	}

	return &r, nil
}

// CreateRoute inserts r, assigning an id and timestamps when they are unset.
func (s *SQLRouteRepository) CreateRoute(ctx context.Context, r *domain.Route) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if !r.Status.Valid() {
		return fmt.Errorf("create route %s: invalid status %q", r.ID, r.Status)
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := `
	INSERT INTO routes (id, driver_id, vehicle_id, route_date, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.DB.ExecContext(ctx, query,
		r.ID,
		nullable(r.DriverID),
		nullable(r.VehicleID),
		r.Date.Format(domain.DateLayout),
		string(r.Status),
		r.CreatedAt.Format(timestampLayout),
		r.UpdatedAt.Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("create route %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLRouteRepository) UpdateRouteStatus(ctx context.Context, routeID string, status domain.RouteStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update route %s: invalid status %q", routeID, status)
	}

	query := `UPDATE routes SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := s.DB.ExecContext(ctx, query, string(status), time.Now().UTC().Format(timestampLayout), routeID)
	if err != nil {
		return fmt.Errorf("update route %s status: %w", routeID, err)
	}
	return expectOne(res, "update route "+routeID+" status")
}

// ListStops returns the stops of a route ordered by sequence position.
func (s *SQLRouteRepository) ListStops(ctx context.Context, routeID string) ([]domain.Stop, error) {
	if s.DB == nil {
		return nil, errors.New("route repository: DB is nil")
	}

	query := `
	SELECT
		id,
		route_id,
		customer_id,
		sequence_position,
		priority,
		weight_kg,
		volume_m3,
		completed,
		street,
		city,
		state
	FROM stops
	WHERE route_id = $1
	ORDER BY sequence_position
	`
	rows, err := s.DB.QueryContext(ctx, query, routeID)
	if err != nil {
		return nil, fmt.Errorf("list stops: query stops table: %w", err)
	}
	defer rows.Close()

	stops := make([]domain.Stop, 0, 32)
	for rows.Next() {
		var (
			st        domain.Stop
			priority  int
			completed int
		)
		err := rows.Scan(
			&st.ID, &st.RouteID, &st.CustomerID, &st.SequencePosition, &priority,
			&st.WeightKg, &st.VolumeM3, &completed, &st.Street, &st.City, &st.State,
		)
		if err != nil {
			return nil, fmt.Errorf("list stops: scan row: %w", err)
		}
		st.Priority = domain.PriorityTier(priority)
		st.Completed = completed != 0
		stops = append(stops, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stops: row iteration: %w", err)
	}

	return stops, nil
}

func (s *SQLRouteRepository) UpdateStopPosition(ctx context.Context, stopID string, position int) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE stops SET sequence_position = $1 WHERE id = $2`, position, stopID)
	if err != nil {
		return fmt.Errorf("update stop %s position: %w", stopID, err)
	}
	return expectOne(res, "update stop "+stopID+" position")
}

func (s *SQLRouteRepository) UpdateStopPriority(ctx context.Context, stopID string, priority domain.PriorityTier) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE stops SET priority = $1 WHERE id = $2`, int(priority), stopID)
	if err != nil {
		return fmt.Errorf("update stop %s priority: %w", stopID, err)
	}
	return expectOne(res, "update stop "+stopID+" priority")
}

func (s *SQLRouteRepository) MoveStop(ctx context.Context, stopID, routeID string, position int) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE stops SET route_id = $1, sequence_position = $2 WHERE id = $3`,
		routeID, position, stopID,
	)
	if err != nil {
		return fmt.Errorf("move stop %s to route %s: %w", stopID, routeID, err)
	}
	return expectOne(res, "move stop "+stopID)
}

func (s *SQLRouteRepository) InsertStop(ctx context.Context, st *domain.Stop) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	return insertStop(ctx, s.DB, st)
}

// DeleteStop removes a stop. Deleting a missing stop is not an error.
func (s *SQLRouteRepository) DeleteStop(ctx context.Context, stopID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM stops WHERE id = $1`, stopID); err != nil {
		return fmt.Errorf("delete stop %s: %w", stopID, err)
	}
	return nil
}

// ReorderStops applies placements to a route in one transaction. Moved stops
// are parked on negative positions first so the unique (route, position)
// constraint holds after every statement.
func (s *SQLRouteRepository) ReorderStops(ctx context.Context, routeID string, placements []ports.Placement) error {
	if len(placements) == 0 {
		return nil
	}

	seen := make(map[int]struct{}, len(placements))
	for _, p := range placements {
		if p.Position < 1 {
			return fmt.Errorf("reorder stops %s: stop %s: position must be positive, got %d", routeID, p.StopID, p.Position)
		}
		if _, dup := seen[p.Position]; dup {
			return fmt.Errorf("reorder stops %s: position %d assigned twice", routeID, p.Position)
		}
		seen[p.Position] = struct{}{}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reorder stops %s: begin tx: %w", routeID, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE stops SET sequence_position = $1 WHERE id = $2 AND route_id = $3`)
	if err != nil {
		return fmt.Errorf("reorder stops %s: prepare: %w", routeID, err)
	}
	defer stmt.Close()

	for _, sign := range []int{-1, 1} {
		for _, p := range placements {
			res, err := stmt.ExecContext(ctx, sign*p.Position, p.StopID, routeID)
			if err != nil {
				return fmt.Errorf("reorder stops %s: stop %s: %w", routeID, p.StopID, err)
			}
			if err := expectOne(res, "reorder stop "+p.StopID); err != nil {
				return fmt.Errorf("reorder stops %s: %w", routeID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reorder stops %s: commit tx: %w", routeID, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertStop(ctx context.Context, db execer, st *domain.Stop) error {
	completed := 0
	if st.Completed {
		completed = 1
	}

	query := `
	INSERT INTO stops (
		id,
		route_id,
		customer_id,
		sequence_position,
		priority,
		weight_kg,
		volume_m3,
		completed,
		street,
		city,
		state
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.ExecContext(ctx, query,
		st.ID, st.RouteID, st.CustomerID, st.SequencePosition, int(st.Priority),
		st.WeightKg, st.VolumeM3, completed, st.Street, st.City, st.State,
	)
	if err != nil {
		return fmt.Errorf("insert stop %s: %w", st.ID, err)
	}
	return nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ports.ErrNotFound)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
