package ports

import (
	"context"
	"errors"
	"fleet-route-engine/internal/domain"
)

// ErrNotFound is returned when a requested route or stop does not exist.
var ErrNotFound = errors.New("not found")

// Port: persistence boundary for routes.
type RouteRepository interface {
	GetRoute(ctx context.Context, routeID string) (*domain.Route, error)
	CreateRoute(ctx context.Context, r *domain.Route) error
	UpdateRouteStatus(ctx context.Context, routeID string, status domain.RouteStatus) error
}

// Port: persistence boundary for stops. Every write is an idempotent
// single-row operation so batches of them can be issued concurrently.
type StopRepository interface {
	// Stops of a route ordered by sequence position.
	ListStops(ctx context.Context, routeID string) ([]domain.Stop, error)
	UpdateStopPosition(ctx context.Context, stopID string, position int) error
	UpdateStopPriority(ctx context.Context, stopID string, priority domain.PriorityTier) error
	// Reassign a stop to another route at the given position.
	MoveStop(ctx context.Context, stopID, routeID string, position int) error
	InsertStop(ctx context.Context, s *domain.Stop) error
	DeleteStop(ctx context.Context, stopID string) error
}

// Placement is the target sequence position of one stop.
type Placement struct {
	StopID   string
	Position int
}

// Optional extension of StopRepository for storage that can reorder a route's
// stops in a single atomic unit.
type StopReorderer interface {
	ReorderStops(ctx context.Context, routeID string, placements []Placement) error
}

// Store bundles both repositories.
type Store interface {
	RouteRepository
	StopRepository
}
