package ports

import (
	"context"
	"errors"
)

// ErrRouteBusy is returned when another operation holds the route's lease.
var ErrRouteBusy = errors.New("route is locked by another operation")

// RouteLocker serializes engine operations per route.
type RouteLocker interface {
	// Lock acquires the lease for routeID or fails with ErrRouteBusy.
	// The returned func releases it.
	Lock(ctx context.Context, routeID string) (unlock func(), err error)
}
