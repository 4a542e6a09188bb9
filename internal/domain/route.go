package domain

import "time"

type RouteStatus string

const (
	RouteStatusDraft      RouteStatus = "draft"
	RouteStatusPending    RouteStatus = "pending"
	RouteStatusInProgress RouteStatus = "in_progress"
	RouteStatusCompleted  RouteStatus = "completed"
	RouteStatusMerged     RouteStatus = "merged"
	RouteStatusSplit      RouteStatus = "split"
)

func (s RouteStatus) Valid() bool {
	switch s {
	case RouteStatusDraft, RouteStatusPending, RouteStatusInProgress,
		RouteStatusCompleted, RouteStatusMerged, RouteStatusSplit:
		return true
	}
	return false
}

// Terminal reports whether the route has given up ownership of its stops.
// Merged and split routes are kept for history only.
func (s RouteStatus) Terminal() bool {
	return s == RouteStatusMerged || s == RouteStatusSplit
}

// Route is a dispatchable sequence of stops for one driver/vehicle pair.
// DriverID and VehicleID are nil until the route is dispatched.
type Route struct {
	ID        string
	DriverID  *string
	VehicleID *string
	Date      time.Time
	Status    RouteStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DateLayout is the storage and wire format of Route.Date.
const DateLayout = "2006-01-02"
