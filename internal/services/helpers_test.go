package services

import (
	"context"
	"fleet-route-engine/internal/adapters/routing"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
	"fleet-route-engine/internal/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const depot = "1 Depot Way, Newark, NJ"

var routeDate = time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

func newStop(id string, pos int) domain.Stop {
	return domain.Stop{
		ID:               id,
		CustomerID:       "cust-" + id,
		SequencePosition: pos,
		Street:           id + " Main St",
		City:             "Newark",
		State:            "NJ",
	}
}

// seedRoute stores a pending route whose stops sit at positions 1..n in the
// given order.
func seedRoute(store *testutil.MemoryStore, routeID string, stopIDs ...string) []domain.Stop {
	stops := make([]domain.Stop, 0, len(stopIDs))
	for i, id := range stopIDs {
		stops = append(stops, newStop(id, i+1))
	}
	store.Seed(domain.Route{ID: routeID, Date: routeDate, Status: domain.RouteStatusPending}, stops...)
	return stops
}

func newDeps(store ports.Store, provider ports.RoutingProvider) Deps {
	return Deps{
		Store:            store,
		Provider:         provider,
		BaseLocation:     depot,
		WriteConcurrency: 4,
	}
}

func listStops(t *testing.T, store ports.Store, routeID string) []domain.Stop {
	t.Helper()
	stops, err := store.ListStops(context.Background(), routeID)
	require.NoError(t, err)
	return stops
}

func positionsByID(t *testing.T, store ports.Store, routeID string) map[string]int {
	t.Helper()
	out := make(map[string]int)
	for _, s := range listStops(t, store, routeID) {
		out[s.ID] = s.SequencePosition
	}
	return out
}

func customers(stops []domain.Stop) []string {
	out := make([]string, 0, len(stops))
	for _, s := range stops {
		out = append(out, s.CustomerID)
	}
	return out
}

// reverseOrder visits waypoints back to front with 1 km / 60 s legs.
func reverseOrder(req ports.DirectionsRequest) (ports.DirectionsResponse, error) {
	n := len(req.Waypoints)
	resp := ports.DirectionsResponse{}
	for i := 0; i < n; i++ {
		resp.WaypointOrder = append(resp.WaypointOrder, n-1-i)
	}
	for i := 0; i <= n; i++ {
		resp.Legs = append(resp.Legs, ports.Leg{DistanceMeters: 1000, DurationSeconds: 60})
	}
	return resp, nil
}

func newStub() *routing.StubProvider {
	return routing.NewStubProvider()
}
