package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/platform/db"
	"fleet-route-engine/internal/ports"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `[
  {
    "id": "r1",
    "driver_id": "d1",
    "vehicle_id": "v1",
    "date": "2026-10-20",
    "stops": [
      {"id": "s1", "customer_id": "c1", "priority": "urgent", "weight_kg": 10, "street": "1 A St", "city": "Newark", "state": "NJ"},
      {"id": "s2", "customer_id": "c2", "weight_kg": 20, "completed": true, "street": "2 B St", "city": "Newark", "state": "NJ"},
      {"id": "s3", "customer_id": "c3", "priority": "low", "weight_kg": 30, "street": "3 C St", "city": "Newark", "state": "NJ"}
    ]
  },
  {"id": "r2", "date": "2026-10-21", "status": "draft", "stops": []}
]`

func newTestRepo(t *testing.T) (*SQLRouteRepository, *sql.DB) {
	t.Helper()

	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx := context.Background()
	require.NoError(t, InitSchema(ctx, conn))

	require.NoError(t, SeedFromJSON(ctx, conn, writeSeedFile(t)))

	return NewSQLRouteRepository(conn), conn
}

func stopIDs(stops []domain.Stop) []string {
	out := make([]string, 0, len(stops))
	for _, s := range stops {
		out = append(out, s.ID)
	}
	return out
}

func TestSeedAndRead(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	r, err := repo.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RouteStatusPending, r.Status)
	require.NotNil(t, r.DriverID)
	assert.Equal(t, "d1", *r.DriverID)
	assert.Equal(t, "2026-10-20", r.Date.Format(domain.DateLayout))

	draft, err := repo.GetRoute(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, draft.DriverID)
	assert.Equal(t, domain.RouteStatusDraft, draft.Status)

	stops, err := repo.ListStops(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, stopIDs(stops))
	assert.Equal(t, domain.PriorityUrgent, stops[0].Priority)
	assert.True(t, stops[1].Completed)
	assert.Equal(t, 3, stops[2].SequencePosition)
	assert.Equal(t, "3 C St, Newark, NJ", stops[2].Address())
}

func writeSeedFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "routes.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))
	return path
}

func TestSeedKeepsMergedRoutes(t *testing.T) {
	repo, conn := newTestRepo(t)
	ctx := context.Background()

	// r1's stops now live on r2 and r1 is retired.
	require.NoError(t, repo.MoveStop(ctx, "s1", "r2", 1))
	require.NoError(t, repo.MoveStop(ctx, "s2", "r2", 2))
	require.NoError(t, repo.MoveStop(ctx, "s3", "r2", 3))
	require.NoError(t, repo.UpdateRouteStatus(ctx, "r1", domain.RouteStatusMerged))

	require.NoError(t, SeedFromJSON(ctx, conn, writeSeedFile(t)))

	r1, err := repo.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RouteStatusMerged, r1.Status)

	r1Stops, err := repo.ListStops(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, r1Stops)

	r2Stops, err := repo.ListStops(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, stopIDs(r2Stops))
}

func TestSeedKeepsSplitRoutes(t *testing.T) {
	repo, conn := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, repo.DeleteStop(ctx, id))
	}
	require.NoError(t, repo.UpdateRouteStatus(ctx, "r1", domain.RouteStatusSplit))

	require.NoError(t, SeedFromJSON(ctx, conn, writeSeedFile(t)))

	r1, err := repo.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RouteStatusSplit, r1.Status)

	stops, err := repo.ListStops(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, stops)
}

func TestSeedAddsMissingRoutes(t *testing.T) {
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx := context.Background()
	require.NoError(t, InitSchema(ctx, conn))
	path := writeSeedFile(t)
	require.NoError(t, SeedFromJSON(ctx, conn, path))
	require.NoError(t, SeedFromJSON(ctx, conn, path))

	stops, err := NewSQLRouteRepository(conn).ListStops(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, stopIDs(stops))
}

func TestReseedReplacesSeededRoutes(t *testing.T) {
	repo, conn := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.MoveStop(ctx, "s1", "r2", 1))
	require.NoError(t, repo.UpdateRouteStatus(ctx, "r1", domain.RouteStatusMerged))

	require.NoError(t, ReseedFromJSON(ctx, conn, writeSeedFile(t)))

	r1, err := repo.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RouteStatusPending, r1.Status)

	r1Stops, err := repo.ListStops(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, stopIDs(r1Stops))

	r2Stops, err := repo.ListStops(ctx, "r2")
	require.NoError(t, err)
	assert.Empty(t, r2Stops)
}

func TestGetRouteNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.GetRoute(context.Background(), "missing")
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestCreateRouteAndUpdateStatus(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	driver := "d9"
	r := &domain.Route{DriverID: &driver, Date: time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC), Status: domain.RouteStatusPending}
	require.NoError(t, repo.CreateRoute(ctx, r))
	require.NotEmpty(t, r.ID)

	require.NoError(t, repo.UpdateRouteStatus(ctx, r.ID, domain.RouteStatusSplit))

	got, err := repo.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteStatusSplit, got.Status)
	assert.Nil(t, got.VehicleID)

	err = repo.UpdateRouteStatus(ctx, "missing", domain.RouteStatusMerged)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestUniquePositionIsEnforced(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.UpdateStopPosition(context.Background(), "s1", 2)
	assert.Error(t, err)
}

func TestReorderStops(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	err := repo.ReorderStops(ctx, "r1", []ports.Placement{
		{StopID: "s3", Position: 1},
		{StopID: "s1", Position: 3},
	})
	require.NoError(t, err)

	stops, err := repo.ListStops(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s2", "s1"}, stopIDs(stops))
}

func TestReorderStopsRollsBack(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	err := repo.ReorderStops(ctx, "r1", []ports.Placement{
		{StopID: "s3", Position: 1},
		{StopID: "other-route-stop", Position: 3},
	})
	require.ErrorIs(t, err, ports.ErrNotFound)

	stops, err := repo.ListStops(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, stopIDs(stops))
	assert.Equal(t, 1, stops[0].SequencePosition)
}

func TestReorderStopsRejectsDuplicatePositions(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.ReorderStops(context.Background(), "r1", []ports.Placement{
		{StopID: "s1", Position: 2},
		{StopID: "s3", Position: 2},
	})
	assert.Error(t, err)
}

func TestStopWrites(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpdateStopPriority(ctx, "s3", domain.PriorityHigh))
	require.NoError(t, repo.MoveStop(ctx, "s2", "r2", 1))

	st := &domain.Stop{RouteID: "r2", SequencePosition: 2, Street: "9 Z St", WeightKg: 1.5}
	require.NoError(t, repo.InsertStop(ctx, st))
	require.NotEmpty(t, st.ID)

	r2, err := repo.ListStops(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", st.ID}, stopIDs(r2))
	assert.Equal(t, "r2", r2[0].RouteID)

	require.NoError(t, repo.DeleteStop(ctx, st.ID))
	require.NoError(t, repo.DeleteStop(ctx, st.ID))

	r1, err := repo.ListStops(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, stopIDs(r1))
	assert.Equal(t, domain.PriorityHigh, r1[1].Priority)

	assert.ErrorIs(t, repo.UpdateStopPosition(ctx, "missing", 9), ports.ErrNotFound)
}
