package services

import (
	"context"
	"errors"
	"fleet-route-engine/internal/adapters/locks"
	"fleet-route-engine/internal/adapters/routing"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
	"fleet-route-engine/internal/testutil"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSplitter(store ports.Store, provider ports.RoutingProvider) *RouteSplitter {
	d := newDeps(store, provider)
	return NewRouteSplitter(d, NewRouteOptimizer(d))
}

func splitRequest(strategy domain.SplitStrategy, groups int) SplitRequest {
	req := SplitRequest{RouteID: "r1", Strategy: strategy, GroupCount: groups, SkipOptimize: true}
	for i := 0; i < groups; i++ {
		req.DriverIDs = append(req.DriverIDs, fmt.Sprintf("d%d", i+1))
		req.VehicleIDs = append(req.VehicleIDs, fmt.Sprintf("v%d", i+1))
	}
	return req
}

// assertSplitRoute checks a created route and returns its stops.
func assertSplitRoute(t *testing.T, store *testutil.MemoryStore, routeID, driver, vehicle string) []domain.Stop {
	t.Helper()

	r, ok := store.Route(routeID)
	require.True(t, ok, "route %s exists", routeID)
	assert.Equal(t, domain.RouteStatusPending, r.Status)
	require.NotNil(t, r.DriverID)
	require.NotNil(t, r.VehicleID)
	assert.Equal(t, driver, *r.DriverID)
	assert.Equal(t, vehicle, *r.VehicleID)
	assert.True(t, routeDate.Equal(r.Date))

	stops := listStops(t, store, routeID)
	for i, s := range stops {
		assert.Equal(t, i+1, s.SequencePosition)
		assert.Equal(t, routeID, s.RouteID)
	}
	return stops
}

func assertSourceRetired(t *testing.T, store *testutil.MemoryStore) {
	t.Helper()
	r, ok := store.Route("r1")
	require.True(t, ok)
	assert.Equal(t, domain.RouteStatusSplit, r.Status)
}

func TestSplitByStops(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4", "s5")

	res, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(domain.SplitByStops, 2))
	require.NoError(t, err)

	assert.Equal(t, domain.SplitByStops, res.Strategy)
	require.Len(t, res.NewRouteIDs, 2)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, 3, res.Groups[0].StopCount())
	assert.Equal(t, 2, res.Groups[1].StopCount())

	g0 := assertSplitRoute(t, store, res.NewRouteIDs[0], "d1", "v1")
	g1 := assertSplitRoute(t, store, res.NewRouteIDs[1], "d2", "v2")
	assert.Equal(t, []string{"cust-s1", "cust-s2", "cust-s3"}, customers(g0))
	assert.Equal(t, []string{"cust-s4", "cust-s5"}, customers(g1))

	for _, s := range append(g0, g1...) {
		assert.NotContains(t, []string{"s1", "s2", "s3", "s4", "s5"}, s.ID, "copies get fresh ids")
	}

	assertSourceRetired(t, store)
	assert.Empty(t, listStops(t, store, "r1"))
}

func TestSplitDropsEmptyGroups(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	res, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(domain.SplitByStops, 3))
	require.NoError(t, err)

	require.Len(t, res.NewRouteIDs, 2)
	assert.Equal(t, 0, res.Groups[0].Index)
	assert.Equal(t, 1, res.Groups[1].Index)
}

func TestSplitByTimeSplitsLikeStops(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3")

	res, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(domain.SplitByTime, 2))
	require.NoError(t, err)

	assert.Equal(t, domain.SplitByTime, res.Strategy)
	assert.Equal(t, []int{2, 1}, []int{res.Groups[0].StopCount(), res.Groups[1].StopCount()})
}

func TestSplitByCapacity(t *testing.T) {
	store := testutil.NewMemoryStore()
	stops := []domain.Stop{newStop("s1", 1), newStop("s2", 2), newStop("s3", 3)}
	stops[0].WeightKg, stops[1].WeightKg, stops[2].WeightKg = 10, 20, 20
	store.Seed(domain.Route{ID: "r1", Date: routeDate}, stops...)

	res, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(domain.SplitByCapacity, 2))
	require.NoError(t, err)

	assert.Equal(t, domain.SplitByCapacity, res.Strategy)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, 30.0, res.Groups[0].TotalWeightKg)
	assert.Equal(t, 20.0, res.Groups[1].TotalWeightKg)

	g0 := assertSplitRoute(t, store, res.NewRouteIDs[0], "d1", "v1")
	assert.Equal(t, []string{"cust-s1", "cust-s2"}, customers(g0))
}

func TestSplitByCapacityFiveEqualStops(t *testing.T) {
	store := testutil.NewMemoryStore()
	stops := seedRoute(store, "r1", "s1", "s2", "s3", "s4", "s5")
	for i := range stops {
		stops[i].WeightKg = 10
	}
	store.Seed(domain.Route{ID: "r1", Date: routeDate, Status: domain.RouteStatusPending}, stops...)

	res, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(domain.SplitByCapacity, 2))
	require.NoError(t, err)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, []int{3, 2}, []int{res.Groups[0].StopCount(), res.Groups[1].StopCount()})
	assert.Equal(t, []float64{30, 20}, []float64{res.Groups[0].TotalWeightKg, res.Groups[1].TotalWeightKg})

	g0 := assertSplitRoute(t, store, res.NewRouteIDs[0], "d1", "v1")
	g1 := assertSplitRoute(t, store, res.NewRouteIDs[1], "d2", "v2")
	assert.Equal(t, []string{"cust-s1", "cust-s2", "cust-s3"}, customers(g0))
	assert.Equal(t, []string{"cust-s4", "cust-s5"}, customers(g1))
	assertSourceRetired(t, store)
}

func TestSplitByCapacityWithoutWeights(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	res, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(domain.SplitByCapacity, 2))
	require.NoError(t, err)

	assert.Equal(t, domain.SplitByStops, res.Strategy)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "total weight is zero")
}

func TestSplitByDistance(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	stub := newStub()
	stub.Respond = routing.FixedResponse([]int{0, 1, 2, 3}, []int{2000, 2000, 3000, 2000, 3000}, nil)

	res, err := newSplitter(store, stub).Split(context.Background(), splitRequest(domain.SplitByDistance, 2))
	require.NoError(t, err)

	assert.Equal(t, domain.SplitByDistance, res.Strategy)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, []string{"s1", "s2"}, ids(res.Groups[0].Stops))
	assert.Equal(t, []string{"s3", "s4"}, ids(res.Groups[1].Stops))
	assert.True(t, res.Groups[0].HasEstimatedDistance)
	assert.Equal(t, 4.0, res.Groups[0].EstimatedDistanceKm)
	assert.Equal(t, 8.0, res.Groups[1].EstimatedDistanceKm)
	assert.Empty(t, res.Warnings)
}

func TestSplitByDistanceMeasuresStoredOrderWhenSkippingOptimize(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	stub := newStub()
	stub.Respond = reverseOrder

	res, err := newSplitter(store, stub).Split(context.Background(), splitRequest(domain.SplitByDistance, 2))
	require.NoError(t, err)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].OptimizeWaypoints)

	// The provider's reversal is not applied to a fixed-order request.
	assert.Equal(t, domain.SplitByDistance, res.Strategy)
	assert.Equal(t, []string{"s1", "s2"}, ids(res.Groups[0].Stops))
	assert.Equal(t, []string{"s3", "s4"}, ids(res.Groups[1].Stops))
}

func TestSplitByDistanceOptimizesItinerary(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	stub := newStub()
	req := splitRequest(domain.SplitByDistance, 2)
	req.SkipOptimize = false

	res, err := newSplitter(store, stub).Split(context.Background(), req)
	require.NoError(t, err)

	calls := stub.Calls()
	require.Len(t, calls, 2, "optimize first, then the distance itinerary")
	for _, c := range calls {
		assert.True(t, c.OptimizeWaypoints)
	}
	assert.Len(t, res.Groups, 2)
}

func TestSplitByDistanceFallsBackToProximity(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	stub := newStub()
	stub.Respond = func(req ports.DirectionsRequest) (ports.DirectionsResponse, error) {
		if len(req.Waypoints) == 4 {
			return ports.DirectionsResponse{}, errors.New("ZERO_RESULTS")
		}
		return reverseOrder(req)
	}

	res, err := newSplitter(store, stub).Split(context.Background(), splitRequest(domain.SplitByDistance, 2))
	require.NoError(t, err)

	assert.Equal(t, domain.SplitByProximity, res.Strategy)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "falling back to proximity")

	g0 := assertSplitRoute(t, store, res.NewRouteIDs[0], "d1", "v1")
	g1 := assertSplitRoute(t, store, res.NewRouteIDs[1], "d2", "v2")
	assert.Equal(t, []string{"cust-s2", "cust-s1"}, customers(g0))
	assert.Equal(t, []string{"cust-s4", "cust-s3"}, customers(g1))
}

func TestSplitByDistanceShortLegsFallBack(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	stub := newStub()
	stub.Respond = func(req ports.DirectionsRequest) (ports.DirectionsResponse, error) {
		resp, _ := reverseOrder(req)
		if len(req.Waypoints) == 4 {
			resp.Legs = resp.Legs[:2]
		}
		return resp, nil
	}

	res, err := newSplitter(store, stub).Split(context.Background(), splitRequest(domain.SplitByDistance, 2))
	require.NoError(t, err)
	assert.Equal(t, domain.SplitByProximity, res.Strategy)
	assert.Contains(t, res.Warnings[0], "2 legs for 4 stops")
}

func TestSplitByDistanceFewerStopsThanGroups(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2")

	stub := newStub()
	res, err := newSplitter(store, stub).Split(context.Background(), splitRequest(domain.SplitByDistance, 3))
	require.NoError(t, err)

	assert.Equal(t, domain.SplitByStops, res.Strategy)
	assert.Len(t, res.NewRouteIDs, 2)
	assert.Empty(t, stub.Calls())
}

func TestSplitByProximity(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4", "s5")

	stub := newStub()
	stub.Respond = reverseOrder

	res, err := newSplitter(store, stub).Split(context.Background(), splitRequest(domain.SplitByProximity, 2))
	require.NoError(t, err)

	assert.Equal(t, domain.SplitByProximity, res.Strategy)
	assert.Len(t, stub.Calls(), 2)
	assert.Equal(t, []string{"s3", "s2", "s1"}, ids(res.Groups[0].Stops))
	assert.Equal(t, 4.0, res.Groups[0].EstimatedDistanceKm)

	g1 := assertSplitRoute(t, store, res.NewRouteIDs[1], "d2", "v2")
	assert.Equal(t, []string{"cust-s5", "cust-s4"}, customers(g1))
}

func TestSplitByProximityKeepsOrderOnProviderFailure(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	stub := newStub()
	stub.Respond = func(ports.DirectionsRequest) (ports.DirectionsResponse, error) {
		return ports.DirectionsResponse{}, errors.New("provider down")
	}

	res, err := newSplitter(store, stub).Split(context.Background(), splitRequest(domain.SplitByProximity, 2))
	require.NoError(t, err)

	require.Len(t, res.Warnings, 2)
	assert.Equal(t, []string{"s1", "s2"}, ids(res.Groups[0].Stops))
	assert.False(t, res.Groups[0].HasEstimatedDistance)
}

func TestSplitManual(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	req := splitRequest(domain.SplitManual, 2)
	req.ManualAssignment = map[string]int{"s1": 1, "s2": 0, "s3": 5, "ghost": 0}

	res, err := newSplitter(store, newStub()).Split(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.SplitManual, res.Strategy)
	assert.Equal(t, []string{"s3", "s4"}, res.ExcludedStops)
	assert.Equal(t, []string{"ghost"}, res.SkippedAssignments)

	g0 := assertSplitRoute(t, store, res.NewRouteIDs[0], "d1", "v1")
	g1 := assertSplitRoute(t, store, res.NewRouteIDs[1], "d2", "v2")
	assert.Equal(t, []string{"cust-s2"}, customers(g0))
	assert.Equal(t, []string{"cust-s1"}, customers(g1))

	// Excluded stops stay with the retired source route.
	assertSourceRetired(t, store)
	assert.Equal(t, []string{"s3", "s4"}, ids(listStops(t, store, "r1")))
}

func TestSplitPairsDriversByGroupIndex(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2")

	req := splitRequest(domain.SplitManual, 3)
	req.ManualAssignment = map[string]int{"s1": 2, "s2": 2}

	res, err := newSplitter(store, newStub()).Split(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.NewRouteIDs, 1)
	assert.Equal(t, 2, res.Groups[0].Index)
	assertSplitRoute(t, store, res.NewRouteIDs[0], "d3", "v3")
}

func TestSplitManualWithNoValidGroups(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2")

	req := splitRequest(domain.SplitManual, 2)
	req.ManualAssignment = map[string]int{"s1": 9}

	_, err := newSplitter(store, newStub()).Split(context.Background(), req)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Empty(t, store.Writes())
}

func TestSplitRejectsInsufficientDrivers(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3")

	req := splitRequest(domain.SplitByStops, 3)
	req.DriverIDs = req.DriverIDs[:2]

	_, err := newSplitter(store, newStub()).Split(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Empty(t, store.Writes())
	assert.Equal(t, []string{"r1"}, store.RouteIDs())
	r, _ := store.Route("r1")
	assert.Equal(t, domain.RouteStatusPending, r.Status)
}

func TestSplitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SplitRequest)
	}{
		{name: "blank route", mutate: func(r *SplitRequest) { r.RouteID = "" }},
		{name: "unknown strategy", mutate: func(r *SplitRequest) { r.Strategy = "random" }},
		{name: "too few groups", mutate: func(r *SplitRequest) { r.GroupCount = 1 }},
		{name: "too many groups", mutate: func(r *SplitRequest) { r.GroupCount = 11 }},
		{name: "missing vehicles", mutate: func(r *SplitRequest) { r.VehicleIDs = nil }},
		{name: "blank driver", mutate: func(r *SplitRequest) { r.DriverIDs[1] = " " }},
		{name: "manual without assignment", mutate: func(r *SplitRequest) { r.Strategy = domain.SplitManual }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemoryStore()
			seedRoute(store, "r1", "s1", "s2")

			req := splitRequest(domain.SplitByStops, 2)
			tt.mutate(&req)

			_, err := newSplitter(store, newStub()).Split(context.Background(), req)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Empty(t, store.Writes())
		})
	}
}

func TestSplitRouteStates(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.Seed(domain.Route{ID: "r1", Date: routeDate, Status: domain.RouteStatusSplit}, newStop("s1", 1))

	_, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(domain.SplitByStops, 2))
	assert.Equal(t, KindValidation, KindOf(err))

	req := splitRequest(domain.SplitByStops, 2)
	req.RouteID = "missing"
	_, err = newSplitter(store, newStub()).Split(context.Background(), req)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestSplitOptimizesFirst(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	stub := newStub()
	stub.Respond = reverseOrder

	req := splitRequest(domain.SplitByStops, 2)
	req.SkipOptimize = false

	res, err := newSplitter(store, stub).Split(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, stub.Calls(), 1)
	assert.Equal(t, []string{"s4", "s3"}, ids(res.Groups[0].Stops))
	assert.Empty(t, res.Warnings)
}

func TestSplitContinuesWhenOptimizeFails(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	stub := newStub()
	stub.Respond = func(ports.DirectionsRequest) (ports.DirectionsResponse, error) {
		return ports.DirectionsResponse{}, errors.New("provider down")
	}

	req := splitRequest(domain.SplitByStops, 2)
	req.SkipOptimize = false

	res, err := newSplitter(store, stub).Split(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "optimize before split failed")
	assert.Equal(t, []string{"s1", "s2"}, ids(res.Groups[0].Stops))
}

func TestSplitPartialFailure(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3", "s4")

	var created []string
	store.FailWrite = func(w testutil.Write) error {
		switch {
		case w.Op == "create_route":
			created = append(created, w.ID)
		case w.Op == "insert" && len(created) == 2 && w.RouteID == created[1]:
			return injected
		}
		return nil
	}

	_, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(domain.SplitByStops, 2))
	require.Error(t, err)
	assert.Equal(t, KindPersistence, KindOf(err))

	var perr *PartialSplitError
	require.ErrorAs(t, err, &perr)
	require.Len(t, created, 2)
	assert.Equal(t, []string{created[0]}, perr.CreatedRoutes)
	assert.Equal(t, 1, perr.FailedGroup)
	assert.ErrorIs(t, err, injected)

	// The committed group is intact.
	assert.Equal(t, []string{"cust-s1", "cust-s2"}, customers(assertSplitRoute(t, store, created[0], "d1", "v1")))

	// The failed group's route is a tombstone without stops.
	failed, ok := store.Route(created[1])
	require.True(t, ok)
	assert.Equal(t, domain.RouteStatusSplit, failed.Status)
	assert.Empty(t, listStops(t, store, created[1]))

	// The source keeps the uncommitted stops and its status.
	src, _ := store.Route("r1")
	assert.Equal(t, domain.RouteStatusPending, src.Status)
	assert.Equal(t, []string{"s3", "s4"}, ids(listStops(t, store, "r1")))
}

func TestSplitBusyRoute(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2")

	locker := locks.NewLocalLocker()
	d := newDeps(store, newStub())
	d.Locker = locker

	release, err := locker.Lock(context.Background(), "r1")
	require.NoError(t, err)
	defer release()

	_, err = NewRouteSplitter(d, NewRouteOptimizer(d)).Split(context.Background(), splitRequest(domain.SplitByStops, 2))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestSplitHoldsLeaseAcrossOptimize(t *testing.T) {
	store := testutil.NewMemoryStore()
	seedRoute(store, "r1", "s1", "s2", "s3")

	d := newDeps(store, newStub())
	d.Locker = locks.NewLocalLocker()

	req := splitRequest(domain.SplitByStops, 2)
	req.SkipOptimize = false

	res, err := NewEngine(d).Splitter.Split(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestSplitCoversEveryStop(t *testing.T) {
	strategies := []domain.SplitStrategy{
		domain.SplitByStops, domain.SplitByTime, domain.SplitByCapacity, domain.SplitByProximity, domain.SplitByDistance,
	}
	stopIDs := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}

	for _, strategy := range strategies {
		for groups := 2; groups <= 4; groups++ {
			t.Run(fmt.Sprintf("%s/%d", strategy, groups), func(t *testing.T) {
				store := testutil.NewMemoryStore()
				stops := make([]domain.Stop, 0, len(stopIDs))
				for i, id := range stopIDs {
					s := newStop(id, i+1)
					s.WeightKg = float64(5 + i)
					stops = append(stops, s)
				}
				store.Seed(domain.Route{ID: "r1", Date: routeDate}, stops...)

				res, err := newSplitter(store, newStub()).Split(context.Background(), splitRequest(strategy, groups))
				require.NoError(t, err)

				var got []string
				for _, id := range res.NewRouteIDs {
					got = append(got, customers(listStops(t, store, id))...)
				}
				sort.Strings(got)
				assert.Equal(t, customers(stops), got)
				assert.LessOrEqual(t, len(res.NewRouteIDs), groups)
				assertSourceRetired(t, store)
			})
		}
	}
}
