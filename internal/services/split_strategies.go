package services

import (
	"context"
	"fleet-route-engine/internal/domain"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

type splitInput struct {
	stops      []domain.Stop
	groupCount int
	manual     map[string]int
	// keepOrder holds the stored visiting order where a strategy would
	// otherwise ask the provider to reorder the whole route.
	keepOrder bool
}

// partition is the outcome of one strategy. groups always has groupCount
// entries; some may be empty.
type partition struct {
	groups  [][]domain.Stop
	applied domain.SplitStrategy
	// Estimated km per group, when the strategy learned it from the provider.
	distanceKm []float64
	excluded   []string
	skipped    []string
	warnings   []string
}

type partitioner interface {
	partition(ctx context.Context, in splitInput) (partition, error)
}

func partitionerFor(s domain.SplitStrategy, d Deps) (partitioner, error) {
	switch s {
	case domain.SplitByStops:
		return equalCount{label: domain.SplitByStops}, nil
	case domain.SplitByTime:
		// No time-based balancing exists; time splits like stops.
		return equalCount{label: domain.SplitByTime}, nil
	case domain.SplitByCapacity:
		return capacityBalanced{}, nil
	case domain.SplitByProximity:
		return proximity{d: d}, nil
	case domain.SplitByDistance:
		return distanceBalanced{d: d, fallback: proximity{d: d}}, nil
	case domain.SplitManual:
		return manualAssignment{}, nil
	}
	return nil, fmt.Errorf("unknown split strategy %q", s)
}

// equalCount puts ceil(n/groupCount) stops in each group in sequence order;
// the last non-empty group takes the remainder.
type equalCount struct {
	label domain.SplitStrategy
}

func (e equalCount) partition(_ context.Context, in splitInput) (partition, error) {
	return partition{groups: chunkEvenly(in.stops, in.groupCount), applied: e.label}, nil
}

func chunkEvenly(stops []domain.Stop, groupCount int) [][]domain.Stop {
	groups := make([][]domain.Stop, groupCount)
	n := len(stops)
	if n == 0 {
		return groups
	}

	// Ceiling division: distribute stops as evenly as possible across groups.
	chunkSize := (n + groupCount - 1) / groupCount

	for gi := 0; gi < groupCount; gi++ {
		start := gi * chunkSize
		if start >= n {
			break
		}
		end := min(start+chunkSize, n)
		groups[gi] = append([]domain.Stop(nil), stops[start:end]...)
	}
	return groups
}

// capacityBalanced walks stops in order, closing a group once its weight
// reaches totalWeight/groupCount. The last group is never closed, so it takes
// whatever remains.
type capacityBalanced struct{}

func (capacityBalanced) partition(ctx context.Context, in splitInput) (partition, error) {
	total := 0.0
	for _, s := range in.stops {
		total += s.WeightKg
	}
	if total <= 0 {
		p, err := equalCount{label: domain.SplitByStops}.partition(ctx, in)
		p.warnings = append(p.warnings, "capacity: total weight is zero, split by stop count")
		return p, err
	}

	target := total / float64(in.groupCount)
	groups := make([][]domain.Stop, in.groupCount)
	gi := 0
	weight := 0.0
	for _, s := range in.stops {
		groups[gi] = append(groups[gi], s)
		weight += s.WeightKg
		if weight >= target && gi < in.groupCount-1 {
			gi++
			weight = 0
		}
	}

	return partition{groups: groups, applied: domain.SplitByCapacity}, nil
}

// proximity splits by count and then lets the provider reorder every group
// with more than one stop. Groups whose re-optimization fails keep their order.
type proximity struct {
	d Deps
}

func (p proximity) partition(ctx context.Context, in splitInput) (partition, error) {
	out := partition{
		groups:     chunkEvenly(in.stops, in.groupCount),
		applied:    domain.SplitByProximity,
		distanceKm: make([]float64, in.groupCount),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.d.writeLimit())

	for gi, group := range out.groups {
		if len(group) < 2 {
			continue
		}
		g.Go(func() error {
			it, err := p.d.itinerary(ctx, group, true)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.warnings = append(out.warnings, fmt.Sprintf("proximity: group %d kept sequence order: %v", gi, err))
				return nil
			}
			out.groups[gi] = it.stops
			out.distanceKm[gi], _ = summarizeLegs(it.resp.Legs)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(out.warnings)
	return out, nil
}

// distanceBalanced cuts the full provider itinerary where cumulative distance
// crosses each k/groupCount share of the total. The itinerary is optimized
// unless keepOrder is set. Provider failure falls back.
type distanceBalanced struct {
	d        Deps
	fallback partitioner
}

func (db distanceBalanced) partition(ctx context.Context, in splitInput) (partition, error) {
	if len(in.stops) < in.groupCount {
		return equalCount{label: domain.SplitByStops}.partition(ctx, in)
	}

	it, err := db.d.itinerary(ctx, in.stops, !in.keepOrder)
	if err == nil && len(it.resp.Legs) < len(it.stops) {
		err = fmt.Errorf("provider returned %d legs for %d stops", len(it.resp.Legs), len(it.stops))
	}
	if err != nil {
		p, ferr := db.fallback.partition(ctx, in)
		p.warnings = append([]string{fmt.Sprintf("distance: falling back to proximity: %v", err)}, p.warnings...)
		return p, ferr
	}

	cum := make([]float64, len(it.resp.Legs))
	run := 0.0
	for i, l := range it.resp.Legs {
		run += float64(l.DistanceMeters) / 1000
		cum[i] = run
	}

	cuts := distanceCuts(cum, len(it.stops), in.groupCount)

	out := partition{
		groups:     make([][]domain.Stop, in.groupCount),
		applied:    domain.SplitByDistance,
		distanceKm: make([]float64, in.groupCount),
	}
	bounds := append(append([]int{0}, cuts...), len(it.stops))
	for gi := 0; gi < in.groupCount; gi++ {
		start, end := bounds[gi], bounds[gi+1]
		out.groups[gi] = append([]domain.Stop(nil), it.stops[start:end]...)

		from := 0.0
		if start > 0 {
			from = cum[start-1]
		}
		to := cum[end-1]
		if gi == in.groupCount-1 {
			to = run
		}
		out.distanceKm[gi] = roundTenth(to - from)
	}
	return out, nil
}

// distanceCuts picks groupCount-1 stop indices. Cut k is the smallest leg
// index whose cumulative distance reaches total*k/groupCount; leg i ends at
// stop i, so a cut c starts the next group at stop c. Cuts are strictly
// increasing and leave at least one stop for every remaining group.
func distanceCuts(cum []float64, stopCount, groupCount int) []int {
	total := cum[len(cum)-1]
	cuts := make([]int, 0, groupCount-1)
	prev := 0
	for k := 1; k < groupCount; k++ {
		target := total * float64(k) / float64(groupCount)

		c := len(cum)
		for i, v := range cum {
			if v >= target {
				c = i
				break
			}
		}

		if c <= prev {
			c = prev + 1
		}
		if hi := stopCount - (groupCount - k); c > hi {
			c = hi
		}
		cuts = append(cuts, c)
		prev = c
	}
	return cuts
}

func roundTenth(km float64) float64 {
	return math.Round(km*10) / 10
}

// manualAssignment places stops by the caller's stop id -> group index map.
// Stops without a valid index are excluded from every group.
type manualAssignment struct{}

func (manualAssignment) partition(_ context.Context, in splitInput) (partition, error) {
	out := partition{
		groups:  make([][]domain.Stop, in.groupCount),
		applied: domain.SplitManual,
	}

	known := make(map[string]struct{}, len(in.stops))
	for _, s := range in.stops {
		known[s.ID] = struct{}{}
		gi, ok := in.manual[s.ID]
		if !ok || gi < 0 || gi >= in.groupCount {
			out.excluded = append(out.excluded, s.ID)
			continue
		}
		out.groups[gi] = append(out.groups[gi], s)
	}

	for id := range in.manual {
		if _, ok := known[id]; !ok {
			out.skipped = append(out.skipped, id)
		}
	}
	sort.Strings(out.skipped)

	return out, nil
}
