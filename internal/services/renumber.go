package services

import (
	"context"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
)

// renumber persists ordered as the route's visiting order: ordered[i] ends at
// position i+1. Only stops whose position changes are written.
//
// Storage that implements ports.StopReorderer does this atomically. Otherwise
// the unique (route, position) constraint is respected with two phases: every
// moved stop is first parked at -(new position), then written to its final
// position. A failed phase is compensated by restoring the previous order; if
// that fails too the RenumberError is marked Stranded.
func (d Deps) renumber(ctx context.Context, op, routeID string, ordered []domain.Stop) ([]domain.Stop, error) {
	out := make([]domain.Stop, len(ordered))
	copy(out, ordered)

	type move struct {
		stopID   string
		from, to int
	}
	moves := make([]move, 0, len(out))
	for i := range out {
		if out[i].SequencePosition != i+1 {
			moves = append(moves, move{stopID: out[i].ID, from: out[i].SequencePosition, to: i + 1})
		}
		out[i].SequencePosition = i + 1
	}
	if len(moves) == 0 {
		return out, nil
	}

	if r, ok := d.Store.(ports.StopReorderer); ok {
		placements := make([]ports.Placement, 0, len(moves))
		for _, m := range moves {
			placements = append(placements, ports.Placement{StopID: m.stopID, Position: m.to})
		}
		if err := r.ReorderStops(context.WithoutCancel(ctx), routeID, placements); err != nil {
			return nil, persistenceError(op, "reorder stops", err)
		}
		return out, nil
	}

	limit := d.writeLimit()
	write := func(name string, pos func(m move) int, only func(i int) bool) error {
		idx := make([]int, 0, len(moves))
		for i := range moves {
			if only == nil || only(i) {
				idx = append(idx, i)
			}
		}
		return runBatch(ctx, name, len(idx), limit, func(ctx context.Context, k int) error {
			m := moves[idx[k]]
			return d.Store.UpdateStopPosition(ctx, m.stopID, pos(m))
		})
	}

	// Phase 1: park moved stops on unique negative placeholders.
	if err := write("renumber phase 1", func(m move) int { return -m.to }, nil); err != nil {
		rerr := &RenumberError{RouteID: routeID, Phase: 1, Err: err}

		var be *BatchError
		errors.As(err, &be)
		parked := func(i int) bool {
			if be == nil {
				return true
			}
			_, failed := be.Failed[i]
			return !failed
		}
		if cerr := write("renumber restore", func(m move) int { return m.from }, parked); cerr != nil {
			rerr.Stranded = true
			rerr.Err = errors.Join(err, cerr)
		}
		return nil, persistenceError(op, "renumber stops", rerr)
	}

	// Phase 2: final positions.
	if err := write("renumber phase 2", func(m move) int { return m.to }, nil); err != nil {
		rerr := &RenumberError{RouteID: routeID, Phase: 2, Err: err}

		// Stops are now split between final positions and phase-1
		// placeholders, so restore through a second placeholder range that
		// cannot collide with either.
		offset := len(out)
		for _, m := range moves {
			if m.from > offset {
				offset = m.from
			}
		}
		cerr := write("renumber restore park", func(m move) int { return -(offset + m.from) }, nil)
		if cerr == nil {
			cerr = write("renumber restore", func(m move) int { return m.from }, nil)
		}
		if cerr != nil {
			rerr.Stranded = true
			rerr.Err = errors.Join(err, cerr)
		}
		return nil, persistenceError(op, "renumber stops", rerr)
	}

	return out, nil
}
