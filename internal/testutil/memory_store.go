package testutil

import (
	"context"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUniqueViolation mirrors the UNIQUE(route_id, sequence_position) constraint.
var ErrUniqueViolation = errors.New("unique constraint violation: (route_id, sequence_position)")

// Write describes one attempted write against MemoryStore.
type Write struct {
	Op       string
	ID       string
	RouteID  string
	Position int
}

// MemoryStore is an in-memory ports.Store that enforces unique stop positions
// per route, records every write and can fail selected writes.
// It deliberately does not implement ports.StopReorderer.
type MemoryStore struct {
	mu     sync.Mutex
	routes map[string]domain.Route
	stops  map[string]domain.Stop
	writes []Write

	// FailWrite is consulted before each write; a non-nil result fails it.
	FailWrite func(w Write) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		routes: make(map[string]domain.Route),
		stops:  make(map[string]domain.Stop),
	}
}

// Seed stores a route and its stops without going through the write hooks.
func (m *MemoryStore) Seed(r domain.Route, stops ...domain.Stop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Status == "" {
		r.Status = domain.RouteStatusPending
	}
	m.routes[r.ID] = r
	for _, s := range stops {
		s.RouteID = r.ID
		m.stops[s.ID] = s
	}
}

func (m *MemoryStore) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// Positions returns the sequence positions of a route's stops, ascending.
func (m *MemoryStore) Positions(routeID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, s := range m.stops {
		if s.RouteID == routeID {
			out = append(out, s.SequencePosition)
		}
	}
	sort.Ints(out)
	return out
}

// Route returns a copy of the stored route.
func (m *MemoryStore) Route(id string) (domain.Route, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	return r, ok
}

// RouteIDs lists every stored route id, sorted.
func (m *MemoryStore) RouteIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.routes))
	for id := range m.routes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryStore) record(w Write) error {
	m.writes = append(m.writes, w)
	if m.FailWrite != nil {
		return m.FailWrite(w)
	}
	return nil
}

func (m *MemoryStore) positionTaken(routeID, stopID string, pos int) bool {
	for _, s := range m.stops {
		if s.RouteID == routeID && s.ID != stopID && s.SequencePosition == pos {
			return true
		}
	}
	return false
}

func (m *MemoryStore) GetRoute(_ context.Context, routeID string) (*domain.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("get route %s: %w", routeID, ports.ErrNotFound)
	}
	return &r, nil
}

func (m *MemoryStore) CreateRoute(_ context.Context, r *domain.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Write{Op: "create_route", ID: r.ID}); err != nil {
		return err
	}
	if _, ok := m.routes[r.ID]; ok {
		return fmt.Errorf("create route %s: duplicate id", r.ID)
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.routes[r.ID] = *r
	return nil
}

func (m *MemoryStore) UpdateRouteStatus(_ context.Context, routeID string, status domain.RouteStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Write{Op: "update_status", ID: routeID}); err != nil {
		return err
	}
	r, ok := m.routes[routeID]
	if !ok {
		return fmt.Errorf("update route status %s: %w", routeID, ports.ErrNotFound)
	}
	r.Status = status
	m.routes[routeID] = r
	return nil
}

func (m *MemoryStore) ListStops(_ context.Context, routeID string) ([]domain.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Stop
	for _, s := range m.stops {
		if s.RouteID == routeID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequencePosition < out[j].SequencePosition })
	return out, nil
}

func (m *MemoryStore) UpdateStopPosition(_ context.Context, stopID string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stops[stopID]
	if !ok {
		return fmt.Errorf("update stop position %s: %w", stopID, ports.ErrNotFound)
	}
	if err := m.record(Write{Op: "update_position", ID: stopID, RouteID: s.RouteID, Position: position}); err != nil {
		return err
	}
	if m.positionTaken(s.RouteID, stopID, position) {
		return fmt.Errorf("update stop %s to %d: %w", stopID, position, ErrUniqueViolation)
	}
	s.SequencePosition = position
	m.stops[stopID] = s
	return nil
}

func (m *MemoryStore) UpdateStopPriority(_ context.Context, stopID string, priority domain.PriorityTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Write{Op: "update_priority", ID: stopID}); err != nil {
		return err
	}
	s, ok := m.stops[stopID]
	if !ok {
		return fmt.Errorf("update stop priority %s: %w", stopID, ports.ErrNotFound)
	}
	s.Priority = priority
	m.stops[stopID] = s
	return nil
}

func (m *MemoryStore) MoveStop(_ context.Context, stopID, routeID string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Write{Op: "move", ID: stopID, RouteID: routeID, Position: position}); err != nil {
		return err
	}
	s, ok := m.stops[stopID]
	if !ok {
		return fmt.Errorf("move stop %s: %w", stopID, ports.ErrNotFound)
	}
	if m.positionTaken(routeID, stopID, position) {
		return fmt.Errorf("move stop %s to %s@%d: %w", stopID, routeID, position, ErrUniqueViolation)
	}
	s.RouteID = routeID
	s.SequencePosition = position
	m.stops[stopID] = s
	return nil
}

func (m *MemoryStore) InsertStop(_ context.Context, s *domain.Stop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Write{Op: "insert", ID: s.ID, RouteID: s.RouteID, Position: s.SequencePosition}); err != nil {
		return err
	}
	if _, ok := m.stops[s.ID]; ok {
		return fmt.Errorf("insert stop %s: duplicate id", s.ID)
	}
	if m.positionTaken(s.RouteID, s.ID, s.SequencePosition) {
		return fmt.Errorf("insert stop %s: %w", s.ID, ErrUniqueViolation)
	}
	m.stops[s.ID] = *s
	return nil
}

// DeleteStop is idempotent: deleting a missing stop succeeds.
func (m *MemoryStore) DeleteStop(_ context.Context, stopID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Write{Op: "delete", ID: stopID}); err != nil {
		return err
	}
	delete(m.stops, stopID)
	return nil
}
