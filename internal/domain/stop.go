package domain

import (
	"fmt"
	"strings"
)

// PriorityTier biases the visiting order of a stop. Higher values are visited first.
type PriorityTier int

const (
	PriorityNormal PriorityTier = 0
	PriorityLow    PriorityTier = 1
	PriorityHigh   PriorityTier = 2
	PriorityUrgent PriorityTier = 3
)

func (p PriorityTier) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func (p PriorityTier) Valid() bool {
	return p >= PriorityNormal && p <= PriorityUrgent
}

// ParsePriorityTier accepts the tier name (case-insensitive).
func ParsePriorityTier(s string) (PriorityTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "urgent":
		return PriorityUrgent, nil
	case "high":
		return PriorityHigh, nil
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	default:
		return PriorityNormal, fmt.Errorf("parse priority: unknown tier %q", s)
	}
}

// Stop is one delivery location within a route.
//
// SequencePosition is 1-based and unique within its route; the set of positions
// of a route's stops is always 1..N outside of a renumber in progress.
type Stop struct {
	ID               string
	RouteID          string
	CustomerID       string
	SequencePosition int
	Priority         PriorityTier
	WeightKg         float64
	VolumeM3         float64
	Completed        bool
	Street           string
	City             string
	State            string
}

// Address joins the address fields into the opaque text handed to routing providers.
func (s Stop) Address() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Street, s.City, s.State} {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// StopAddresses returns the address of every stop, in order.
func StopAddresses(stops []Stop) []string {
	out := make([]string, 0, len(stops))
	for _, s := range stops {
		out = append(out, s.Address())
	}
	return out
}
