package domain

import (
	"fmt"
	"strings"
)

// SplitStrategy selects how a route's stops are partitioned into groups.
type SplitStrategy string

const (
	SplitByDistance  SplitStrategy = "distance"
	SplitManual      SplitStrategy = "manual"
	SplitByProximity SplitStrategy = "proximity"
	SplitByCapacity  SplitStrategy = "capacity"
	SplitByStops     SplitStrategy = "stops"
	SplitByTime      SplitStrategy = "time"
)

func ParseSplitStrategy(s string) (SplitStrategy, error) {
	st := SplitStrategy(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case SplitByDistance, SplitManual, SplitByProximity, SplitByCapacity, SplitByStops, SplitByTime:
		return st, nil
	}
	return "", fmt.Errorf("parse split strategy: unknown strategy %q", s)
}

// Group count bounds for a split.
const (
	MinSplitGroups = 2
	MaxSplitGroups = 10
)

// SplitGroup is an ordered subsequence of stops destined for one new route.
// It is never persisted.
type SplitGroup struct {
	Index                int
	Stops                []Stop
	TotalWeightKg        float64
	EstimatedDistanceKm  float64
	HasEstimatedDistance bool
}

func NewSplitGroup(index int, stops []Stop) SplitGroup {
	g := SplitGroup{Index: index, Stops: stops}
	for _, s := range stops {
		g.TotalWeightKg += s.WeightKg
	}
	return g
}

func (g SplitGroup) StopCount() int { return len(g.Stops) }
