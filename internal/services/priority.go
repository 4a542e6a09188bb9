package services

import "fleet-route-engine/internal/domain"

// BucketByPriority reorders stops into Urgent, then High, then Normal and Low
// combined. It is a stable partition: stops keep their input order within a
// bucket. The result becomes the waypoint list handed to the routing provider,
// which front-loads higher-priority addresses in its request.
func BucketByPriority(stops []domain.Stop) []domain.Stop {
	var urgent, high, rest []domain.Stop
	for _, s := range stops {
		switch s.Priority {
		case domain.PriorityUrgent:
			urgent = append(urgent, s)
		case domain.PriorityHigh:
			high = append(high, s)
		default:
			rest = append(rest, s)
		}
	}

	out := make([]domain.Stop, 0, len(stops))
	out = append(out, urgent...)
	out = append(out, high...)
	out = append(out, rest...)
	return out
}
