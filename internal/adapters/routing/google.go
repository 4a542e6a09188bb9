package routing

import (
	"context"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/platform/obs"
	"fleet-route-engine/internal/ports"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type googleDirectionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		WaypointOrder []int `json:"waypoint_order"`
		Legs          []struct {
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
			StartLocation struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"start_location"`
		} `json:"legs"`
	} `json:"routes"`
}

// GoogleProvider implements RoutingProvider with the Google Directions API.
// It is safe for concurrent use.
type GoogleProvider struct {
	session *http.Client
	apiKey  string
	baseURL string
}

func NewGoogleProvider(apiKey string, timeout time.Duration) (*GoogleProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("google api key is empty")
	}

	return &GoogleProvider{
		session: &http.Client{Timeout: timeout},
		apiKey:  apiKey,
		baseURL: "https://maps.googleapis.com",
	}, nil
}

// WithBaseURL points the provider at another host; used by tests.
func (g *GoogleProvider) WithBaseURL(u string) *GoogleProvider {
	g.baseURL = strings.TrimRight(u, "/")
	return g
}

func (g *GoogleProvider) Directions(
	ctx context.Context,
	dreq ports.DirectionsRequest,
) (_ ports.DirectionsResponse, err error) {
	defer obs.Time(ctx, "google.Directions")(&err)

	if normalize(dreq.Origin) == "" || normalize(dreq.Destination) == "" {
		return ports.DirectionsResponse{}, errors.New("google directions: origin and destination must be non-empty")
	}
	// The waypoints parameter is "|"-separated with no escape, so a pipe or a
	// blank entry would shift every later waypoint index.
	for i, w := range dreq.Waypoints {
		if normalize(w) == "" {
			return ports.DirectionsResponse{}, fmt.Errorf("google directions: waypoint %d is empty", i)
		}
		if strings.Contains(w, "|") {
			return ports.DirectionsResponse{}, fmt.Errorf("google directions: waypoint %d %q contains '|'", i, w)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/maps/api/directions/json", nil)
	if err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("google directions: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	q := req.URL.Query()
	q.Set("origin", normalize(dreq.Origin))
	q.Set("destination", normalize(dreq.Destination))
	q.Set("mode", "driving")
	q.Set("key", g.apiKey)
	if len(dreq.Waypoints) > 0 {
		parts := make([]string, 0, len(dreq.Waypoints)+1)
		if dreq.OptimizeWaypoints {
			parts = append(parts, "optimize:true")
		}
		for _, w := range dreq.Waypoints {
			parts = append(parts, normalize(w))
		}
		q.Set("waypoints", strings.Join(parts, "|"))
	}
	req.URL.RawQuery = q.Encode()

	var decoded googleDirectionsResponse
	if err := doJSON(g.session, req, &decoded); err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("google directions: %w", err)
	}

	if decoded.Status != "OK" {
		return ports.DirectionsResponse{}, &StatusError{Status: decoded.Status, Message: decoded.ErrorMessage}
	}
	if len(decoded.Routes) == 0 {
		return ports.DirectionsResponse{}, &StatusError{Status: "ZERO_RESULTS", Message: "no routes returned"}
	}

	route := decoded.Routes[0]
	out := ports.DirectionsResponse{
		Legs:          make([]ports.Leg, 0, len(route.Legs)),
		WaypointOrder: route.WaypointOrder,
	}
	for _, l := range route.Legs {
		out.Legs = append(out.Legs, ports.Leg{
			DistanceMeters:  l.Distance.Value,
			DurationSeconds: l.Duration.Value,
			Start:           domain.Coordinates{Lat: l.StartLocation.Lat, Lon: l.StartLocation.Lng},
		})
	}

	return out, nil
}

func (g *GoogleProvider) NavigationLinks(req ports.DirectionsRequest, resp ports.DirectionsResponse) domain.NavigationLinks {
	return navigationLinks(req, resp)
}
