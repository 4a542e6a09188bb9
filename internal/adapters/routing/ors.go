package routing

import (
	"context"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/platform/obs"
	"fleet-route-engine/internal/ports"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// GeocodeCache stores address -> coordinate lookups between calls.
type GeocodeCache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, results map[string]domain.Coordinates) error
}

// ORSProvider implements RoutingProvider using OpenRouteService.
//
// It coordinates:
//   - Address normalization
//   - Persistent geocode caching
//   - Waypoint ordering through the optimization endpoint
//
// The provider is safe for concurrent use.
type ORSProvider struct {
	session      *http.Client
	apiKey       string
	baseURL      string
	profile      string
	geocodeCache GeocodeCache
}

func NewORSProvider(apiKey string, timeout time.Duration, geocodeCache GeocodeCache) (*ORSProvider, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}

	provider := &ORSProvider{
		session:      &http.Client{Timeout: timeout},
		apiKey:       apiKey,
		baseURL:      "https://api.openrouteservice.org",
		profile:      "driving-car",
		geocodeCache: geocodeCache,
	}

	return provider, nil
}

// WithBaseURL points the provider at another host; used by tests.
func (o *ORSProvider) WithBaseURL(u string) *ORSProvider {
	o.baseURL = strings.TrimRight(u, "/")
	return o
}

func (o *ORSProvider) newRequest(
	ctx context.Context,
	method string,
	url string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// Directions geocodes the depot and waypoints, then asks the optimization
// endpoint for the visiting order of a single vehicle based at the origin.
func (o *ORSProvider) Directions(
	ctx context.Context,
	dreq ports.DirectionsRequest,
) (_ ports.DirectionsResponse, err error) {
	defer obs.Time(ctx, "ors.Directions")(&err)

	origin := normalize(dreq.Origin)
	destination := normalize(dreq.Destination)
	if origin == "" || destination == "" {
		return ports.DirectionsResponse{}, errors.New("ORS directions: origin and destination must be non-empty")
	}
	if len(dreq.Waypoints) == 0 {
		return ports.DirectionsResponse{}, errors.New("ORS directions: at least one waypoint is required")
	}

	waypoints := make([]string, 0, len(dreq.Waypoints))
	for _, w := range dreq.Waypoints {
		nw := normalize(w)
		if nw == "" {
			return ports.DirectionsResponse{}, errors.New("ORS directions: waypoint must be non-empty")
		}
		waypoints = append(waypoints, nw)
	}

	needed := append([]string{origin, destination}, waypoints...)
	coords, err := o.resolve(ctx, needed)
	if err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("ORS directions: %w", err)
	}

	wpCoords := make([]domain.Coordinates, 0, len(waypoints))
	for _, w := range waypoints {
		wpCoords = append(wpCoords, coords[w])
	}

	var resp ports.DirectionsResponse
	if dreq.OptimizeWaypoints {
		resp, err = o.optimize(ctx, coords[origin], coords[destination], wpCoords)
	} else {
		resp, err = o.directions(ctx, coords[origin], coords[destination], wpCoords)
	}
	if err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("ORS directions: %w", err)
	}
	return resp, nil
}

// resolve returns coordinates for every address, from the cache when possible.
func (o *ORSProvider) resolve(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error) {
	hits := make(map[string]domain.Coordinates)
	// Resolve coordinates via cache before calling ORS geocoding.
	if o.geocodeCache != nil {
		var err error
		hits, err = o.geocodeCache.GetMany(ctx, addresses)
		if err != nil {
			return nil, fmt.Errorf("get geocode cache: %w", err)
		}
	}

	misses := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := hits[a]; !ok {
			misses = append(misses, a)
		}
	}

	fresh := make(map[string]domain.Coordinates)
	if len(misses) > 0 {
		var err error
		fresh, err = o.geocodeMany(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("retrieving coordinates: %w", err)
		}
	}

	if o.geocodeCache != nil && len(fresh) > 0 {
		if err := o.geocodeCache.PutMany(ctx, fresh); err != nil {
			log.Printf("geocode cache write failed: %v", err)
		}
	}

	coords := make(map[string]domain.Coordinates, len(hits)+len(fresh))
	for k, v := range hits {
		coords[k] = v
	}
	for k, v := range fresh {
		coords[k] = v
	}

	for _, a := range addresses {
		if _, ok := coords[a]; !ok {
			return nil, fmt.Errorf("missing coordinate for %q", a)
		}
	}
	return coords, nil
}

func (o *ORSProvider) NavigationLinks(req ports.DirectionsRequest, resp ports.DirectionsResponse) domain.NavigationLinks {
	return navigationLinks(req, resp)
}
