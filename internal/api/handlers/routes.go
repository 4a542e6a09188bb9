package handlers

import (
	"errors"
	"fleet-route-engine/internal/api/dto"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
	"fleet-route-engine/internal/services"
	"log"
	"net/http"
	"strings"
	"time"
)

// RouteHandler exposes route reads and the optimize, split and merge
// operations of the engine.
type RouteHandler struct {
	Store  ports.Store
	Engine *services.Engine
}

// Get returns a route with its stops in visiting order.
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	id := r.PathValue("id")
	route, err := h.Store.GetRoute(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, string(services.KindNotFound), "route "+id+" not found")
		return
	}
	if err != nil {
		log.Printf("get route failed: route=%s err=%v", id, err)
		writeError(w, r, http.StatusInternalServerError, string(services.KindPersistence), "internal server error")
		return
	}

	stops, err := h.Store.ListStops(r.Context(), id)
	if err != nil {
		log.Printf("list stops failed: route=%s err=%v", id, err)
		writeError(w, r, http.StatusInternalServerError, string(services.KindPersistence), "internal server error")
		return
	}

	res := dto.RouteResponse{
		ID:        route.ID,
		DriverID:  route.DriverID,
		VehicleID: route.VehicleID,
		Date:      route.Date.Format(domain.DateLayout),
		Status:    string(route.Status),
		CreatedAt: route.CreatedAt,
		UpdatedAt: route.UpdatedAt,
		Stops:     stopResponses(stops),
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Optimize reorders a route's remaining stops. The body is optional.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.OptimizeRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	overrides := make(map[string]domain.PriorityTier, len(req.Priorities))
	for stopID, name := range req.Priorities {
		tier, err := domain.ParsePriorityTier(name)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, string(services.KindValidation), err.Error())
			return
		}
		overrides[stopID] = tier
	}

	res, err := h.Engine.Optimizer.Optimize(r.Context(), services.OptimizeRequest{
		RouteID:           r.PathValue("id"),
		PriorityOverrides: overrides,
	})
	if err != nil {
		writeEngineError(w, r, "optimize route", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.OptimizeResponse{
		RouteID:          res.RouteID,
		TotalDistanceKm:  res.TotalDistanceKm,
		TotalDurationMin: res.TotalDurationMin,
		Stops:            stopResponses(res.Stops),
		NavigationLinks: dto.NavigationLinks{
			WebURL:        res.Links.WebURL,
			TurnByTurnURL: res.Links.TurnByTurnURL,
		},
		SkippedOverrides: res.SkippedOverrides,
	})
}

// Split partitions a route into new routes, one per driver/vehicle pair.
func (h *RouteHandler) Split(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.SplitRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	strategy, err := domain.ParseSplitStrategy(req.Strategy)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(services.KindValidation), err.Error())
		return
	}

	res, err := h.Engine.Splitter.Split(r.Context(), services.SplitRequest{
		RouteID:          r.PathValue("id"),
		Strategy:         strategy,
		GroupCount:       req.GroupCount,
		DriverIDs:        req.DriverIDs,
		VehicleIDs:       req.VehicleIDs,
		ManualAssignment: req.ManualAssignment,
		SkipOptimize:     req.SkipOptimize,
	})
	if err != nil {
		writeEngineError(w, r, "split route", err)
		return
	}

	out := dto.SplitResponse{
		SourceRouteID:      res.SourceRouteID,
		Strategy:           string(res.Strategy),
		NewRouteIDs:        res.NewRouteIDs,
		Groups:             make([]dto.SplitGroupResponse, 0, len(res.Groups)),
		ExcludedStops:      res.ExcludedStops,
		SkippedAssignments: res.SkippedAssignments,
		Warnings:           res.Warnings,
	}
	for i, g := range res.Groups {
		gr := dto.SplitGroupResponse{
			Index:         g.Index,
			RouteID:       res.NewRouteIDs[i],
			StopCount:     g.StopCount(),
			TotalWeightKg: g.TotalWeightKg,
		}
		if g.HasEstimatedDistance {
			km := g.EstimatedDistanceKm
			gr.EstimatedDistanceKm = &km
		}
		out.Groups = append(out.Groups, gr)
	}

	writeJSON(w, r, http.StatusCreated, out)
}

// Merge combines several routes into a new one.
func (h *RouteHandler) Merge(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.MergeRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		d, err := time.Parse(domain.DateLayout, req.Date)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, string(services.KindValidation), "date must be formatted as YYYY-MM-DD")
			return
		}
		date = d
	}

	res, err := h.Engine.Merger.Merge(r.Context(), services.MergeRequest{
		RouteIDs:  req.RouteIDs,
		DriverID:  req.DriverID,
		VehicleID: req.VehicleID,
		Date:      date,
	})
	if err != nil {
		writeEngineError(w, r, "merge routes", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, dto.MergeResponse{
		RouteID:        res.RouteID,
		SourceRouteIDs: res.SourceRouteIDs,
		StopCount:      res.StopCount,
	})
}

func stopResponses(stops []domain.Stop) []dto.StopResponse {
	out := make([]dto.StopResponse, 0, len(stops))
	for _, s := range stops {
		out = append(out, dto.StopResponse{
			ID:               s.ID,
			CustomerID:       s.CustomerID,
			SequencePosition: s.SequencePosition,
			Priority:         s.Priority.String(),
			WeightKg:         s.WeightKg,
			VolumeM3:         s.VolumeM3,
			Completed:        s.Completed,
			Street:           s.Street,
			City:             s.City,
			State:            s.State,
		})
	}
	return out
}
