package handlers

import (
	"encoding/json"
	"errors"
	"fleet-route-engine/internal/api/dto"
	"fleet-route-engine/internal/services"
	"io"
	"log"
	"net/http"
	"strings"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, msg string) {
	writeJSON(w, r, status, dto.ErrorResponse{Error: dto.ErrorBody{Kind: kind, Message: msg}})
}

// allowMethod answers 405 unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	return false
}

// decodeJSON strictly decodes a single JSON object into dst. An empty body is
// accepted only when allowEmpty is set and leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, r, http.StatusBadRequest, string(services.KindValidation), "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, string(services.KindValidation), "body must contain only one JSON object")
		return false
	}
	return true
}

var kindStatus = map[services.Kind]int{
	services.KindValidation:  http.StatusBadRequest,
	services.KindNotFound:    http.StatusNotFound,
	services.KindConflict:    http.StatusConflict,
	services.KindProvider:    http.StatusBadGateway,
	services.KindPersistence: http.StatusInternalServerError,
}

// writeEngineError maps an engine error to its HTTP status. Provider and
// persistence failures are logged with their cause; clients only see the
// engine's message, plus the routes already created by a partial split.
func writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var e *services.Error
	if !errors.As(err, &e) {
		log.Printf("%s failed: %v", op, err)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	status, ok := kindStatus[e.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	switch e.Kind {
	case services.KindValidation, services.KindNotFound, services.KindConflict:
		writeError(w, r, status, string(e.Kind), e.Message)
	case services.KindProvider:
		log.Printf("%s failed: %v", op, err)
		writeError(w, r, status, string(e.Kind), "routing provider failed")
	default:
		log.Printf("%s failed: %v", op, err)
		msg := e.Message
		var perr *services.PartialSplitError
		if errors.As(err, &perr) && len(perr.CreatedRoutes) > 0 {
			msg += "; created routes: " + strings.Join(perr.CreatedRoutes, ", ")
		}
		writeError(w, r, status, string(e.Kind), msg)
	}
}
