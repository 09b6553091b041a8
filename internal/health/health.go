// Package health provides the liveness and readiness probes for the velatura
// server.
//
//   - /healthz — liveness; a process that can serve HTTP is alive.
//   - /readyz  — readiness; 200 only when every registered check passes,
//     typically that the gateway is configured and the filler cache is warm.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map naming each probe's outcome.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/museworks/velatura/internal/filler"
	"github.com/museworks/velatura/pkg/gateway"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Check is a named readiness probe. Probe returns nil when the dependency is
// healthy; it must respect context cancellation.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// GatewayCheck verifies all three gateway capabilities are wired. It does not
// call the remote APIs; a misconfigured credential surfaces at startup.
func GatewayCheck(gw *gateway.Gateway) Check {
	return Check{
		Name: "gateway",
		Probe: func(context.Context) error {
			return gw.Validate()
		},
	}
}

// FillerCheck reports the filler cache as ready once its phrase set is
// non-empty; phrases that missed warming synthesize lazily, so an empty set
// is the only unready state.
func FillerCheck(cache *filler.Cache) Check {
	return Check{
		Name: "filler",
		Probe: func(context.Context) error {
			if cache.Len() == 0 {
				return fmt.Errorf("filler phrase set is empty")
			}
			return nil
		},
	}
}

// response is the JSON body for both probes.
type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The check list is fixed at
// construction; the handler is safe for concurrent use.
type Handler struct {
	checks []Check
}

// New creates a handler evaluating the given checks, in order, per /readyz
// request.
func New(checks ...Check) *Handler {
	return &Handler{checks: append([]Check(nil), checks...)}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz returns 200 only when every check passes, 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	status := http.StatusOK
	res := response{Status: "ok", Checks: checks}

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
