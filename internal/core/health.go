package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds the total time for all health probes. If any
// probe exceeds the deadline, the endpoint returns 503.
const healthCheckTimeout = 2 * time.Second

// HealthProbe defines the interface for a subsystem health check. Each probe
// represents a dependency (database, redis) that must be operational for the
// processor to accept events.
type HealthProbe interface {
	// Name returns a human-readable identifier for the probe.
	Name() string

	// Check performs the health check against the subsystem. It should
	// respect the context deadline.
	Check(ctx context.Context) error
}

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth executes all registered probes concurrently under a short
// deadline and reports 200 when every subsystem is healthy, 503 otherwise.
// Probes that do not finish before the deadline are reported as timed out.
//
// This endpoint is public and mounted at GET /health; it bypasses the
// webhook rate limit so orchestrator probes are never throttled.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Timestamp: now})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(probes))
	)

	// Plain Group rather than WithContext: one unhealthy subsystem must not
	// cancel the remaining probes, or the response would misreport them.
	var g errgroup.Group
	for _, probe := range probes {
		probe := probe
		g.Go(func() (err error) {
			defer func() {
				if rvr := recover(); rvr != nil {
					err = fmt.Errorf("probe panicked: %v", rvr)
				}
				mu.Lock()
				results[probe.Name()] = err
				mu.Unlock()
			}()
			return probe.Check(ctx)
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait() //nolint:errcheck // individual errors collected per probe
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Deadline hit; report whatever finished, mark the rest timed out.
	}

	mu.Lock()
	collected := make(map[string]error, len(results))
	for name, err := range results {
		collected[name] = err
	}
	mu.Unlock()

	components := make(map[string]componentStatus, len(probes))
	allHealthy := true

	for _, probe := range probes {
		name := probe.Name()
		err, finished := collected[name]
		switch {
		case !finished:
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Timestamp: now, Components: components}
	if allHealthy {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	JSON(w, r, http.StatusServiceUnavailable, resp)
}
