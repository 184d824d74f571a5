package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole /health request. Probes still running
// at the deadline are reported as timed out.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one subsystem reported by /health.
type HealthProbe interface {
	// Name is the key under "components", e.g. "identity_credential".
	Name() string

	// Check returns nil when the subsystem can serve notifications.
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to the HealthProbe interface.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p ProbeFunc) Name() string                    { return p.ProbeName }
func (p ProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Commit     string                     `json:"commit,omitempty"`
	BuildTime  string                     `json:"build_time,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently and answers 200 when all pass,
// 503 otherwise. Mounted at GET /health in local HTTP mode.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := s.buildInfo()
	probes := s.HealthProbes
	if len(probes) == 0 {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}

	// Each probe reports on its own buffered channel so a probe that
	// outlives the deadline never blocks.
	results := make([]chan error, len(probes))
	for i, probe := range probes {
		results[i] = make(chan error, 1)
		go func(p HealthProbe, out chan<- error) {
			defer func() {
				if rvr := recover(); rvr != nil {
					out <- fmt.Errorf("probe panicked: %v", rvr)
				}
			}()
			out <- p.Check(ctx)
		}(probe, results[i])
	}

	resp.Status = "healthy"
	resp.Components = make(map[string]componentStatus, len(probes))
	for i, probe := range probes {
		status := componentStatus{Status: "healthy"}
		if err := awaitProbe(ctx, results[i]); err != nil {
			status = componentStatus{Status: "unhealthy", Message: err.Error()}
		}
		if status.Status != "healthy" {
			resp.Status = "unhealthy"
		}
		resp.Components[probe.Name()] = status
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	JSON(w, r, code, resp)
}

// awaitProbe returns the probe's result, or a timeout error once ctx is done
// and no result has arrived.
func awaitProbe(ctx context.Context, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
	}
	select {
	case err := <-result:
		return err
	default:
		return errors.New("health check timed out")
	}
}

func (s *Server) buildInfo() healthResponse {
	if s.Config == nil {
		return healthResponse{}
	}
	b := s.Config.Build
	return healthResponse{Version: b.Version, Commit: b.Commit, BuildTime: b.BuildTime}
}
