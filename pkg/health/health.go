// Package health tracks server readiness and the outcome of dependency
// checks, and serves them as HTTP probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// State names reported by State.
const (
	stateNameStarting = "starting"
	stateNameReady    = "ready"
	stateNameDraining = "draining"
	stateNameDegraded = "degraded"
)

// Checker tracks readiness and named dependency checks.
// It is safe for concurrent use.
type Checker struct {
	state atomic.Int32

	mu       sync.RWMutex
	checks   map[string]CheckResult
	checkFns map[string]CheckFunc
}

// CheckFunc checks one dependency.
type CheckFunc func(context.Context) error

// recheckTimeout bounds the re-run of failing checks during a readiness
// request.
const recheckTimeout = 5 * time.Second

// CheckResult is the last outcome of a named check.
type CheckResult struct {
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	return &Checker{
		checks:   make(map[string]CheckResult),
		checkFns: make(map[string]CheckFunc),
	}
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready and no check is failing.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady && c.failing() == ""
}

// State returns the current state as a human-readable string. A ready server
// with a failing check reports "degraded".
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		if c.failing() != "" {
			return stateNameDegraded
		}
		return stateNameReady
	case stateDraining:
		return stateNameDraining
	default:
		return stateNameStarting
	}
}

// RecordCheck stores the outcome of the named check.
func (c *Checker) RecordCheck(name string, err error) {
	res := CheckResult{OK: err == nil, CheckedAt: time.Now().UTC()}
	if err != nil {
		res.Error = err.Error()
	}
	c.mu.Lock()
	c.checks[name] = res
	c.mu.Unlock()
}

// Probe runs fn and records its outcome under name. fn is kept so Recheck
// can run it again while the check is failing.
func (c *Checker) Probe(ctx context.Context, name string, fn CheckFunc) error {
	c.mu.Lock()
	c.checkFns[name] = fn
	c.mu.Unlock()

	err := fn(ctx)
	c.RecordCheck(name, err)
	return err
}

// Recheck re-runs the check functions of failing checks and records the new outcomes.
func (c *Checker) Recheck(ctx context.Context) {
	c.mu.RLock()
	due := make(map[string]CheckFunc)
	for name, res := range c.checks {
		if fn, ok := c.checkFns[name]; ok && !res.OK {
			due[name] = fn
		}
	}
	c.mu.RUnlock()

	for name, fn := range due {
		c.RecordCheck(name, fn(ctx))
	}
}

// Checks returns a copy of the recorded check results.
func (c *Checker) Checks() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]CheckResult, len(c.checks))
	for k, v := range c.checks {
		out[k] = v
	}
	return out
}

// failing returns the name of the first failing check in name order, or "".
func (c *Checker) failing() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name, res := range c.checks {
		if !res.OK {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

// healthResponse is the JSON body returned by health endpoints.
type healthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when ready
// and 503 when starting, draining or degraded. A degraded server re-runs its
// failing checks first, so it turns ready once the dependency recovers.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.State() == stateNameDegraded {
			ctx, cancel := context.WithTimeout(r.Context(), recheckTimeout)
			c.Recheck(ctx)
			cancel()
		}

		resp := healthResponse{Status: c.State(), Checks: c.Checks()}
		if c.IsReady() {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
