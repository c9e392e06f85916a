// Package health aggregates component health for the /health endpoint
package health

import (
	"sort"
	"sync"
	"time"
)

// Status represents overall system health
type Status struct {
	Status        string           `json:"status"` // ok, degraded, unhealthy
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Components    map[string]Check `json:"components"`
}

// Check represents a component health check
type Check struct {
	Healthy   bool      `json:"healthy"`
	Critical  bool      `json:"critical,omitempty"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// Probe reports a component's health when the status is requested.
type Probe func() (healthy bool, message string)

type probe struct {
	fn       Probe
	critical bool
}

// Checker tracks health of system components. Components are either pushed
// with SetComponent or pulled through registered probes.
type Checker struct {
	mu         sync.RWMutex
	version    string
	startTime  time.Time
	components map[string]Check
	probes     map[string]probe
}

// NewChecker creates a new health checker
func NewChecker(version string) *Checker {
	return &Checker{
		version:    version,
		startTime:  time.Now(),
		components: make(map[string]Check),
		probes:     make(map[string]probe),
	}
}

// SetComponent updates a component's health status
func (c *Checker) SetComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = Check{
		Healthy:   healthy,
		Critical:  c.components[name].Critical,
		Message:   message,
		LastCheck: time.Now(),
	}
}

// Register adds a probe. A failing critical component makes the whole
// status unhealthy rather than degraded.
func (c *Checker) Register(name string, fn Probe, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe{fn: fn, critical: critical}
}

// GetStatus runs the probes and returns the overall health status
func (c *Checker) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for name, p := range c.probes {
		healthy, msg := p.fn()
		c.components[name] = Check{
			Healthy:   healthy,
			Critical:  p.critical,
			Message:   msg,
			LastCheck: now,
		}
	}

	status := "ok"
	components := make(map[string]Check, len(c.components))
	for name, check := range c.components {
		components[name] = check
		if check.Healthy {
			continue
		}
		if check.Critical {
			status = "unhealthy"
		} else if status == "ok" {
			status = "degraded"
		}
	}

	return Status{
		Status:        status,
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Components:    components,
	}
}

// IsHealthy returns true if all components are healthy
func (c *Checker) IsHealthy() bool {
	return c.GetStatus().Status == "ok"
}

// Failing returns the names of unhealthy components, sorted
func (c *Checker) Failing() []string {
	var out []string
	for name, check := range c.GetStatus().Components {
		if !check.Healthy {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
