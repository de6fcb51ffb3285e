package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one upstream dependency.
type Health struct {
	Name          string
	State         gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Status summarizes the breaker state as "ok", "degraded" or "down".
func (h *Health) Status() string {
	switch h.State {
	case gobreaker.StateClosed:
		return "ok"
	case gobreaker.StateHalfOpen:
		return "degraded"
	default:
		return "down"
	}
}

// Registry tracks upstream dependencies and their last outcomes.
type Registry struct {
	mu    sync.RWMutex
	deps  map[string]*tracked
	clock clock.Clock
}

type tracked struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates a new dependency registry. A nil clock uses the wall clock.
func NewRegistry(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Registry{
		deps:  make(map[string]*tracked),
		clock: clk,
	}
}

// Register adds a client. Registering a name again replaces the client.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps[c.Name()] = &tracked{client: c}
}

// RecordSuccess notes a successful call to the named dependency.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deps[name]; ok {
		now := r.clock.Now()
		d.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed call to the named dependency.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deps[name]; ok {
		now := r.clock.Now()
		d.lastFailureAt = &now
		if err != nil {
			d.lastError = err.Error()
		}
	}
}

// Health returns the health of the named dependency, or nil if unknown.
func (r *Registry) Health(name string) *Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deps[name]
	if !ok {
		return nil
	}
	return d.health(name)
}

// All returns the health of every dependency, sorted by name.
func (r *Registry) All() []*Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Health, 0, len(r.deps))
	for name, d := range r.deps {
		out = append(out, d.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *tracked) health(name string) *Health {
	return &Health{
		Name:          name,
		State:         d.client.State(),
		Counts:        d.client.Counts(),
		LastSuccessAt: d.lastSuccessAt,
		LastFailureAt: d.lastFailureAt,
		LastError:     d.lastError,
	}
}
