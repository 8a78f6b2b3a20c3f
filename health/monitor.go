package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// CheckFunc reports the current health of a component when asked.
type CheckFunc func() Status

// entry is either a pushed status or a check evaluated on read.
type entry struct {
	status Status
	check  CheckFunc
}

// Monitor tracks the health of named components. Components push a Status
// with Update or register a CheckFunc that runs on every read.
type Monitor struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{entries: make(map[string]entry)}
}

// stamp names the status after its component and dates it if needed.
func stamp(name string, s Status) Status {
	s.Component = name
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s
}

// Update stores a pushed status for name, replacing a registered check.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	m.entries[name] = entry{status: stamp(name, status)}
	m.mu.Unlock()
}

func (m *Monitor) UpdateHealthy(name, message string)   { m.Update(name, NewHealthy(name, message)) }
func (m *Monitor) UpdateUnhealthy(name, message string) { m.Update(name, NewUnhealthy(name, message)) }
func (m *Monitor) UpdateDegraded(name, message string)  { m.Update(name, NewDegraded(name, message)) }

// Register installs a check for name, replacing any earlier status or check.
func (m *Monitor) Register(name string, check CheckFunc) {
	m.mu.Lock()
	m.entries[name] = entry{check: check}
	m.mu.Unlock()
}

// Remove stops monitoring name
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.entries, name)
	m.mu.Unlock()
}

// resolve runs the check of e, if any. Called without the lock held since
// checks take component locks of their own.
func resolve(name string, e entry) Status {
	if e.check == nil {
		return e.status
	}
	return stamp(name, e.check())
}

// Get returns the status of name and whether it is monitored.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()

	if !ok {
		return Status{}, false
	}
	return resolve(name, e), true
}

// GetAll returns every component status, checks evaluated now
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	entries := make(map[string]entry, len(m.entries))
	for name, e := range m.entries {
		entries[name] = e
	}
	m.mu.RUnlock()

	result := make(map[string]Status, len(entries))
	for name, e := range entries {
		result[name] = resolve(name, e)
	}
	return result
}

// AggregateHealth aggregates every component under systemName, sub-statuses
// ordered by component name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	all := m.GetAll()

	subs := make([]Status, 0, len(all))
	for _, s := range all {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Component < subs[j].Component })
	return Aggregate(systemName, subs)
}

// Handler serves the aggregate status as JSON: 200 while serving (healthy or
// degraded), 503 when unhealthy.
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.AggregateHealth(systemName)

		code := http.StatusOK
		if !status.Serving() {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
