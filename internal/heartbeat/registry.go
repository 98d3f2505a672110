package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	StateStarting = "starting"
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateDisabled = "disabled"
	StateStopped  = "stopped"
	StateStale    = "stale"
)

// Reporter is implemented by Registry and handed to every long-running component.
type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	LastBeatAt time.Time `json:"last_beat_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Overall     string            `json:"overall"`
	Components  []ComponentStatus `json:"components"`
}

// Ready reports whether no component is degraded, stale or still starting.
func (s Snapshot) Ready() bool {
	return s.Overall == StateHealthy || s.Overall == "idle"
}

type Registry struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		components: map[string]ComponentStatus{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) Starting(component, message string) {
	r.update(component, StateStarting, message, nil, false)
}

func (r *Registry) Beat(component, message string) {
	r.update(component, StateHealthy, message, nil, true)
}

func (r *Registry) Degrade(component, message string, err error) {
	r.update(component, StateDegraded, message, err, false)
}

func (r *Registry) Disabled(component, message string) {
	r.update(component, StateDisabled, message, nil, false)
}

func (r *Registry) Stopped(component, message string) {
	r.update(component, StateStopped, message, nil, false)
}

func (r *Registry) update(component, state, message string, err error, beat bool) {
	name := strings.ToLower(strings.TrimSpace(component))
	if name == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	status := r.components[name]
	status.Name = name
	status.State = state
	status.Message = strings.TrimSpace(message)
	status.Error = ""
	if err != nil {
		status.Error = strings.TrimSpace(err.Error())
	}
	status.UpdatedAt = now
	if beat || status.LastBeatAt.IsZero() {
		status.LastBeatAt = now
	}
	r.components[name] = status
}

// Snapshot marks starting or healthy components without a beat for staleAfter as
// stale. staleAfter <= 0 disables the check.
func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	results := make([]ComponentStatus, 0, len(r.components))
	for _, status := range r.components {
		if staleAfter > 0 && (status.State == StateHealthy || status.State == StateStarting) &&
			now.Sub(status.LastBeatAt) > staleAfter {
			status.State = StateStale
		}
		results = append(results, status)
	}
	r.mu.RUnlock()

	sort.Slice(results, func(left, right int) bool {
		return results[left].Name < results[right].Name
	})
	return Snapshot{GeneratedAt: now, Overall: overall(results), Components: results}
}

func IsDegradedState(state string) bool {
	return state == StateDegraded || state == StateStale
}

func overall(items []ComponentStatus) string {
	if len(items) == 0 {
		return "unknown"
	}
	starting, active := false, false
	for _, item := range items {
		switch item.State {
		case StateDegraded, StateStale:
			return StateDegraded
		case StateStarting:
			starting = true
			active = true
		case StateHealthy:
			active = true
		}
	}
	switch {
	case starting:
		return StateStarting
	case active:
		return StateHealthy
	default:
		return "idle"
	}
}
