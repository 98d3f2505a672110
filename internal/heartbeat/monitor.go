package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

type Transition struct {
	Component string
	FromState string
	ToState   string
	Message   string
	Error     string
}

type MonitorConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Logger     *slog.Logger
}

// Monitor samples the registry and logs state transitions. Entering a degraded
// state is logged at error level so it reaches the admin chats.
type Monitor struct {
	registry   *Registry
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
	previous   map[string]string
}

func NewMonitor(registry *Registry, cfg MonitorConfig) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry:   registry,
		interval:   interval,
		staleAfter: cfg.StaleAfter,
		logger:     logger,
		previous:   map[string]string{},
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	if m.registry == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.logger.Info("heartbeat monitor started", "interval", m.interval.String(), "stale_after", m.staleAfter.String())
	for {
		m.Check()
		select {
		case <-ctx.Done():
			m.logger.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Check compares the current snapshot with the previous one and logs every change.
func (m *Monitor) Check() []Transition {
	snapshot := m.registry.Snapshot(m.staleAfter)
	transitions := []Transition{}
	for _, item := range snapshot.Components {
		before, seen := m.previous[item.Name]
		m.previous[item.Name] = item.State
		if !seen || before == item.State {
			continue
		}
		transition := Transition{
			Component: item.Name,
			FromState: before,
			ToState:   item.State,
			Message:   item.Message,
			Error:     item.Error,
		}
		transitions = append(transitions, transition)
		m.log(transition)
	}
	return transitions
}

func (m *Monitor) log(transition Transition) {
	attrs := []any{
		"component", transition.Component,
		"from_state", transition.FromState,
		"to_state", transition.ToState,
		"message", transition.Message,
	}
	if transition.Error != "" {
		attrs = append(attrs, "error", transition.Error)
	}
	switch {
	case IsDegradedState(transition.ToState):
		m.logger.Error("component degraded", attrs...)
	case IsDegradedState(transition.FromState):
		m.logger.Info("component recovered", attrs...)
	default:
		m.logger.Debug("component state changed", attrs...)
	}
}
