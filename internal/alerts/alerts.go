package alerts

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
	SeveritySuccess Severity = "SUCCESS"
)

// Normalize upper-cases the severity and falls back to INFO when empty.
func (s Severity) Normalize() Severity {
	n := Severity(strings.ToUpper(strings.TrimSpace(string(s))))
	if n == "" {
		return SeverityInfo
	}
	return n
}

const (
	historySize     = 20
	deliveryTimeout = 10 * time.Second
)

// Alert is one dispatched notification.
type Alert struct {
	Event     string         `json:"event"`
	Message   string         `json:"message"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Channel delivers alerts to an external destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, alert Alert) error
}

// Manager throttles alerts per event and fans them out to its channels.
// Every accepted alert is also written to the log.
type Manager struct {
	mu       sync.Mutex
	enabled  bool
	cooldown time.Duration
	lastSent map[string]time.Time
	history  []Alert
	channels []Channel
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates an alert manager. A negative cooldown is treated as zero.
func NewManager(enabled bool, cooldown time.Duration, logger *zap.Logger, channels ...Channel) *Manager {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Manager{
		enabled:  enabled,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
		channels: channels,
		logger:   logger.Named("alerts"),
		now:      time.Now,
	}
}

// Send dispatches an alert unless alerts are disabled or the event is cooling down.
// Delivery failures are logged and never returned.
func (m *Manager) Send(event, message string, severity Severity, details map[string]any) {
	alert, ok := m.accept(event, message, severity, details)
	if !ok {
		return
	}

	m.log(alert)

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	for _, ch := range m.channels {
		if err := ch.Deliver(ctx, alert); err != nil {
			m.logger.Warn("Failed to deliver alert",
				zap.String("channel", ch.Name()),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) accept(event, message string, severity Severity, details map[string]any) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		m.logger.Debug("Alerts disabled, dropping alert", zap.String("event", event))
		return Alert{}, false
	}

	now := m.now()
	if last, ok := m.lastSent[event]; ok && now.Sub(last) < m.cooldown {
		m.logger.Debug("Alert throttled", zap.String("event", event))
		return Alert{}, false
	}
	m.lastSent[event] = now

	alert := Alert{
		Event:     event,
		Message:   message,
		Severity:  severity.Normalize(),
		Details:   details,
		Timestamp: now.UTC(),
	}
	m.history = append(m.history, alert)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
	return alert, true
}

func (m *Manager) log(alert Alert) {
	fields := []zap.Field{zap.String("event", alert.Event), zap.Any("details", alert.Details)}
	switch alert.Severity {
	case SeverityError:
		m.logger.Error(alert.Message, fields...)
	case SeverityWarning:
		m.logger.Warn(alert.Message, fields...)
	default:
		m.logger.Info(alert.Message, fields...)
	}
}

// Enable turns alert dispatch on.
func (m *Manager) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
}

// Disable turns alert dispatch off.
func (m *Manager) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

// Enabled reports whether alerts are dispatched.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// History returns the most recent alerts, oldest first.
func (m *Manager) History() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.history...)
}

// Status summarises the alert configuration for operators.
type Status struct {
	Enabled  bool          `json:"enabled"`
	Channels []string      `json:"channels"`
	Cooldown time.Duration `json:"cooldown"`
	Recent   []Alert       `json:"recent_alerts"`
}

// Status returns the manager state with the last five alerts.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := []string{"log"}
	for _, ch := range m.channels {
		channels = append(channels, ch.Name())
	}
	recent := m.history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	return Status{
		Enabled:  m.enabled,
		Channels: channels,
		Cooldown: m.cooldown,
		Recent:   append([]Alert(nil), recent...),
	}
}
