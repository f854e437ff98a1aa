// Package monitor implements the Proactive Monitor (C11): a set of pure
// scanner functions run on a cron-style interval, producing Alerts that
// are published onto the Event Bus.
package monitor

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/osa/runtime/internal/eventbus"
	"github.com/osa/runtime/internal/observability"
	"github.com/osa/runtime/pkg/models"
)

// DefaultInterval is the default scan cadence.
const DefaultInterval = "@every 30m"

// DefaultMaxAlerts bounds the retained alert ring buffer.
const DefaultMaxAlerts = 50

// Scanner inspects runtime/persisted state and returns any Alerts found.
// A Scanner must not block indefinitely; it receives ctx for cancellation.
type Scanner func(ctx context.Context) ([]models.Alert, error)

// NamedScanner pairs a Scanner with a label used in logs when it fails.
type NamedScanner struct {
	Name    string
	Scanner Scanner
}

// Config configures a Monitor.
type Config struct {
	Scanners  []NamedScanner
	Interval  string // robfig/cron schedule spec; defaults to DefaultInterval.
	MaxAlerts int
	Bus       *eventbus.Bus
	Logger    *observability.Logger
}

// Monitor runs its scanners on a schedule and retains a bounded, most-
// recent window of Alerts.
type Monitor struct {
	cfg    Config
	cron   *cron.Cron
	logger *observability.Logger

	alerts []models.Alert
}

// New creates a Monitor. Call Start to begin scheduled scanning.
func New(cfg Config) *Monitor {
	if cfg.Interval == "" {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = DefaultMaxAlerts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Monitor{cfg: cfg, logger: logger}
}

// Start schedules the recurring scan. It is not safe to call twice.
func (m *Monitor) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(m.cfg.Interval, func() { m.scan(ctx) }); err != nil {
		return fmt.Errorf("schedule proactive monitor: %w", err)
	}
	m.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for any in-flight scan to finish.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
}

// ScanNow runs every scanner immediately, independent of the schedule.
// Exposed so callers (and tests) can trigger a pass without waiting.
func (m *Monitor) ScanNow(ctx context.Context) []models.Alert {
	return m.scan(ctx)
}

// Alerts returns the currently retained alert window, oldest first.
func (m *Monitor) Alerts() []models.Alert {
	out := make([]models.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

func (m *Monitor) scan(ctx context.Context) []models.Alert {
	var found []models.Alert
	for _, named := range m.cfg.Scanners {
		found = append(found, m.runOne(ctx, named)...)
	}
	if len(found) == 0 {
		return nil
	}

	m.retain(found)
	if m.cfg.Bus != nil {
		m.cfg.Bus.Publish(models.TopicProactiveAlerts, "", map[string]any{
			"count":  len(found),
			"alerts": found,
		})
	}
	return found
}

// runOne isolates a single scanner's failure: a panic or error never
// aborts the pass, and that scanner simply contributes no alerts.
func (m *Monitor) runOne(ctx context.Context, named NamedScanner) (alerts []models.Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(ctx, "proactive scanner panicked", "scanner", named.Name, "recovered", r)
			alerts = nil
		}
	}()

	result, err := named.Scanner(ctx)
	if err != nil {
		m.logger.Error(ctx, "proactive scanner failed", "scanner", named.Name, "error", err)
		return nil
	}
	return result
}

// retain appends found to the ring buffer, evicting the oldest entries
// once MaxAlerts is exceeded.
func (m *Monitor) retain(found []models.Alert) {
	m.alerts = append(m.alerts, found...)
	if overflow := len(m.alerts) - m.cfg.MaxAlerts; overflow > 0 {
		m.alerts = m.alerts[overflow:]
	}
}
