// Package jobs runs the console's periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/screening-console/internal/application"
)

// SessionPurgeSchedule is the cron schedule for removing expired sessions.
const SessionPurgeSchedule = "@hourly"

// LowStockSource lists inventory items that need reordering.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]application.InventoryItem, error)
}

// Notifier delivers a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind application.NotificationKind, title, message string, data map[string]any) (application.Notification, error)
}

// SessionPurger deletes sessions that expired before reference.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// SweepObserver records the outcome of each low-stock sweep.
type SweepObserver interface {
	ObserveSweep(lowItems int, err error)
}

// Config wires the scheduler to its collaborators. Sessions and Observer
// are optional.
type Config struct {
	LowStockSchedule string
	Location         *time.Location
	Inventory        LowStockSource
	Notifier         Notifier
	Sessions         SessionPurger
	Observer         SweepObserver
	Now              func() time.Time
	Timeout          time.Duration
}

// Scheduler owns the cron runner and the jobs registered on it.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	logger *slog.Logger
}

// New registers the jobs described by cfg. Nothing runs until Start.
func New(cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Inventory == nil || cfg.Notifier == nil {
		return nil, errors.New("jobs: inventory and notifier are required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "jobs")

	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: logger}), cron.SkipIfStillRunning(cronLogger{logger: logger})),
	)
	s := &Scheduler{cron: c, cfg: cfg, logger: logger}

	if _, err := c.AddFunc(cfg.LowStockSchedule, s.runLowStock); err != nil {
		return nil, fmt.Errorf("jobs: low stock schedule %q: %w", cfg.LowStockSchedule, err)
	}
	if cfg.Sessions != nil {
		if _, err := c.AddFunc(SessionPurgeSchedule, s.runSessionPurge); err != nil {
			return nil, fmt.Errorf("jobs: session purge schedule: %w", err)
		}
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs or ctx, whichever
// ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runLowStock() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if _, err := s.SweepLowStock(ctx); err != nil {
		s.logger.Error("low stock sweep failed", "error", err)
	}
}

func (s *Scheduler) runSessionPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if err := s.cfg.Sessions.DeleteExpiredSessions(ctx, s.cfg.Now()); err != nil {
		s.logger.Error("session purge failed", "error", err)
		return
	}
	s.logger.Info("expired sessions purged")
}

// SweepLowStock sends each owner one alert listing their items at or below
// the reorder level, and returns how many users were notified. Delivery
// failures are joined and do not stop the sweep.
func (s *Scheduler) SweepLowStock(ctx context.Context) (notified int, err error) {
	var items []application.InventoryItem
	defer func() {
		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveSweep(len(items), err)
		}
	}()

	items, err = s.cfg.Inventory.LowStock(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobs: load low stock: %w", err)
	}

	byUser := make(map[string][]application.InventoryItem)
	for _, item := range items {
		byUser[item.UserID] = append(byUser[item.UserID], item)
	}
	users := make([]string, 0, len(byUser))
	for userID := range byUser {
		users = append(users, userID)
	}
	sort.Strings(users)

	var errs []error
	for _, userID := range users {
		owned := byUser[userID]
		names := make([]string, 0, len(owned))
		parts := make([]string, 0, len(owned))
		for _, item := range owned {
			names = append(names, item.ItemName)
			parts = append(parts, fmt.Sprintf("%s (%d left)", item.ItemName, item.Quantity))
		}
		message := fmt.Sprintf("%d item(s) at or below reorder level: %s", len(owned), strings.Join(parts, ", "))
		data := map[string]any{"items": names, "count": len(owned)}
		if _, nErr := s.cfg.Notifier.Notify(ctx, userID, application.NotificationAlert, "Low Stock", message, data); nErr != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, nErr))
			continue
		}
		notified++
	}
	s.logger.InfoContext(ctx, "low stock sweep finished", "items", len(items), "users_notified", notified)
	err = errors.Join(errs...)
	return notified, err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
