package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/screening-console/internal/supplies"
)

// SupplyInventory is the inventory access the ledger needs.
type SupplyInventory interface {
	FindByName(ctx context.Context, userID, itemName string) (InventoryItem, bool, error)
	AdjustQuantity(ctx context.Context, item InventoryItem, quantity int) (InventoryItem, error)
}

// DeductionObserver is told about every applied deduction.
type DeductionObserver interface {
	ObserveDeduction(itemName string, quantity int)
}

// Deduction records one consumed supply line.
type Deduction struct {
	ItemName    string `json:"itemName"`
	Deducted    int    `json:"deducted"`
	NewQuantity int    `json:"newQuantity"`
}

// DeductionReport lists what a completed event consumed.
type DeductionReport struct {
	EventID    string      `json:"eventId"`
	Deductions []Deduction `json:"deductions"`
	Skipped    []string    `json:"skipped,omitempty"`
}

// Applied reports whether at least one item was deducted.
func (r *DeductionReport) Applied() bool {
	return r != nil && len(r.Deductions) > 0
}

// DeductionError aggregates the per-item failures of a deduction run. The
// items that succeeded stay deducted.
type DeductionError struct {
	EventID string
	Failed  []string
	Err     error
}

// Error implements the error interface.
func (e *DeductionError) Error() string {
	return fmt.Sprintf("supply deduction for event %s failed for %s: %v", e.EventID, strings.Join(e.Failed, ", "), e.Err)
}

// Unwrap exposes the joined item errors.
func (e *DeductionError) Unwrap() error {
	return e.Err
}

// SupplyLedger deducts consumables from inventory when a drug test is completed.
type SupplyLedger struct {
	inventory SupplyInventory
	notifier  NotificationSink
	catalog   supplies.Catalog
	observer  DeductionObserver
	logger    *slog.Logger
}

// NewSupplyLedger constructs a SupplyLedger using catalog.
func NewSupplyLedger(inventory SupplyInventory, notifier NotificationSink, catalog supplies.Catalog) *SupplyLedger {
	return NewSupplyLedgerWithLogger(inventory, notifier, catalog, nil)
}

// NewSupplyLedgerWithLogger constructs a SupplyLedger with a specified logger.
func NewSupplyLedgerWithLogger(inventory SupplyInventory, notifier NotificationSink, catalog supplies.Catalog, logger *slog.Logger) *SupplyLedger {
	return &SupplyLedger{
		inventory: inventory,
		notifier:  notifier,
		catalog:   catalog,
		logger:    defaultLogger(logger),
	}
}

// WithObserver attaches an observer that sees every applied deduction.
func (l *SupplyLedger) WithObserver(observer DeductionObserver) *SupplyLedger {
	l.observer = observer
	return l
}

// Catalog returns the active supply catalog.
func (l *SupplyLedger) Catalog() supplies.Catalog {
	return l.catalog
}

func (l *SupplyLedger) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, l.logger, "SupplyLedger", operation, attrs...)
}

type supplyLine struct {
	itemName string
	quantity int
}

// resolve maps the event's test types to supply lines. Lines for the same
// item are summed. Unknown test types are returned separately.
func (l *SupplyLedger) resolve(testTypes []string) (lines []supplyLine, unsupported []string) {
	index := make(map[string]int)
	for _, t := range testTypes {
		reqs, ok := l.catalog.Requirements(t)
		if !ok {
			unsupported = append(unsupported, t)
			continue
		}
		for _, r := range reqs {
			if i, seen := index[r.ItemName]; seen {
				lines[i].quantity += r.Quantity
				continue
			}
			index[r.ItemName] = len(lines)
			lines = append(lines, supplyLine{itemName: r.ItemName, quantity: r.Quantity})
		}
	}
	return lines, unsupported
}

// Deduct consumes the supplies of a completed drug test. It does nothing for
// events that are not completed drug tests or were no-shows. Every line is
// attempted; failures are returned as a *DeductionError next to the partial
// report.
func (l *SupplyLedger) Deduct(ctx context.Context, event CalendarEvent) (report *DeductionReport, err error) {
	if l == nil {
		err = fmt.Errorf("SupplyLedger is nil")
		return
	}
	report = &DeductionReport{EventID: event.ID, Deductions: []Deduction{}}
	if !event.Completed() {
		return
	}

	logger := l.loggerWith(ctx, "Deduct",
		"event_id", event.ID,
		"user_id", event.UserID,
		"catalog", l.catalog.Name,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "supply deduction incomplete", "error", err, "error_kind", ErrorKind(err), "applied", len(report.Deductions))
			return
		}
		logger.InfoContext(ctx, "supply deduction finished", "applied", len(report.Deductions), "skipped", len(report.Skipped))
	}()

	lines, unsupported := l.resolve(event.TestTypes)
	for _, t := range unsupported {
		logger.WarnContext(ctx, "no supplies configured for test type", "test_type", t)
	}

	var failures []error
	var failed []string
	for _, line := range lines {
		item, found, findErr := l.inventory.FindByName(ctx, event.UserID, line.itemName)
		if findErr != nil {
			failures = append(failures, fmt.Errorf("%s: %w", line.itemName, findErr))
			failed = append(failed, line.itemName)
			continue
		}
		if !found {
			report.Skipped = append(report.Skipped, line.itemName)
			continue
		}

		newQuantity := max(0, item.Quantity-line.quantity)
		updated, adjErr := l.inventory.AdjustQuantity(ctx, item, newQuantity)
		if adjErr != nil {
			failures = append(failures, fmt.Errorf("%s: %w", line.itemName, adjErr))
			failed = append(failed, line.itemName)
			continue
		}

		report.Deductions = append(report.Deductions, Deduction{
			ItemName:    line.itemName,
			Deducted:    line.quantity,
			NewQuantity: updated.Quantity,
		})
		if l.observer != nil {
			l.observer.ObserveDeduction(line.itemName, item.Quantity-updated.Quantity)
		}
	}

	if report.Applied() {
		l.notify(ctx, event, report)
	}

	if len(failures) > 0 {
		err = &DeductionError{EventID: event.ID, Failed: failed, Err: errors.Join(failures...)}
	}
	return
}

// DeductionMessage renders the notification text for a report, for example
// "Supplies deducted for urine: Urine Test Cups (-1, now 9)".
func DeductionMessage(testTypes []string, report *DeductionReport) string {
	parts := make([]string, 0, len(report.Deductions))
	for _, d := range report.Deductions {
		parts = append(parts, fmt.Sprintf("%s (-%d, now %d)", d.ItemName, d.Deducted, d.NewQuantity))
	}
	return fmt.Sprintf("Supplies deducted for %s: %s", strings.Join(testTypes, ", "), strings.Join(parts, ", "))
}

func (l *SupplyLedger) notify(ctx context.Context, event CalendarEvent, report *DeductionReport) {
	if l.notifier == nil {
		return
	}
	updated := make([]any, 0, len(report.Deductions))
	for _, d := range report.Deductions {
		updated = append(updated, map[string]any{
			"itemName":    d.ItemName,
			"deducted":    d.Deducted,
			"newQuantity": d.NewQuantity,
		})
	}
	testTypes := make([]any, 0, len(event.TestTypes))
	for _, t := range event.TestTypes {
		testTypes = append(testTypes, t)
	}
	data := map[string]any{
		"eventId":      event.ID,
		"eventType":    string(event.EventType),
		"testTypes":    testTypes,
		"clientName":   event.ClientName,
		"updatedItems": updated,
	}

	if _, err := l.notifier.Notify(ctx, event.UserID, NotificationInventory, "Inventory Updated", DeductionMessage(event.TestTypes, report), data); err != nil {
		l.loggerWith(ctx, "notify", "event_id", event.ID).WarnContext(ctx, "deduction notification failed", "error", err)
	}
}
