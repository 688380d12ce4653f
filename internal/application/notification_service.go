package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/screening-console/internal/persistence"
)

// NotificationListLimit caps how many notifications List returns.
const NotificationListLimit = 50

// NotificationSink receives notifications raised by other services.
type NotificationSink interface {
	Notify(ctx context.Context, userID string, kind NotificationKind, title, message string, data map[string]any) (Notification, error)
}

// NotificationListener is called after a notification was stored.
type NotificationListener func(Notification)

// NotificationService stores per-user notifications and broadcasts new ones.
type NotificationService struct {
	store  persistence.DocumentStore
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]NotificationListener
}

var _ NotificationSink = (*NotificationService)(nil)

// NewNotificationService constructs a NotificationService.
func NewNotificationService(store persistence.DocumentStore, now func() time.Time) *NotificationService {
	return NewNotificationServiceWithLogger(store, now, nil)
}

// NewNotificationServiceWithLogger constructs a NotificationService with a specified logger.
func NewNotificationServiceWithLogger(store persistence.DocumentStore, now func() time.Time, logger *slog.Logger) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		store:     store,
		now:       now,
		logger:    defaultLogger(logger),
		listeners: make(map[int]NotificationListener),
	}
}

func (s *NotificationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NotificationService", operation, attrs...)
}

// Subscribe registers fn for every stored notification and returns a func
// that removes it. Calling the returned func more than once is harmless.
func (s *NotificationService) Subscribe(fn NotificationListener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *NotificationService) broadcast(ctx context.Context, n Notification) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]NotificationListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.loggerWith(ctx, "broadcast").ErrorContext(ctx, "notification listener panicked", "panic", r)
				}
			}()
			fn(n)
		}()
	}
}

// Notify stores a notification for userID and broadcasts it.
func (s *NotificationService) Notify(ctx context.Context, userID string, kind NotificationKind, title, message string, data map[string]any) (n Notification, err error) {
	if s == nil {
		err = fmt.Errorf("NotificationService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Notify", "user_id", userID, "kind", string(kind))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "notify failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "notification stored", "notification_id", n.ID)
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(userID) == "" {
		vErr.add("userId", "A recipient is required.")
	}
	switch kind {
	case NotificationInventory, NotificationEvent, NotificationAlert, NotificationInfo:
	case "":
		kind = NotificationInfo
	default:
		vErr.add("type", fmt.Sprintf("Unsupported notification type: %s", kind))
	}
	if strings.TrimSpace(title) == "" {
		vErr.add("title", "Title is required.")
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	if data == nil {
		data = map[string]any{}
	}
	n = Notification{
		UserID:    userID,
		Kind:      kind,
		Title:     strings.TrimSpace(title),
		Message:   message,
		Data:      data,
		CreatedAt: s.now(),
	}

	var id string
	id, err = s.store.Add(ctx, persistence.CollectionNotifications, encodeNotification(n))
	if err != nil {
		err = fmt.Errorf("add notification: %w", err)
		return
	}
	n.ID = id

	s.broadcast(ctx, n)
	return
}

// List returns the newest notifications for principal, capped at NotificationListLimit.
func (s *NotificationService) List(ctx context.Context, principal Principal) (out []Notification, err error) {
	if s == nil {
		err = fmt.Errorf("NotificationService is nil")
		return
	}
	logger := s.loggerWith(ctx, "List", "user_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "list notifications failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	all, err := s.load(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if len(all) > NotificationListLimit {
		all = all[:NotificationListLimit]
	}
	return all, nil
}

// UnreadCount returns how many of the user's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, principal Principal) (int, error) {
	all, err := s.load(ctx, principal.UserID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range all {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}
	logger := s.loggerWith(ctx, "MarkRead", "user_id", principal.UserID, "notification_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "mark read failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if _, err = s.owned(ctx, principal, id); err != nil {
		return err
	}
	return s.markRead(ctx, id)
}

// MarkAllRead flags every unread notification of the user as read and
// returns how many were updated.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal Principal) (updated int, err error) {
	if s == nil {
		err = fmt.Errorf("NotificationService is nil")
		return
	}
	logger := s.loggerWith(ctx, "MarkAllRead", "user_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "mark all read failed", "error", err, "error_kind", ErrorKind(err), "updated", updated)
			return
		}
		logger.InfoContext(ctx, "notifications marked read", "updated", updated)
	}()

	docs, err := s.store.Query(ctx, persistence.CollectionNotifications,
		persistence.Where("userId", principal.UserID),
		persistence.Where("isRead", false),
	)
	if err != nil {
		err = fmt.Errorf("query notifications: %w", err)
		return
	}
	for _, doc := range docs {
		if err = s.markRead(ctx, doc.ID); err != nil {
			return
		}
		updated++
	}
	return
}

// Delete removes one notification.
func (s *NotificationService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}
	logger := s.loggerWith(ctx, "Delete", "user_id", principal.UserID, "notification_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "delete notification failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if _, err = s.owned(ctx, principal, id); err != nil {
		return err
	}
	if err = s.store.Delete(ctx, persistence.CollectionNotifications, id); err != nil {
		return translateStoreError("delete notification", err)
	}
	return nil
}

func (s *NotificationService) markRead(ctx context.Context, id string) error {
	patch := persistence.Fields{
		"isRead": true,
		"readAt": persistence.FormatTime(s.now()),
	}
	if err := s.store.Update(ctx, persistence.CollectionNotifications, id, patch); err != nil {
		return translateStoreError("mark notification read", err)
	}
	return nil
}

func (s *NotificationService) owned(ctx context.Context, principal Principal, id string) (Notification, error) {
	doc, err := s.store.Get(ctx, persistence.CollectionNotifications, id)
	if err != nil {
		return Notification{}, translateStoreError("get notification", err)
	}
	n := decodeNotification(doc)
	if n.UserID != principal.UserID {
		return Notification{}, ErrUnauthorized
	}
	return n, nil
}

func (s *NotificationService) load(ctx context.Context, userID string) ([]Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
	docs, err := s.store.Query(ctx, persistence.CollectionNotifications, persistence.Where("userId", userID))
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	out := make([]Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeNotification(doc))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func encodeNotification(n Notification) persistence.Fields {
	return persistence.Fields{
		"userId":    n.UserID,
		"type":      string(n.Kind),
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"isRead":    n.IsRead,
		"createdAt": persistence.FormatTime(n.CreatedAt),
		"readAt":    nil,
	}
}

func decodeNotification(doc persistence.Document) Notification {
	f := doc.Fields
	n := Notification{
		ID:        doc.ID,
		UserID:    f.Text("userId"),
		Kind:      NotificationKind(f.Text("type")),
		Title:     f.Text("title"),
		Message:   f.Text("message"),
		Data:      f.Map("data"),
		IsRead:    f.Bool("isRead"),
		CreatedAt: f.Time("createdAt"),
	}
	if readAt := f.Time("readAt"); !readAt.IsZero() {
		n.ReadAt = &readAt
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	return n
}
