// Package notification stores and dispatches the deadline alerts
// raised by the dispute monitor. Every event is recorded in-app;
// high-priority events additionally fan out to email and, when
// configured, a signed webhook.
package notification

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/appealflow/appealflow/pkg/clock"
	"github.com/appealflow/appealflow/pkg/pagination"
)

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Event categories, one per deadline flag type.
const (
	CategoryWarning = "deadline_warning"
	CategoryUrgent  = "deadline_urgent"
	CategoryOverdue = "deadline_overdue"
)

// Event priorities. High priority fans out beyond the in-app store.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Event is one deadline alert addressed to one recipient.
type Event struct {
	DisputeID       uuid.UUID `json:"dispute_id"`
	RecipientUserID uuid.UUID `json:"recipient_user_id"`
	Category        string    `json:"category"`
	Message         string    `json:"message"`
	Priority        string    `json:"priority"`
}

// ---------------------------------------------------------------------------
// Notification store
// ---------------------------------------------------------------------------

// Notification is a stored, per-recipient copy of an event.
type Notification struct {
	ID              uuid.UUID  `json:"id"`
	DisputeID       uuid.UUID  `json:"dispute_id"`
	RecipientUserID uuid.UUID  `json:"recipient_user_id"`
	Category        string     `json:"category"`
	Message         string     `json:"message"`
	Priority        string     `json:"priority"`
	Read            bool       `json:"read"`
	CreatedAt       time.Time  `json:"created_at"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
}

// Store is a thread-safe in-memory notification store. Insertion order
// is kept so listings can run newest first.
type Store struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Notification
	order []uuid.UUID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[uuid.UUID]*Notification)}
}

// Add records a notification.
func (s *Store) Add(n *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[n.ID] = n
	s.order = append(s.order, n.ID)
}

// Get returns a notification by id.
func (s *Store) Get(id uuid.UUID) (*Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[id]
	return n, ok
}

// MarkRead marks a notification read. Returns false when the id is
// unknown; marking an already-read notification is a no-op success.
func (s *Store) MarkRead(id uuid.UUID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return false
	}
	if !n.Read {
		n.Read = true
		t := now
		n.ReadAt = &t
	}
	return true
}

// ListByRecipient returns the recipient's notifications newest first,
// with the total count before pagination.
func (s *Store) ListByRecipient(userID uuid.UUID, limit, offset int) ([]*Notification, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Notification
	for i := len(s.order) - 1; i >= 0; i-- {
		n := s.byID[s.order[i]]
		if n != nil && n.RecipientUserID == userID {
			matched = append(matched, n)
		}
	}
	total := len(matched)
	if offset >= total {
		return []*Notification{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages. The `to`
// argument is the recipient user id; address resolution is the
// implementation's concern.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// WebhookSender delivers a JSON payload to an external endpoint.
type WebhookSender interface {
	Deliver(ctx context.Context, payload interface{}) error
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

var emailSubjects = map[string]string{
	CategoryWarning: "Dispute deadline approaching",
	CategoryUrgent:  "Dispute deadline urgent",
	CategoryOverdue: "Dispute deadline overdue",
}

// Dispatcher routes deadline events. Every event lands in the store;
// high-priority events also go out through email and the webhook.
// Delivery failures are logged and never propagated to the caller.
type Dispatcher struct {
	store   *Store
	email   EmailSender
	webhook WebhookSender
	clk     clock.Clock
	logger  zerolog.Logger
}

// NewDispatcher constructs a Dispatcher. Email and webhook senders are
// optional; pass nil to disable a channel.
func NewDispatcher(store *Store, email EmailSender, webhook WebhookSender, clk clock.Clock, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: store, email: email, webhook: webhook, clk: clk, logger: logger}
}

// Notify stores the event and fans it out per its priority.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) error {
	n := &Notification{
		ID:              uuid.New(),
		DisputeID:       ev.DisputeID,
		RecipientUserID: ev.RecipientUserID,
		Category:        ev.Category,
		Message:         ev.Message,
		Priority:        ev.Priority,
		CreatedAt:       d.clk.Now(),
	}
	d.store.Add(n)

	if ev.Priority != PriorityHigh {
		return nil
	}

	subject, ok := emailSubjects[ev.Category]
	if !ok {
		subject = "Dispute deadline alert"
	}
	if d.email != nil {
		if err := d.email.SendEmail(ctx, ev.RecipientUserID.String(), subject, ev.Message); err != nil {
			d.logger.Error().Err(err).
				Str("dispute", ev.DisputeID.String()).
				Str("recipient", ev.RecipientUserID.String()).
				Msg("failed to send notification email")
		}
	}
	if d.webhook != nil {
		if err := d.webhook.Deliver(ctx, ev); err != nil {
			d.logger.Error().Err(err).
				Str("dispute", ev.DisputeID.String()).
				Msg("failed to deliver notification webhook")
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes the notification read surface over HTTP via Echo.
type Handler struct {
	store *Store
}

// NewHandler creates a new Handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the notification routes on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.POST("/notifications/:id/read", h.MarkRead)
}

// List handles GET /notifications?recipient_id=...
func (h *Handler) List(c echo.Context) error {
	recipient := c.QueryParam("recipient_id")
	if recipient == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recipient_id query parameter is required"})
	}
	userID, err := uuid.Parse(recipient)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid recipient_id"})
	}
	pg := pagination.FromContext(c)
	items, total := h.store.ListByRecipient(userID, pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// MarkRead handles POST /notifications/:id/read.
func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	if !h.store.MarkRead(id, time.Now().UTC()) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "notification not found"})
	}
	n, _ := h.store.Get(id)
	return c.JSON(http.StatusOK, n)
}
