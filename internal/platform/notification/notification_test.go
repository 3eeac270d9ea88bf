package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/appealflow/appealflow/pkg/clock"
)

var testTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func testNotification(recipient uuid.UUID) *Notification {
	return &Notification{
		ID:              uuid.New(),
		DisputeID:       uuid.New(),
		RecipientUserID: recipient,
		Category:        CategoryUrgent,
		Message:         "Response deadline is only 2 day(s) away",
		Priority:        PriorityNormal,
		CreatedAt:       testTime,
	}
}

type mockWebhookSender struct {
	mu       sync.Mutex
	payloads []interface{}
	err      error
}

func (m *mockWebhookSender) Deliver(_ context.Context, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockWebhookSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

// ---------------------------------------------------------------------------
// Store Tests
// ---------------------------------------------------------------------------

func TestStore_AddAndGet(t *testing.T) {
	s := NewStore()
	n := testNotification(uuid.New())
	s.Add(n)

	got, ok := s.Get(n.ID)
	if !ok {
		t.Fatal("notification not found after Add")
	}
	if got.Message != n.Message {
		t.Errorf("message = %q, want %q", got.Message, n.Message)
	}
	if _, ok := s.Get(uuid.New()); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestStore_MarkRead(t *testing.T) {
	s := NewStore()
	n := testNotification(uuid.New())
	s.Add(n)

	first := testTime.Add(time.Hour)
	if !s.MarkRead(n.ID, first) {
		t.Fatal("expected MarkRead to succeed")
	}
	got, _ := s.Get(n.ID)
	if !got.Read || got.ReadAt == nil || !got.ReadAt.Equal(first) {
		t.Errorf("read state = %v/%v, want true/%v", got.Read, got.ReadAt, first)
	}

	// Re-reading keeps the original timestamp.
	if !s.MarkRead(n.ID, first.Add(time.Hour)) {
		t.Error("marking an already-read notification should still report success")
	}
	got, _ = s.Get(n.ID)
	if !got.ReadAt.Equal(first) {
		t.Errorf("ReadAt moved to %v, want %v", got.ReadAt, first)
	}

	if s.MarkRead(uuid.New(), first) {
		t.Error("unknown id should report failure")
	}
}

func TestStore_ListByRecipient_NewestFirst(t *testing.T) {
	s := NewStore()
	user := uuid.New()
	first := testNotification(user)
	second := testNotification(user)
	third := testNotification(user)
	other := testNotification(uuid.New())
	for _, n := range []*Notification{first, other, second, third} {
		s.Add(n)
	}

	items, total := s.ListByRecipient(user, 10, 0)
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	wantOrder := []uuid.UUID{third.ID, second.ID, first.ID}
	for i, want := range wantOrder {
		if items[i].ID != want {
			t.Errorf("item %d: not newest-first", i)
		}
	}
}

func TestStore_ListByRecipient_Pagination(t *testing.T) {
	s := NewStore()
	user := uuid.New()
	for i := 0; i < 5; i++ {
		s.Add(testNotification(user))
	}

	page, total := s.ListByRecipient(user, 2, 0)
	if total != 5 || len(page) != 2 {
		t.Errorf("first page = %d of %d, want 2 of 5", len(page), total)
	}
	page, _ = s.ListByRecipient(user, 2, 4)
	if len(page) != 1 {
		t.Errorf("last page = %d items, want 1", len(page))
	}
	page, total = s.ListByRecipient(user, 2, 99)
	if total != 5 || page == nil || len(page) != 0 {
		t.Errorf("out-of-range page should be empty, got %v", page)
	}
}

// ---------------------------------------------------------------------------
// Dispatcher Tests
// ---------------------------------------------------------------------------

func newTestDispatcher() (*Dispatcher, *Store, *MockEmailSender, *mockWebhookSender) {
	store := NewStore()
	email := &MockEmailSender{}
	webhook := &mockWebhookSender{}
	d := NewDispatcher(store, email, webhook, clock.NewFake(testTime), zerolog.Nop())
	return d, store, email, webhook
}

func TestDispatcher_NormalPriorityStoresOnly(t *testing.T) {
	d, store, email, webhook := newTestDispatcher()
	ev := Event{
		DisputeID:       uuid.New(),
		RecipientUserID: uuid.New(),
		Category:        CategoryWarning,
		Message:         "deadline in 5 day(s)",
		Priority:        PriorityNormal,
	}

	if err := d.Notify(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total := store.ListByRecipient(ev.RecipientUserID, 10, 0)
	if total != 1 {
		t.Fatalf("stored %d notifications, want 1", total)
	}
	if !items[0].CreatedAt.Equal(testTime) {
		t.Errorf("CreatedAt = %v, want %v", items[0].CreatedAt, testTime)
	}
	if len(email.Calls()) != 0 {
		t.Error("normal priority must not email")
	}
	if webhook.count() != 0 {
		t.Error("normal priority must not hit the webhook")
	}
}

func TestDispatcher_HighPriorityFansOut(t *testing.T) {
	d, store, email, webhook := newTestDispatcher()
	ev := Event{
		DisputeID:       uuid.New(),
		RecipientUserID: uuid.New(),
		Category:        CategoryOverdue,
		Message:         "deadline passed 1 day(s) ago",
		Priority:        PriorityHigh,
	}

	if err := d.Notify(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, total := store.ListByRecipient(ev.RecipientUserID, 10, 0); total != 1 {
		t.Errorf("stored %d notifications, want 1", total)
	}
	calls := email.Calls()
	if len(calls) != 1 {
		t.Fatalf("sent %d emails, want 1", len(calls))
	}
	if calls[0].To != ev.RecipientUserID.String() {
		t.Errorf("email to %s, want %s", calls[0].To, ev.RecipientUserID)
	}
	if calls[0].Subject != emailSubjects[CategoryOverdue] {
		t.Errorf("subject = %q, want %q", calls[0].Subject, emailSubjects[CategoryOverdue])
	}
	if webhook.count() != 1 {
		t.Errorf("webhook hit %d times, want 1", webhook.count())
	}
}

func TestDispatcher_DeliveryFailuresAreSwallowed(t *testing.T) {
	store := NewStore()
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	webhook := &mockWebhookSender{err: errors.New("endpoint gone")}
	d := NewDispatcher(store, email, webhook, clock.NewFake(testTime), zerolog.Nop())
	ev := Event{
		DisputeID:       uuid.New(),
		RecipientUserID: uuid.New(),
		Category:        CategoryOverdue,
		Priority:        PriorityHigh,
	}

	if err := d.Notify(context.Background(), ev); err != nil {
		t.Fatalf("delivery failure must not propagate: %v", err)
	}
	if _, total := store.ListByRecipient(ev.RecipientUserID, 10, 0); total != 1 {
		t.Error("the in-app copy must survive channel failures")
	}
}

func TestDispatcher_NilSendersDisableChannels(t *testing.T) {
	store := NewStore()
	d := NewDispatcher(store, nil, nil, clock.NewFake(testTime), zerolog.Nop())
	ev := Event{
		DisputeID:       uuid.New(),
		RecipientUserID: uuid.New(),
		Category:        CategoryUrgent,
		Priority:        PriorityHigh,
	}

	if err := d.Notify(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, total := store.ListByRecipient(ev.RecipientUserID, 10, 0); total != 1 {
		t.Error("event should still be stored")
	}
}

// ---------------------------------------------------------------------------
// HTTP Handler Tests
// ---------------------------------------------------------------------------

func TestHandler_List(t *testing.T) {
	store := NewStore()
	user := uuid.New()
	store.Add(testNotification(user))
	store.Add(testNotification(user))
	store.Add(testNotification(uuid.New()))
	h := NewHandler(store)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?recipient_id="+user.String(), nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["total"] != float64(2) {
		t.Errorf("total = %v, want 2", resp["total"])
	}
}

func TestHandler_List_RequiresRecipient(t *testing.T) {
	h := NewHandler(NewStore())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/?recipient_id=nope", nil)
	rec = httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_MarkRead(t *testing.T) {
	store := NewStore()
	n := testNotification(uuid.New())
	store.Add(n)
	h := NewHandler(store)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())
	if err := h.MarkRead(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got Notification
	json.Unmarshal(rec.Body.Bytes(), &got)
	if !got.Read {
		t.Error("response should carry the read notification")
	}
}

func TestHandler_MarkRead_NotFound(t *testing.T) {
	h := NewHandler(NewStore())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.MarkRead(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h := NewHandler(NewStore())
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}
	for _, path := range []string{
		"GET:/api/v1/notifications",
		"POST:/api/v1/notifications/:id/read",
	} {
		if !routePaths[path] {
			t.Errorf("missing route: %s", path)
		}
	}
}
