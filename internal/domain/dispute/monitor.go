package dispute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/appealflow/appealflow/internal/platform/notification"
	"github.com/appealflow/appealflow/pkg/clock"
)

// DisputeSource is the subset of the dispute repository the monitor needs.
type DisputeSource interface {
	ListActive(ctx context.Context) ([]*Dispute, error)
	Save(ctx context.Context, d *Dispute) error
}

// RecipientSource resolves the group members who should hear about a
// flag on a group-owned dispute.
type RecipientSource interface {
	ListEditors(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
}

// NotificationSink receives one event per recipient per new flag.
type NotificationSink interface {
	Notify(ctx context.Context, ev notification.Event) error
}

var flagCategories = map[string]string{
	FlagWarning: notification.CategoryWarning,
	FlagUrgent:  notification.CategoryUrgent,
	FlagOverdue: notification.CategoryOverdue,
}

// Monitor drives deadline flag reconciliation over the active dispute
// population on a fixed cadence and surfaces newly raised flags as
// notification events exactly once.
type Monitor struct {
	disputes   DisputeSource
	recipients RecipientSource
	sink       NotificationSink
	clk        clock.Clock
	logger     zerolog.Logger

	// Interval controls the scan cadence.
	Interval time.Duration
	// Grace widens the new-flag window so clock and processing skew
	// between ticks cannot drop a notification.
	Grace time.Duration

	// seen suppresses duplicate sends when ticks and request-driven
	// flag updates overlap. Advisory only; flag ids rotate on every
	// reconciliation so a miss costs one extra notification at most.
	seen *gocache.Cache

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor creates a monitor with the default hourly cadence.
func NewMonitor(disputes DisputeSource, recipients RecipientSource, sink NotificationSink, clk clock.Clock, logger zerolog.Logger) *Monitor {
	return &Monitor{
		disputes:   disputes,
		recipients: recipients,
		sink:       sink,
		clk:        clk,
		logger:     logger,
		Interval:   time.Hour,
		Grace:      time.Minute,
		seen:       gocache.New(gocache.NoExpiration, 10*time.Minute),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the monitor loop: one tick immediately, then one per
// interval. It blocks until ctx is cancelled or Stop is called;
// callers typically run `go m.Start(ctx)`.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()
	defer close(m.done)

	select {
	case <-ctx.Done():
		return
	case <-m.stop:
		return
	default:
	}

	m.tick(ctx)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick(ctx)
			// A tick that overran the interval leaves a fire queued;
			// drain it so the missed scan is skipped, not stacked.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// Stop terminates the loop and waits for an in-flight tick to finish.
// Safe to call repeatedly, and before or without Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

func (m *Monitor) tick(ctx context.Context) {
	now := m.clk.Now()
	disputes, err := m.disputes.ListActive(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to list active disputes")
		return
	}
	for _, d := range disputes {
		m.evaluate(ctx, d, now)
	}
}

// evaluate reconciles one dispute's flags and notifies on a new flag.
// Failures are logged and isolated so the rest of the tick proceeds.
func (m *Monitor) evaluate(ctx context.Context, d *Dispute, now time.Time) {
	if UpdateDeadlineFlags(d, now) {
		if err := m.disputes.Save(ctx, d); err != nil {
			m.logger.Error().Err(err).Str("dispute", d.ID.String()).Msg("failed to save deadline flags")
			return
		}
	}

	flag := d.UnresolvedFlag()
	if flag == nil || now.Sub(flag.FlaggedAt) > m.Interval+m.Grace {
		return
	}
	if _, dup := m.seen.Get(flag.ID.String()); dup {
		return
	}
	m.notify(ctx, d, flag)
	m.seen.Set(flag.ID.String(), struct{}{}, m.Interval+m.Grace)
}

func (m *Monitor) notify(ctx context.Context, d *Dispute, f *DeadlineFlag) {
	priority := notification.PriorityNormal
	if f.Type == FlagOverdue {
		priority = notification.PriorityHigh
	}
	message := flagMessage(d, f)

	recipients := []uuid.UUID{d.CreatedBy}
	if d.GroupID != uuid.Nil {
		editors, err := m.recipients.ListEditors(ctx, d.GroupID)
		if err != nil {
			m.logger.Error().Err(err).Str("group", d.GroupID.String()).Msg("failed to resolve group recipients")
		} else {
			for _, id := range editors {
				if id != d.CreatedBy {
					recipients = append(recipients, id)
				}
			}
		}
	}

	for _, userID := range recipients {
		ev := notification.Event{
			DisputeID:       d.ID,
			RecipientUserID: userID,
			Category:        flagCategories[f.Type],
			Message:         message,
			Priority:        priority,
		}
		if err := m.sink.Notify(ctx, ev); err != nil {
			m.logger.Error().Err(err).
				Str("dispute", d.ID.String()).
				Str("recipient", userID.String()).
				Msg("failed to emit deadline notification")
		}
	}
}

func flagMessage(d *Dispute, f *DeadlineFlag) string {
	switch f.Type {
	case FlagOverdue:
		return fmt.Sprintf("Response deadline for %q passed %d day(s) ago", d.Request.RequestedService, f.DaysRemaining)
	case FlagUrgent:
		return fmt.Sprintf("Response deadline for %q is only %d day(s) away", d.Request.RequestedService, f.DaysRemaining)
	default:
		return fmt.Sprintf("Response deadline for %q is %d day(s) away", d.Request.RequestedService, f.DaysRemaining)
	}
}
