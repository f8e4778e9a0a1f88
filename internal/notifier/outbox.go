package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/fjod/go_cart/orders-service/internal/metrics"
	"github.com/fjod/go_cart/orders-service/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Enqueue writes n to the outbox of the running transaction.
func Enqueue(ctx context.Context, tx repository.OutboxRepository, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	return tx.EnqueueEvent(ctx, &domain.OutboxEvent{
		AggregateID: n.OrderID,
		EventType:   string(n.Kind),
		Payload:     payload,
	})
}

// Waker is told that new outbox events were committed.
type Waker interface {
	Wake()
}

// EventSource is the storage side of the outbox.
type EventSource interface {
	ClaimUnprocessedEvents(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	MarkEventFailed(ctx context.Context, id int64, cause string) error
}

type PollerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	SendTimeout time.Duration
}

// OutboxPoller publishes committed outbox events to a Notifier. Delivery is
// at least once: an event whose publish succeeded but whose mark failed is
// sent again after its lease runs out.
type OutboxPoller struct {
	source  EventSource
	next    Notifier
	metrics *metrics.Metrics
	cfg     PollerConfig
	lease   time.Duration
	wake    chan struct{}
}

var _ Waker = (*OutboxPoller)(nil)

func NewOutboxPoller(source EventSource, next Notifier, m *metrics.Metrics, cfg PollerConfig) *OutboxPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &OutboxPoller{
		source:  source,
		next:    next,
		metrics: m,
		cfg:     cfg,
		lease:   time.Duration(cfg.BatchSize+1) * cfg.SendTimeout,
		wake:    make(chan struct{}, 1),
	}
}

// Wake makes the poller look for events now instead of at the next tick.
func (p *OutboxPoller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-p.wake:
		case <-ctx.Done():
			return
		}
		if p.processUnpublishedEvents(ctx) == p.cfg.BatchSize {
			p.Wake()
		}
	}
}

// processUnpublishedEvents returns the number of claimed events.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.source.ClaimUnprocessedEvents(ctx, p.cfg.BatchSize, p.lease, p.cfg.MaxAttempts)
	if err != nil {
		log.WithError(err).Error("failed to fetch outbox events")
		return 0
	}

	// a failed event holds back the later events of its order in this batch
	held := make(map[uuid.UUID]struct{})
	for _, event := range events {
		if _, ok := held[event.AggregateID]; ok {
			continue
		}
		if err := p.publish(ctx, event); err != nil {
			held[event.AggregateID] = struct{}{}
			p.metrics.NotificationSent(event.EventType, err)
			log.WithError(err).WithFields(log.Fields{
				"event_id": event.ID,
				"kind":     event.EventType,
				"order_id": event.AggregateID,
				"attempt":  event.Attempts + 1,
			}).Warn("failed to publish outbox event")
			if errMark := p.source.MarkEventFailed(ctx, event.ID, err.Error()); errMark != nil {
				log.WithError(errMark).WithField("event_id", event.ID).Error("failed to record outbox failure")
			}
			continue
		}

		p.metrics.NotificationSent(event.EventType, nil)
		if err := p.source.MarkEventAsProcessed(ctx, event.ID); err != nil {
			log.WithError(err).WithField("event_id", event.ID).Error("failed to mark outbox event as processed")
		}
	}
	return len(events)
}

func (p *OutboxPoller) publish(ctx context.Context, event domain.OutboxEvent) error {
	var n Notification
	if err := json.Unmarshal(event.Payload, &n); err != nil {
		return errors.Wrap(err, "decode outbox payload")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	return p.next.Notify(ctx, n)
}
