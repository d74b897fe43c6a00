package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// Subscriber opens a pub/sub subscription. persistence.Redis satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (*redis.PubSub, error)
}

// EventStreamWorker consumes the complaint event channel and keeps per-type counters.
type EventStreamWorker struct {
	subscriber Subscriber
	channel    string
	logger     *zap.Logger

	retryInitial time.Duration
	retryMax     time.Duration
	connected    atomic.Bool

	mu     sync.Mutex
	counts map[events.EventType]int
}

// NewEventStreamWorker builds a worker for channel.
func NewEventStreamWorker(subscriber Subscriber, channel string, logger *zap.Logger) *EventStreamWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStreamWorker{
		subscriber:   subscriber,
		channel:      channel,
		logger:       logger,
		retryInitial: time.Second,
		retryMax:     30 * time.Second,
		counts:       make(map[events.EventType]int),
	}
}

// Run consumes the channel until ctx is cancelled, resubscribing with exponential backoff whenever
// Redis is unreachable or the subscription drops.
func (w *EventStreamWorker) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.retryInitial
	policy.MaxInterval = w.retryMax
	policy.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := w.consume(ctx, policy.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		w.logger.Warn("event stream unavailable, retrying",
			zap.String("channel", w.channel),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Connected reports whether the worker currently holds a live subscription.
func (w *EventStreamWorker) Connected() bool {
	return w.connected.Load()
}

// consume holds one subscription. onSubscribed runs once Redis confirms it.
func (w *EventStreamWorker) consume(ctx context.Context, onSubscribed func()) error {
	pubsub, err := w.subscriber.Subscribe(ctx, w.channel)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	w.connected.Store(true)
	defer w.connected.Store(false)
	onSubscribed()
	w.logger.Info("event stream worker subscribed", zap.String("channel", w.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("event subscription closed")
			}
			w.handle([]byte(msg.Payload))
		}
	}
}

func (w *EventStreamWorker) handle(payload []byte) {
	var event events.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		w.logger.Warn("discarding malformed event", zap.Error(err))
		return
	}
	if event.Type == "" {
		w.logger.Warn("discarding event without type", zap.String("event_id", event.ID))
		return
	}

	w.mu.Lock()
	w.counts[event.Type]++
	w.mu.Unlock()

	w.logger.Info("complaint event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("complaint_id", event.ComplaintID),
		zap.String("actor", event.Actor.UserID),
		zap.Time("timestamp", event.Timestamp))
}

// Counts returns a copy of the per-type counters.
func (w *EventStreamWorker) Counts() map[events.EventType]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[events.EventType]int, len(w.counts))
	for k, v := range w.counts {
		out[k] = v
	}
	return out
}
