package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/events"
)

// EventPublisher fans events out of the process. persistence.Redis satisfies it.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel string, payload any) error
}

// NotificationService relays domain events to the external event channel.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  EventPublisher
	logger     *zap.Logger
	cfg        config.EventsConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, publisher EventPublisher, logger *zap.Logger, cfg config.EventsConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.relay)
	}
}

func (n *NotificationService) relay(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("complaint_id", event.ComplaintID),
		zap.String("actor", event.Actor.UserID),
		zap.Any("payload", event.Payload))

	if n.publisher == nil || n.cfg.Channel == "" {
		return nil
	}
	// Publishing runs inside the request that caused the event; an unreachable broker must not stall it.
	publishCtx, cancel := context.WithTimeout(ctx, n.cfg.PublishTimeout())
	defer cancel()
	if err := n.publisher.PublishJSON(publishCtx, n.cfg.Channel, event); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, n.cfg.Channel, err)
	}
	return nil
}
