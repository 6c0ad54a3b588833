package notifications

import (
	"context"
	"errors"
	"log/slog"

	"trawler/internal/config"
	"trawler/internal/events"
	"trawler/internal/logging"
)

// Dispatcher subscribes to the event bus and forwards selected lifecycle
// events to the notification service. Which categories notify is controlled
// by configuration.
type Dispatcher struct {
	cfg     *config.Config
	service Service
	bus     *events.Bus
	logger  *slog.Logger
}

// NewDispatcher wires the bus to the service.
func NewDispatcher(cfg *config.Config, service Service, bus *events.Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		cfg:     cfg,
		service: service,
		bus:     bus,
		logger:  logger.With(logging.String(logging.FieldComponent, "notifications")),
	}
}

// Run consumes events until ctx ends. Delivery failures are logged, never
// propagated: notifications are best effort.
func (d *Dispatcher) Run(ctx context.Context) {
	ch, cancel := d.bus.Subscribe(
		events.TypeRetrievalCompleted,
		events.TypeRetrievalFailed,
		events.TypeRelayCompleted,
		events.TypeRelayFailed,
		events.TypeScanCompleted,
	)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := d.dispatch(ctx, evt); err != nil && ctx.Err() == nil {
				d.logger.Warn("notification delivery failed",
					logging.String(logging.FieldEventType, string(evt.Type)),
					logging.Error(err),
				)
			}
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, evt events.Payload) error {
	prefs := d.cfg.Notifications
	switch evt.Type {
	case events.TypeRetrievalCompleted:
		if !prefs.Retrievals {
			return nil
		}
		return d.service.NotifyRetrievalCompleted(ctx, evt.Title, evt.Bytes)
	case events.TypeRetrievalFailed:
		if !prefs.Errors {
			return nil
		}
		return d.service.NotifyRetrievalFailed(ctx, evt.Title, evt.Error)
	case events.TypeRelayCompleted:
		if !prefs.Relays {
			return nil
		}
		return d.service.NotifyRelayCompleted(ctx, evt.Title, evt.Message)
	case events.TypeRelayFailed:
		if !prefs.Errors {
			return nil
		}
		return d.service.NotifyRelayFailed(ctx, evt.Title, evt.Error)
	case events.TypeScanCompleted:
		if !prefs.Scans {
			return nil
		}
		if evt.Error != "" && prefs.Errors {
			return d.service.NotifyError(ctx, errors.New(evt.Error), "scan")
		}
		return d.service.NotifyScanCompleted(ctx, evt.Message)
	}
	return nil
}
