package payments

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/recivo/recivo/internal/config"
	ierr "github.com/recivo/recivo/internal/errors"
	"github.com/recivo/recivo/internal/logger"
	"github.com/recivo/recivo/internal/pubsub"
	"github.com/recivo/recivo/internal/pubsub/router"
	"github.com/recivo/recivo/internal/service"
	"github.com/recivo/recivo/internal/types"
)

// envelope is the wire format of payment lifecycle messages on the event bus
type envelope struct {
	EventName string          `json:"event_name"`
	TenantID  string          `json:"tenant_id"`
	UserID    string          `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Handler consumes payment lifecycle events and feeds them into the
// incentive orchestrator
type Handler struct {
	config           *config.Configuration
	logger           *logger.Logger
	subscriber       pubsub.Subscriber
	incentiveService service.IncentiveService
}

func NewHandler(
	cfg *config.Configuration,
	logger *logger.Logger,
	subscriber pubsub.Subscriber,
	incentiveService service.IncentiveService,
) *Handler {
	return &Handler{
		config:           cfg,
		logger:           logger,
		subscriber:       subscriber,
		incentiveService: incentiveService,
	}
}

// Register attaches the payment event handler to the message router
func (h *Handler) Register(r *router.Router) {
	r.AddNoPublishHandler(
		"payment_lifecycle_handler",
		h.config.Event.Topic,
		h.subscriber,
		h.handleMessage,
	)
}

func (h *Handler) handleMessage(msg *message.Message) error {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		// A malformed message never becomes parseable; drop it to the
		// poison queue instead of retrying.
		return ierr.WithError(err).
			WithHint("Failed to decode payment event envelope").
			Mark(ierr.ErrValidation)
	}

	ctx := msg.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = types.SetTenantID(ctx, env.TenantID)
	if env.UserID != "" {
		ctx = types.SetUserID(ctx, env.UserID)
	}

	h.logger.Debugw("received payment event",
		"event_name", env.EventName,
		"tenant_id", env.TenantID,
		"message_uuid", msg.UUID)

	switch env.EventName {
	case types.PaymentEventProcessing:
		var event types.PaymentProcessingEvent
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to decode payment processing payload").
				Mark(ierr.ErrValidation)
		}
		return h.incentiveService.HandlePaymentProcessing(ctx, event)
	case types.PaymentEventCompleted:
		var event types.PaymentCompletedEvent
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to decode payment completed payload").
				Mark(ierr.ErrValidation)
		}
		return h.incentiveService.HandlePaymentCompleted(ctx, event)
	default:
		h.logger.Debugw("ignoring unrelated event",
			"event_name", env.EventName, "message_uuid", msg.UUID)
		return nil
	}
}
