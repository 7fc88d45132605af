package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/recivo/recivo/internal/types"
)

// publishWebhookEvent emits an engine event on the outbound bus. Publishing
// is best effort: failures are logged and never propagate to the caller.
func (s *ServiceParams) publishWebhookEvent(ctx context.Context, eventName string, payload interface{}) {
	if s.WebhookPublisher == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.Logger.Errorw("failed to encode webhook payload",
			"event_name", eventName, "error", err)
		return
	}

	event := &types.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventName: eventName,
		TenantID:  types.GetTenantID(ctx),
		UserID:    types.GetUserID(ctx),
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}

	if err := s.WebhookPublisher.PublishWebhook(ctx, event); err != nil {
		s.Logger.Errorw("failed to publish webhook event",
			"event_name", eventName, "error", err)
	}
}
