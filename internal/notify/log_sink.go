package notify

import (
	"context"

	"clothstore-be/internal/logger"

	"go.uber.org/zap"
)

// LogSink writes events to the application log. It is the default when no
// broker is configured.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, userID uint, event Event) error {
	logger.FromCtx(ctx).Info("order status changed",
		zap.String("event_id", event.ID),
		zap.Uint("user_id", userID),
		zap.String("order_id", event.OrderID.String()),
		zap.String("previous_status", event.PreviousStatus),
		zap.String("new_status", event.NewStatus),
	)
	return nil
}
