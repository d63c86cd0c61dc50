package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Event tells a buyer their order moved.
type Event struct {
	ID             string    `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	UserID         uint      `json:"user_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewEvent(orderID uuid.UUID, userID uint, previous, next string, at time.Time) Event {
	return Event{
		ID:             ulid.Make().String(),
		OrderID:        orderID,
		UserID:         userID,
		PreviousStatus: previous,
		NewStatus:      next,
		OccurredAt:     at.UTC(),
	}
}

// Sink delivers status events to a buyer. Callers treat delivery as best
// effort: an error is logged, never propagated into the order flow.
type Sink interface {
	Notify(ctx context.Context, userID uint, event Event) error
}
