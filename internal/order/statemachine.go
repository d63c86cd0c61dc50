package order

// transitions is the whole lifecycle graph. Statuses missing from the map are
// terminal.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipping, StatusCancelled},
	StatusShipping:   {StatusDelivered},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipping, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// HoldsReservation reports whether stock has been reserved for an order in
// this status. Reservation happens on the pending to confirmed edge.
func (s OrderStatus) HoldsReservation() bool {
	switch s {
	case StatusConfirmed, StatusProcessing, StatusShipping, StatusDelivered:
		return true
	}
	return false
}

// NextStatuses returns a copy of the legal targets from current.
func NextStatuses(current OrderStatus) []OrderStatus {
	next := transitions[current]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

func CanTransition(current, target OrderStatus) bool {
	for _, s := range transitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// Transition moves o to target when the graph allows it. It knows nothing
// about who is asking; actor rules live in the service.
func Transition(o *Order, target OrderStatus) error {
	if !CanTransition(o.Status, target) {
		return &InvalidTransitionError{
			From:    o.Status,
			To:      target,
			Allowed: NextStatuses(o.Status),
		}
	}
	o.Status = target
	return nil
}
