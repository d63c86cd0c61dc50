package payment

import "errors"

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrPaymentConflict  = errors.New("payment was modified concurrently")
	ErrGatewayIntegrity = errors.New("gateway signature mismatch")
	ErrAlreadyPaid      = errors.New("order already paid")
	ErrAmountMismatch   = errors.New("amount does not match order total")
	ErrOrderNotPayable  = errors.New("order is not awaiting payment")
	ErrInvalidPayload   = errors.New("invalid gateway payload")
)
