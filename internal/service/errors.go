package service

import "errors"

// Sentinel errors the handler layer maps to HTTP statuses.
var (
	ErrEmptyOrder    = errors.New("order must contain at least one item")
	ErrInvalidItem   = errors.New("order items must have positive price and quantity")
	ErrInvalidStatus = errors.New("invalid order status")
	ErrOrderNotFound = errors.New("order not found")
	ErrAlreadyPaid   = errors.New("order is already paid")
	ErrInvalidAmount = errors.New("order amount must be positive")
)
