package inventory

import "errors"

var (
	ErrLevelNotFound      = errors.New("inventory level not found")
	ErrInsufficientPicked = errors.New("picked quantity is less than requested shipment")
	ErrInsufficientStock  = errors.New("insufficient stock at source location")
	ErrSameLocation       = errors.New("source and destination locations are the same")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
)
