package warehouse

import "errors"

var (
	ErrVariantNotFound  = errors.New("product variant not found")
	ErrLocationNotFound = errors.New("warehouse location not found")
	ErrInvalidVariant   = errors.New("invalid product variant")
	ErrInvalidLocation  = errors.New("invalid warehouse location")
)
