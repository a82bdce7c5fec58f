package agent

import "errors"

var (
	// ErrInvalidProduct indicates a product-list entry without a usable price account.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrInvalidResponse indicates a result that does not decode into the expected shape.
	ErrInvalidResponse = errors.New("invalid agent response")
	// ErrInvalidNotification indicates a notify_price_sched frame whose params cannot be decoded.
	ErrInvalidNotification = errors.New("invalid price schedule notification")
)
