package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNoSnapshot        = errors.New("no order book snapshot yet")
	ErrInvalidParameters = errors.New("invalid trade parameters")
	ErrMalformedMessage  = errors.New("malformed feed message")
	ErrUnsortedBook      = errors.New("order book levels out of order")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrFeedGaveUp        = errors.New("feed reconnect attempts exhausted")
	ErrLockHeld          = errors.New("lock already held")
	ErrNonFiniteEstimate = errors.New("estimate is not finite")
)
