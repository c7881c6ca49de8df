package oracle

import "errors"

var (
	ErrInvalidOracleSignature    = errors.New("invalid oracle signature")
	ErrInvalidPriceSum           = errors.New("outcome prices do not sum to unity")
	ErrUpdateTooFrequent         = errors.New("update frequency limit exceeded")
	ErrUnknownSource             = errors.New("unknown oracle source")
	ErrInsufficientOracleSources = errors.New("insufficient fresh oracle sources")
	ErrFallbackExpired           = errors.New("fallback price window expired")
	ErrInsufficientConfidence    = errors.New("aggregate confidence below minimum")
	ErrFallbackNotActive         = errors.New("fallback not active for market")
	ErrNoPriceHistory            = errors.New("no price history for market")
)
