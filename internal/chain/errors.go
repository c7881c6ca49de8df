package chain

import "errors"

var (
	ErrChainTooDeep     = errors.New("chain exceeds maximum depth")
	ErrInvalidPosition  = errors.New("chain deposit must be positive")
	ErrInactiveVerse    = errors.New("verse not active")
	ErrInvalidStepInput = errors.New("step input must reference a prior unconsumed output")
	ErrInvalidOutcome   = errors.New("outcome index outside market range")
	ErrInvalidLeverage  = errors.New("step leverage outside (0, 50]")
	ErrUnknownChain     = errors.New("chain not found")
	ErrChainNotActive   = errors.New("chain not active")
)
