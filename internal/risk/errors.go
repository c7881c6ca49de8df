package risk

import "errors"

var (
	ErrStalePriceFeed      = errors.New("price feed stale beyond threshold")
	ErrMaxLeverageExceeded = errors.New("effective leverage exceeds cap")
	ErrInvalidLeverage     = errors.New("leverage outside allowed range")
	ErrEmergencyHalt       = errors.New("emergency halt active")
	ErrUnknownStepType     = errors.New("unknown chain step type")
)
