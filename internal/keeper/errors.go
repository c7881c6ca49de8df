package keeper

import "errors"

var (
	ErrKeeperNotActive       = errors.New("keeper not active")
	ErrKeeperNotStaking      = errors.New("keeper stake below minimum")
	ErrKeeperSuspended       = errors.New("keeper suspended for low success rate")
	ErrNotQueued             = errors.New("position not in liquidation queue")
	ErrLiquidationCooldown   = errors.New("liquidation cooldown not elapsed")
	ErrPositionRecovered     = errors.New("position health recovered")
	ErrUnknownPosition       = errors.New("position has no health record")
	ErrAMMInvariantViolation = errors.New("outcome prices violate unity invariant")
	ErrStopNotTriggered      = errors.New("stop trigger price not reached")
	ErrStopExists            = errors.New("stop order already placed")
	ErrUnknownStop           = errors.New("no stop order for position")
)
