package event

import (
	"encoding/json"
	"fmt"
)

// Marshal serializes a typed event for the durable log. The encoding is
// the struct's JSON form, not the external wire format; Unmarshal is its
// only consumer.
func Marshal(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Unmarshal rebuilds a typed event from its stored form. Used by replay.
func Unmarshal(et EventType, data []byte) (Event, error) {
	var evt Event
	switch et {
	case EventTypeOraclePriceUpdate:
		evt = &OraclePriceUpdate{}
	case EventTypeMarketSnapshotPair:
		evt = &MarketSnapshotPair{}
	case EventTypeMarketStatusUpdate:
		evt = &MarketStatusUpdate{}
	case EventTypePositionOpen:
		evt = &PositionOpen{}
	case EventTypeChainExecute:
		evt = &ChainExecute{}
	case EventTypeChainStepAdd:
		evt = &ChainStepAdd{}
	case EventTypeKeeperRegister:
		evt = &KeeperRegister{}
	case EventTypeKeeperStake:
		evt = &KeeperStake{}
	case EventTypeLiquidationSubmit:
		evt = &LiquidationSubmit{}
	case EventTypeRiskParamUpdate:
		evt = &RiskParamUpdate{}
	default:
		return nil, fmt.Errorf("unknown event type %d", et)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}

// TypeFromString maps the stored discriminator back to its enum value.
func TypeFromString(s string) EventType {
	switch s {
	case "OraclePriceUpdate":
		return EventTypeOraclePriceUpdate
	case "MarketSnapshotPair":
		return EventTypeMarketSnapshotPair
	case "MarketStatusUpdate":
		return EventTypeMarketStatusUpdate
	case "PositionOpen":
		return EventTypePositionOpen
	case "ChainExecute":
		return EventTypeChainExecute
	case "ChainStepAdd":
		return EventTypeChainStepAdd
	case "KeeperRegister":
		return EventTypeKeeperRegister
	case "KeeperStake":
		return EventTypeKeeperStake
	case "LiquidationSubmit":
		return EventTypeLiquidationSubmit
	case "RiskParamUpdate":
		return EventTypeRiskParamUpdate
	default:
		return EventTypeUnknown
	}
}
