package persistence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VerseRisk/internal/core"
	"VerseRisk/internal/event"
	"VerseRisk/internal/keeper"
	"VerseRisk/internal/ledger"
	"VerseRisk/internal/risk"
	"VerseRisk/internal/state"
)

func TestSnapshotData_RoundTrip(t *testing.T) {
	trader := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	keeperID := uuid.MustParse("650e8400-e29b-41d4-a716-446655440001")
	posID := state.PositionID(trader, "verse-1", 100)

	in := &core.SnapshotState{
		Sequence: 42,
		Config:   risk.DefaultConfig(),
		Balances: map[ledger.AccountKey]int64{
			ledger.NewUserAccountKey(trader, ledger.SubTypeCollateral, ledger.AssetUSDC):       10_000_000_000,
			ledger.NewSystemAccountKey("insurance", ledger.SubTypeSystemInsuranceFund, ledger.AssetUSDC): 3_000_000_000,
		},
		Markets: []*state.Market{{
			ID:            "verse-1",
			Status:        event.MarketStatusActive,
			OutcomeCount:  2,
			OutcomePrices: []int64{50_000_000, 50_000_000},
			UpdateSeq:     3,
			Version:       5,
		}},
		Positions: []*state.Position{{
			ID:         posID,
			Owner:      trader,
			Market:     "verse-1",
			Direction:  event.SideLong,
			Size:       100_000_000_000,
			EntryPrice: 50_000_000,
			Margin:     10_000_000_000,
			OpenedSlot: 100,
			Version:    1,
		}},
		Health: []*risk.PositionHealth{{
			PositionID:       posID,
			Owner:            trader,
			Market:           "verse-1",
			Direction:        event.SideLong,
			Margin:           10_000_000_000,
			Size:             100_000_000_000,
			EntryPrice:       50_000_000,
			BaseLeverage:     10_000_000,
			LiquidationPrice: 45_000_000,
		}},
		Keepers: []*keeper.Keeper{{
			ID:               keeperID,
			Operator:         trader,
			Stake:            200_000_000_000,
			PerformanceScore: keeper.PerformanceStart,
			Status:           keeper.StatusActive,
			RegisteredSlot:   90,
		}},
		QueueMedium: []keeper.Entry{{
			PositionID:   posID,
			Tier:         risk.TierMedium,
			EnqueuedSlot: 110,
		}},
		QueueStats:      keeper.QueueStats{Enqueued: 1},
		SequenceState:   map[string]int64{"market:verse-1": 4, "global": 2},
		IdempotencyKeys: []string{"PositionOpen:abc", "KeeperRegister:def"},
	}
	copy(in.StateHash[:], []byte("0123456789abcdef0123456789abcdef"))

	sd, err := FromCoreSnapshot(in)
	require.NoError(t, err)

	out, err := sd.ToCoreSnapshot()
	require.NoError(t, err)

	assert.Equal(t, in.Sequence, out.Sequence)
	assert.Equal(t, in.StateHash, out.StateHash)
	assert.Equal(t, in.Config, out.Config)
	assert.Equal(t, in.Balances, out.Balances)
	assert.Equal(t, in.Markets, out.Markets)
	assert.Equal(t, in.Positions, out.Positions)
	assert.Equal(t, in.Health, out.Health)
	assert.Equal(t, in.Keepers, out.Keepers)
	assert.Equal(t, in.QueueMedium, out.QueueMedium)
	assert.Empty(t, out.QueueHigh)
	assert.Equal(t, in.QueueStats, out.QueueStats)
	assert.Equal(t, in.SequenceState, out.SequenceState)
	assert.Equal(t, in.IdempotencyKeys, out.IdempotencyKeys)
}

func TestSnapshotData_RejectsCorruptEntityID(t *testing.T) {
	sd := &SnapshotData{
		StateHash: make([]byte, 32),
		Config:    []byte{},
		Balances:  []BalanceSnapshot{{EntityID: "zz"}},
	}
	// Config decode fails first on an empty blob; give it a real one.
	cfg := risk.DefaultConfig()
	full, err := FromCoreSnapshot(&core.SnapshotState{Config: cfg, Balances: map[ledger.AccountKey]int64{}})
	require.NoError(t, err)
	sd.Config = full.Config

	_, err = sd.ToCoreSnapshot()
	assert.Error(t, err)
}
