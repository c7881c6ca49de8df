package projection

import (
	"fmt"
	"testing"
)

func TestLiquidationHistory_QueryByAccount(t *testing.T) {
	lh := NewLiquidationHistory()

	for i := 0; i < 10; i++ {
		lh.Add(HistoryEntry{
			Sequence:      int64(i + 1),
			Market:        "verse-1",
			DebitAccount:  "system:insurance:insurance_fund:USDC",
			CreditAccount: fmt.Sprintf("user:trader-%d:margin:USDC", i%2),
			Amount:        1_000_000,
		})
	}

	results := lh.QueryByAccount("user:trader-0:margin:USDC", 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Newest first.
	if results[0].Sequence != 9 {
		t.Errorf("expected sequence 9 first, got %d", results[0].Sequence)
	}
	if results[1].Sequence >= results[0].Sequence {
		t.Errorf("results not in reverse order: %d then %d", results[0].Sequence, results[1].Sequence)
	}
}

func TestLiquidationHistory_QueryByMarket(t *testing.T) {
	lh := NewLiquidationHistory()
	lh.Add(HistoryEntry{Sequence: 1, Market: "verse-1", Amount: 5})
	lh.Add(HistoryEntry{Sequence: 2, Market: "verse-2", Amount: 7})
	lh.Add(HistoryEntry{Sequence: 3, Market: "verse-1", Amount: 9})

	results := lh.QueryByMarket("verse-1", 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Sequence != 3 || results[1].Sequence != 1 {
		t.Errorf("wrong ordering: %d, %d", results[0].Sequence, results[1].Sequence)
	}
}

func TestLiquidationHistory_QueryByEntity(t *testing.T) {
	lh := NewLiquidationHistory()
	lh.Add(HistoryEntry{
		Sequence:      1,
		DebitAccount:  "user:aaa:margin:USDC",
		CreditAccount: "keeper:bbb:stake:USDC",
	})
	lh.Add(HistoryEntry{
		Sequence:      2,
		DebitAccount:  "keeper:bbb:rewards:USDC",
		CreditAccount: "system:insurance:insurance_fund:USDC",
	})

	results := lh.QueryByEntity("keeper:bbb", 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	results = lh.QueryByEntity("keeper:ccc", 10)
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestLiquidationHistory_Bounded(t *testing.T) {
	lh := NewLiquidationHistory()
	lh.maxEntries = 5

	for i := 0; i < 12; i++ {
		lh.Add(HistoryEntry{Sequence: int64(i + 1)})
	}

	if lh.Len() != 5 {
		t.Fatalf("expected 5 entries after trim, got %d", lh.Len())
	}

	results := lh.QueryByMarket("", 10)
	if results[0].Sequence != 12 {
		t.Errorf("expected newest sequence 12, got %d", results[0].Sequence)
	}
	if results[len(results)-1].Sequence != 8 {
		t.Errorf("expected oldest retained sequence 8, got %d", results[len(results)-1].Sequence)
	}
}
