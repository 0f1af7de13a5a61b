package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"nft-sniper/internal/config"
	"nft-sniper/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestTracker_CompletesOnTargetSet(t *testing.T) {
	tr := New([]string{"42"}, 1, nil, nil)

	if !tr.Record(context.Background(), Purchase{TokenID: "42", TxHash: "AB"}) {
		t.Fatalf("expected first record to be accepted")
	}
	if !tr.Completed() {
		t.Fatalf("expected tracker to complete after target bought")
	}
	select {
	case <-tr.Done():
	default:
		t.Fatalf("expected done channel to be closed")
	}
	if tr.Reason() == "" {
		t.Errorf("expected completion reason")
	}
}

func TestTracker_CompletesOnBudgetBeforeTargets(t *testing.T) {
	tr := New([]string{"1", "2", "3"}, 2, nil, nil)
	ctx := context.Background()

	tr.Record(ctx, Purchase{TokenID: "1"})
	if tr.Completed() {
		t.Fatalf("completed too early")
	}
	if tr.Remaining() != 1 {
		t.Errorf("expected 1 remaining, got %d", tr.Remaining())
	}
	tr.Record(ctx, Purchase{TokenID: "2"})
	if !tr.Completed() {
		t.Fatalf("expected completion when budget reached")
	}
	if tr.Record(ctx, Purchase{TokenID: "3"}) {
		t.Fatalf("recording after completion must be rejected")
	}
	if tr.Count() != 2 {
		t.Errorf("expected 2 bought, got %d", tr.Count())
	}
}

func TestTracker_NoDuplicates(t *testing.T) {
	tr := New(nil, 100, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Record(ctx, Purchase{TokenID: fmt.Sprint(i % 10)})
		}(i)
	}
	wg.Wait()

	bought := tr.Bought()
	if len(bought) != 10 {
		t.Fatalf("expected 10 unique ids, got %d: %v", len(bought), bought)
	}
	seen := make(map[string]bool)
	for _, id := range bought {
		if seen[id] {
			t.Fatalf("duplicate id %s in bought set", id)
		}
		seen[id] = true
	}
}

func TestTracker_CompleteIsIdempotent(t *testing.T) {
	tr := New(nil, 3, nil, nil)
	tr.Complete("batch filled")
	tr.Complete("second call")

	if tr.Reason() != "batch filled" {
		t.Errorf("expected first reason to win, got %q", tr.Reason())
	}
}

func TestSQLiteLedger_RoundTripAndResume(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewSQLiteLedger(ctx, newStore(t), "sei1collection", nil)
	if err != nil {
		t.Fatalf("NewSQLiteLedger returned error: %v", err)
	}

	first := New([]string{"7", "8"}, 0, ledger, nil)
	first.Record(ctx, Purchase{TokenID: "7", TxHash: "H7", Wallet: "sei1a", Amount: "102", Denom: "usei", Strategy: "single"})

	if err := ledger.Put(ctx, Purchase{TokenID: "7", TxHash: "dup"}); err != nil {
		t.Fatalf("duplicate put should be ignored, got %v", err)
	}

	purchases, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(purchases) != 1 || purchases[0].TxHash != "H7" || purchases[0].Amount != "102" {
		t.Fatalf("unexpected purchases %+v", purchases)
	}

	resumed := New([]string{"7", "8"}, 0, ledger, nil)
	if err := resumed.Resume(ctx); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	if !resumed.IsBought("7") || resumed.IsBought("8") {
		t.Errorf("unexpected resumed set %v", resumed.Bought())
	}
	if resumed.Completed() {
		t.Errorf("tracker must not complete with one of two targets")
	}
}

func TestSQLiteLedger_RejectsEmptyToken(t *testing.T) {
	ledger, err := NewSQLiteLedger(context.Background(), newStore(t), "c", nil)
	if err != nil {
		t.Fatalf("NewSQLiteLedger returned error: %v", err)
	}
	if err := ledger.Put(context.Background(), Purchase{}); err == nil {
		t.Fatalf("expected error for empty token id")
	}
}
