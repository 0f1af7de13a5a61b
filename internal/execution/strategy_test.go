package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"nft-sniper/internal/config"
	"nft-sniper/internal/marketplace"
	"nft-sniper/internal/tracker"
)

const (
	testMarketplace = "sei1pallet"
	testCollection  = "sei1collection"
)

func testOptions() Options {
	return Options{
		Marketplace: testMarketplace,
		Collection:  testCollection,
		Denom:       "usei",
		FeeRate:     decimal.NewFromFloat(config.DefaultFeeRate),
	}
}

func buyable(id string, price int64) marketplace.Listing {
	return marketplace.Listing{
		TokenID: id,
		Price:   marketplace.Price{Amount: decimal.NewFromInt(price), Denom: "usei"},
		Traits:  []marketplace.Trait{},
		State:   marketplace.StateBuyNow,
	}
}

type clientCall struct {
	sender   string
	contract string
	msg      string
	funds    []Coin
}

// mockClient 按顺序返回预设结果，未预设时返回成功。
type mockClient struct {
	mu      sync.Mutex
	calls   []clientCall
	results []mockResult
	panics  bool
}

type mockResult struct {
	res TxResult
	err error
}

func (m *mockClient) Execute(ctx context.Context, sender, contract string, msg any, funds []Coin) (TxResult, error) {
	if m.panics {
		panic("signer exploded")
	}
	raw, _ := json.Marshal(msg)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, clientCall{sender: sender, contract: contract, msg: string(raw), funds: funds})
	idx := len(m.calls) - 1
	if idx < len(m.results) {
		return m.results[idx].res, m.results[idx].err
	}
	return TxResult{TxHash: fmt.Sprintf("TX%d", idx)}, nil
}

func TestSingle_BuysTargetAndCompletes(t *testing.T) {
	tr := tracker.New([]string{"42"}, 1, nil, nil)
	client := &mockClient{}
	strategy := NewSingle(testOptions(), tr, nil)

	out := strategy.Execute(context.Background(), NewTask("sei1alice", client, buyable("42", 100)))

	if out.Err != nil {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(client.calls))
	}
	call := client.calls[0]
	if call.contract != testMarketplace || call.sender != "sei1alice" {
		t.Errorf("unexpected call target %+v", call)
	}
	if len(call.funds) != 1 || call.funds[0] != (Coin{Amount: "102", Denom: "usei"}) {
		t.Errorf("expected funds 102usei, got %+v", call.funds)
	}
	want := `{"buy_now":{"expected_price":{"amount":"100","denom":"usei"},"nft":{"address":"sei1collection","token_id":"42"}}}`
	if call.msg != want {
		t.Errorf("unexpected msg\n got %s\nwant %s", call.msg, want)
	}
	if !tr.IsBought("42") || tr.Count() != 1 {
		t.Errorf("expected bought set {42}, got %v", tr.Bought())
	}
	if !out.Completed || !tr.Completed() {
		t.Errorf("expected shutdown to be triggered")
	}
}

func TestSingle_FailureDoesNotRecord(t *testing.T) {
	cases := []struct {
		name   string
		result mockResult
	}{
		{name: "transport error", result: mockResult{err: errors.New("connection reset")}},
		{name: "empty hash", result: mockResult{res: TxResult{}}},
		{name: "rejected", result: mockResult{res: TxResult{TxHash: "AB", Code: 5, RawLog: "insufficient funds"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := tracker.New([]string{"42"}, 1, nil, nil)
			client := &mockClient{results: []mockResult{tc.result}}

			out := NewSingle(testOptions(), tr, nil).Execute(context.Background(), NewTask("sei1a", client, buyable("42", 100)))

			if !IsSubmissionFailure(out.Err) {
				t.Fatalf("expected SubmissionError, got %v", out.Err)
			}
			if out.Error == "" {
				t.Errorf("expected error text in outcome")
			}
			if tr.IsBought("42") || tr.Completed() {
				t.Errorf("failed purchase must not be recorded")
			}
		})
	}
}

func TestSingle_SkipsAlreadyBought(t *testing.T) {
	tr := tracker.New([]string{"1", "2"}, 0, nil, nil)
	tr.Record(context.Background(), tracker.Purchase{TokenID: "1"})
	client := &mockClient{}

	out := NewSingle(testOptions(), tr, nil).Execute(context.Background(), NewTask("sei1a", client, buyable("1", 100)))

	if len(client.calls) != 0 {
		t.Fatalf("expected no submission for bought token")
	}
	if out.Err != nil || len(out.Submitted) != 0 {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestSingle_RecoversFromPanic(t *testing.T) {
	tr := tracker.New([]string{"42"}, 1, nil, nil)
	client := &mockClient{panics: true}

	out := NewSingle(testOptions(), tr, nil).Execute(context.Background(), NewTask("sei1a", client, buyable("42", 100)))

	if out.Err == nil || !strings.Contains(out.Err.Error(), "panic") {
		t.Fatalf("expected panic to be converted to error, got %v", out.Err)
	}
}

func TestSingle_EmptyTask(t *testing.T) {
	tr := tracker.New(nil, 1, nil, nil)
	out := NewSingle(testOptions(), tr, nil).Execute(context.Background(), Task{ID: "t"})
	if out.Err == nil {
		t.Fatalf("expected error for empty task")
	}
}

func TestBatch_SubmitsOneInstructionAndCompletes(t *testing.T) {
	tr := tracker.New(nil, 3, nil, nil)
	client := &mockClient{}

	task := NewTask("sei1a", client, buyable("1", 10), buyable("2", 20), buyable("3", 30))
	out := NewBatch(testOptions(), tr, nil).Execute(context.Background(), task)

	if out.Err != nil {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected one instruction, got %d", len(client.calls))
	}
	// 10.2 + 20.4 + 30.6 = 61.2，向上取整
	if got := client.calls[0].funds[0].Amount; got != "62" {
		t.Errorf("expected funds 62, got %s", got)
	}
	if !strings.Contains(client.calls[0].msg, `"batch_bids":{"bids":[{"bid_type":{"buy_now":{"expected_price":{"amount":"10","denom":"usei"}}},"nft":{"address":"sei1collection","token_id":"1"}}`) {
		t.Errorf("unexpected batch msg %s", client.calls[0].msg)
	}
	if !tr.Completed() || !out.Completed {
		t.Errorf("expected unconditional completion after batch success")
	}
	if fmt.Sprint(out.Bought) != "[1 2 3]" {
		t.Errorf("unexpected bought %v", out.Bought)
	}
}

func TestBatch_ExactFundsInBaseUnits(t *testing.T) {
	tr := tracker.New(nil, 3, nil, nil)
	client := &mockClient{}

	task := NewTask("sei1a", client, buyable("1", 10_000_000), buyable("2", 20_000_000), buyable("3", 30_000_000))
	NewBatch(testOptions(), tr, nil).Execute(context.Background(), task)

	if got := client.calls[0].funds[0].Amount; got != "61200000" {
		t.Errorf("expected funds 61200000, got %s", got)
	}
}

func TestBatch_CapsAtRemainingBudget(t *testing.T) {
	tr := tracker.New(nil, 2, nil, nil)
	client := &mockClient{}

	task := NewTask("sei1a", client, buyable("1", 10), buyable("2", 20), buyable("3", 30))
	out := NewBatch(testOptions(), tr, nil).Execute(context.Background(), task)

	if fmt.Sprint(out.Submitted) != "[1 2]" {
		t.Errorf("expected batch capped to 2 listings, got %v", out.Submitted)
	}
}

func TestBatch_FailureOnlyLogs(t *testing.T) {
	tr := tracker.New(nil, 3, nil, nil)
	client := &mockClient{results: []mockResult{{err: errors.New("out of gas")}}}

	out := NewBatch(testOptions(), tr, nil).Execute(context.Background(), NewTask("sei1a", client, buyable("1", 10)))

	if out.Err == nil || tr.Completed() || tr.Count() != 0 {
		t.Errorf("expected failure without completion, got %+v", out)
	}
}

func TestBatch_ReconcileFillsWaitsForBudget(t *testing.T) {
	opts := testOptions()
	opts.ReconcileBatchFills = true
	tr := tracker.New(nil, 3, nil, nil)
	client := &mockClient{}

	NewBatch(opts, tr, nil).Execute(context.Background(), NewTask("sei1a", client, buyable("1", 10)))

	if tr.Completed() {
		t.Fatalf("reconcile mode must not complete with 1 of 3 bought")
	}
	if tr.Count() != 1 {
		t.Errorf("expected 1 bought, got %d", tr.Count())
	}
}

func TestSequential_StopsAtBudget(t *testing.T) {
	tr := tracker.New(nil, 2, nil, nil)
	client := &mockClient{results: []mockResult{
		{res: TxResult{TxHash: "A"}},
		{err: errors.New("sold")},
		{res: TxResult{TxHash: "C"}},
	}}

	task := NewTask("sei1a", client, buyable("1", 10), buyable("2", 20), buyable("3", 30), buyable("4", 40))
	out := NewSequential(testOptions(), tr, nil).Execute(context.Background(), task)

	if len(client.calls) != 3 {
		t.Fatalf("expected 3 submissions before budget reached, got %d", len(client.calls))
	}
	if fmt.Sprint(out.Bought) != "[1 3]" {
		t.Errorf("unexpected bought %v", out.Bought)
	}
	if !tr.Completed() {
		t.Errorf("expected completion at budget")
	}
	if tr.IsBought("4") {
		t.Errorf("listing after budget must not be bought")
	}
	if len(client.calls[1].funds) != 1 || client.calls[1].funds[0].Amount != "21" {
		t.Errorf("expected per-item funds 20.4 rounded up to 21, got %+v", client.calls[1].funds)
	}
}

func TestSequential_SkipsDuplicatesWithinTask(t *testing.T) {
	tr := tracker.New(nil, 5, nil, nil)
	client := &mockClient{}

	NewSequential(testOptions(), tr, nil).Execute(context.Background(), NewTask("sei1a", client, buyable("1", 10), buyable("1", 10)))

	if len(client.calls) != 1 {
		t.Errorf("expected duplicate listing to be submitted once, got %d", len(client.calls))
	}
}

func TestNew_SelectsStrategyByMode(t *testing.T) {
	tr := tracker.New(nil, 1, nil, nil)
	for mode, want := range map[config.Mode]string{
		config.ModeExplicit: "single",
		config.ModeSweep:    "batch",
		config.ModeAuto:     "sequential",
	} {
		s, err := New(mode, testOptions(), tr, nil)
		if err != nil {
			t.Fatalf("New(%s) returned error: %v", mode, err)
		}
		if s.Name() != want {
			t.Errorf("mode %s: got %s want %s", mode, s.Name(), want)
		}
	}
	if _, err := New("other", testOptions(), tr, nil); err == nil {
		t.Errorf("expected error for unknown mode")
	}
	if _, err := New(config.ModeSweep, testOptions(), nil, nil); err == nil {
		t.Errorf("expected error for nil tracker")
	}
}
