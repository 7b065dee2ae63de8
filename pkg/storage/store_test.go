package storage

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dex.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_TokenRoundTrip(t *testing.T) {
	s := openTestStore(t)

	recs := []TokenRecord{
		{Symbol: "DAI", Handle: "0x0000000000000000000000000000000000000001", Seq: 0},
		{Symbol: "BNB", Handle: "0x0000000000000000000000000000000000000002", Seq: 1},
	}
	for _, rec := range recs {
		if err := s.SaveToken(rec); err != nil {
			t.Fatalf("save token %s: %v", rec.Symbol, err)
		}
	}

	got, err := s.LoadTokens()
	if err != nil {
		t.Fatalf("load tokens: %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("loaded %d tokens, want %d", len(got), len(recs))
	}
	bySymbol := make(map[string]TokenRecord, len(got))
	for _, rec := range got {
		bySymbol[rec.Symbol] = rec
	}
	for _, want := range recs {
		if bySymbol[want.Symbol] != want {
			t.Errorf("token %s = %+v, want %+v", want.Symbol, bySymbol[want.Symbol], want)
		}
	}
}

// TestStore_TokensLoadInRegistrationOrder checks that tokens come back by
// stored sequence, not by the symbol-sorted key order of the scan.
func TestStore_TokensLoadInRegistrationOrder(t *testing.T) {
	s := openTestStore(t)

	recs := []TokenRecord{
		{Symbol: "DAI", Handle: "0x0000000000000000000000000000000000000001", Seq: 0},
		{Symbol: "BNB", Handle: "0x0000000000000000000000000000000000000002", Seq: 1},
		{Symbol: "LINK", Handle: "0x0000000000000000000000000000000000000003", Seq: 2},
		{Symbol: "YFI", Handle: "0x0000000000000000000000000000000000000004", Seq: 3},
	}
	// Save out of order; only Seq should decide the result.
	for _, i := range []int{2, 0, 3, 1} {
		if err := s.SaveToken(recs[i]); err != nil {
			t.Fatalf("save token %s: %v", recs[i].Symbol, err)
		}
	}

	got, err := s.LoadTokens()
	if err != nil {
		t.Fatalf("load tokens: %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("loaded %d tokens, want %d", len(got), len(recs))
	}
	for i, want := range recs {
		if got[i] != want {
			t.Errorf("tokens[%d] = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestStore_BalanceAndOrderRoundTrip(t *testing.T) {
	s := openTestStore(t)

	b := s.NewBatch()
	defer b.Close()

	bal := BalanceRecord{
		Trader:  "0x00000000000000000000000000000000000000a1",
		Symbol:  "DAI",
		Balance: "1000",
	}
	if err := b.SetBalance(bal); err != nil {
		t.Fatalf("set balance: %v", err)
	}

	ord := OrderRecord{
		ID:        0,
		Trader:    bal.Trader,
		Symbol:    "BNB",
		Side:      0,
		Price:     "10",
		Amount:    "100",
		Filled:    "0",
		CreatedAt: 1700000000000,
	}
	if err := b.SetOrder(ord); err != nil {
		t.Fatalf("set order: %v", err)
	}
	if err := b.SetNextOrderID(1); err != nil {
		t.Fatalf("set next order id: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	balances, err := s.LoadBalances()
	if err != nil {
		t.Fatalf("load balances: %v", err)
	}
	if len(balances) != 1 || balances[0] != bal {
		t.Errorf("balances = %+v, want [%+v]", balances, bal)
	}

	orders, err := s.LoadOrders()
	if err != nil {
		t.Fatalf("load orders: %v", err)
	}
	if len(orders) != 1 || orders[0] != ord {
		t.Errorf("orders = %+v, want [%+v]", orders, ord)
	}

	id, ok, err := s.LoadNextOrderID()
	if err != nil || !ok || id != 1 {
		t.Errorf("next order id = (%d, %v, %v), want (1, true, nil)", id, ok, err)
	}
}

// TestStore_OrdersLoadInIDOrder checks the zero-padded key layout: orders
// come back sorted by id regardless of write order.
func TestStore_OrdersLoadInIDOrder(t *testing.T) {
	s := openTestStore(t)

	b := s.NewBatch()
	defer b.Close()
	for _, id := range []uint64{7, 100, 2, 19} {
		rec := OrderRecord{ID: id, Symbol: "BNB", Price: "10", Amount: "1", Filled: "0"}
		if err := b.SetOrder(rec); err != nil {
			t.Fatalf("set order %d: %v", id, err)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	orders, err := s.LoadOrders()
	if err != nil {
		t.Fatalf("load orders: %v", err)
	}
	want := []uint64{2, 7, 19, 100}
	if len(orders) != len(want) {
		t.Fatalf("loaded %d orders, want %d", len(orders), len(want))
	}
	for i, id := range want {
		if orders[i].ID != id {
			t.Errorf("orders[%d].ID = %d, want %d", i, orders[i].ID, id)
		}
	}
}

func TestStore_RecentTradesNewestFirst(t *testing.T) {
	s := openTestStore(t)

	b := s.NewBatch()
	defer b.Close()
	for id := uint64(0); id < 5; id++ {
		rec := TradeRecord{ID: id, Symbol: "BNB", Price: "10", Amount: "1"}
		if err := b.SetTrade(rec); err != nil {
			t.Fatalf("set trade %d: %v", id, err)
		}
	}
	// Another symbol's trades must not leak into the scan.
	if err := b.SetTrade(TradeRecord{ID: 5, Symbol: "LINK", Price: "3", Amount: "1"}); err != nil {
		t.Fatalf("set trade: %v", err)
	}
	if err := b.SetNextTradeID(6); err != nil {
		t.Fatalf("set next trade id: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	trades, err := s.LoadRecentTrades("BNB", 3)
	if err != nil {
		t.Fatalf("load recent trades: %v", err)
	}
	want := []uint64{4, 3, 2}
	if len(trades) != len(want) {
		t.Fatalf("loaded %d trades, want %d", len(trades), len(want))
	}
	for i, id := range want {
		if trades[i].ID != id {
			t.Errorf("trades[%d].ID = %d, want %d", i, trades[i].ID, id)
		}
	}

	id, ok, err := s.LoadNextTradeID()
	if err != nil || !ok || id != 6 {
		t.Errorf("next trade id = (%d, %v, %v), want (6, true, nil)", id, ok, err)
	}
}

func TestStore_CountersAbsent(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.LoadNextOrderID(); err != nil || ok {
		t.Errorf("next order id on empty store: ok=%v err=%v, want absent", ok, err)
	}
	if _, ok, err := s.LoadNextTradeID(); err != nil || ok {
		t.Errorf("next trade id on empty store: ok=%v err=%v, want absent", ok, err)
	}
}
