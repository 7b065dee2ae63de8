package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestLedger_DefaultsToZero(t *testing.T) {
	l := New()
	if got := l.Balance(alice, "DAI"); !got.IsZero() {
		t.Errorf("unseen balance = %s, want 0", got.Dec())
	}
}

func TestLedger_CreditDebit(t *testing.T) {
	l := New()

	l.Credit(alice, "DAI", u(1000))
	l.Credit(alice, "DAI", u(500))
	if got := l.Balance(alice, "DAI"); !got.Eq(u(1500)) {
		t.Fatalf("balance after credits = %s, want 1500", got.Dec())
	}

	if err := l.Debit(alice, "DAI", u(700)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if got := l.Balance(alice, "DAI"); !got.Eq(u(800)) {
		t.Errorf("balance after debit = %s, want 800", got.Dec())
	}
}

func TestLedger_DebitInsufficient(t *testing.T) {
	l := New()
	l.Credit(alice, "DAI", u(100))

	err := l.Debit(alice, "DAI", u(101))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	// Failed debit leaves the balance untouched.
	if got := l.Balance(alice, "DAI"); !got.Eq(u(100)) {
		t.Errorf("balance after failed debit = %s, want 100", got.Dec())
	}

	// Unseen key debits fail the same way.
	if err := l.Debit(bob, "DAI", u(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance for unseen key, got %v", err)
	}
}

func TestLedger_KeysAreIndependent(t *testing.T) {
	l := New()

	l.Credit(alice, "DAI", u(10))
	l.Credit(alice, "BNB", u(20))
	l.Credit(bob, "DAI", u(30))

	if got := l.Balance(alice, "DAI"); !got.Eq(u(10)) {
		t.Errorf("alice DAI = %s, want 10", got.Dec())
	}
	if got := l.Balance(alice, "BNB"); !got.Eq(u(20)) {
		t.Errorf("alice BNB = %s, want 20", got.Dec())
	}
	if got := l.Balance(bob, "DAI"); !got.Eq(u(30)) {
		t.Errorf("bob DAI = %s, want 30", got.Dec())
	}
}

// TestLedger_NetOfOperations checks that the balance always equals the net
// of all successful credits and debits, and never goes negative.
func TestLedger_NetOfOperations(t *testing.T) {
	l := New()

	ops := []struct {
		credit bool
		amount uint64
		ok     bool
	}{
		{credit: true, amount: 100, ok: true},
		{credit: false, amount: 40, ok: true},
		{credit: false, amount: 100, ok: false}, // would underflow
		{credit: true, amount: 5, ok: true},
		{credit: false, amount: 65, ok: true},
		{credit: false, amount: 1, ok: false}, // empty again
	}

	net := u(0)
	for i, op := range ops {
		if op.credit {
			l.Credit(alice, "DAI", u(op.amount))
			net.Add(net, u(op.amount))
			continue
		}
		err := l.Debit(alice, "DAI", u(op.amount))
		if op.ok && err != nil {
			t.Fatalf("op %d: unexpected debit error: %v", i, err)
		}
		if !op.ok && !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("op %d: expected ErrInsufficientBalance, got %v", i, err)
		}
		if op.ok {
			net.Sub(net, u(op.amount))
		}
	}

	if got := l.Balance(alice, "DAI"); !got.Eq(net) {
		t.Errorf("balance = %s, want net %s", got.Dec(), net.Dec())
	}
}

func TestLedger_SnapshotAndSet(t *testing.T) {
	l := New()
	l.Credit(alice, "DAI", u(42))
	l.Credit(bob, "BNB", u(7))

	snap := l.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}

	restored := New()
	for _, e := range snap {
		restored.Set(e.Trader, e.Symbol, e.Balance)
	}
	if got := restored.Balance(alice, "DAI"); !got.Eq(u(42)) {
		t.Errorf("restored alice DAI = %s, want 42", got.Dec())
	}
	if got := restored.Balance(bob, "BNB"); !got.Eq(u(7)) {
		t.Errorf("restored bob BNB = %s, want 7", got.Dec())
	}
}
