package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry("DAI")

	handle := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if err := r.Register("DAI", handle); err != nil {
		t.Fatalf("register DAI: %v", err)
	}

	tok, err := r.Resolve("DAI")
	if err != nil {
		t.Fatalf("resolve DAI: %v", err)
	}
	if tok.Symbol != "DAI" || tok.Handle != handle {
		t.Errorf("resolved token mismatch: %+v", tok)
	}
}

func TestRegistry_DuplicateSymbol(t *testing.T) {
	r := NewRegistry("DAI")
	handle := common.HexToAddress("0x0000000000000000000000000000000000000002")

	if err := r.Register("BNB", handle); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register("BNB", handle)
	if !errors.Is(err, ErrDuplicateSymbol) {
		t.Errorf("expected ErrDuplicateSymbol, got %v", err)
	}
}

func TestRegistry_UnknownToken(t *testing.T) {
	r := NewRegistry("DAI")

	_, err := r.Resolve("BAT")
	if !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
}

func TestRegistry_IsSettlement(t *testing.T) {
	r := NewRegistry("DAI")

	if !r.IsSettlement("DAI") {
		t.Error("DAI should be the settlement symbol")
	}
	if r.IsSettlement("BNB") {
		t.Error("BNB should not be the settlement symbol")
	}
	if got := r.Settlement(); got != "DAI" {
		t.Errorf("Settlement() = %q, want DAI", got)
	}
}

func TestRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry("DAI")

	symbols := []string{"DAI", "BNB", "LINK", "YFI"}
	for i, s := range symbols {
		handle := common.Address{byte(i + 1)}
		if err := r.Register(s, handle); err != nil {
			t.Fatalf("register %s: %v", s, err)
		}
	}

	list := r.List()
	if len(list) != len(symbols) {
		t.Fatalf("expected %d tokens, got %d", len(symbols), len(list))
	}
	for i, s := range symbols {
		if list[i].Symbol != s {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Symbol, s)
		}
	}
}
