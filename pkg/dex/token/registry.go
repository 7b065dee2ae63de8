// Package token holds the registry of tradable tokens and the designated
// settlement currency all prices are quoted in.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnknownToken is returned when a symbol was never registered.
	ErrUnknownToken = errors.New("token does not exist")
	// ErrDuplicateSymbol is returned when registering a symbol twice.
	ErrDuplicateSymbol = errors.New("token already registered")
)

// Token maps a short symbol to its external contract handle.
type Token struct {
	Symbol string
	Handle common.Address
}

// Registry is the immutable-after-setup token table. Tokens are registered
// once at deployment time and never removed or mutated afterwards.
type Registry struct {
	mu         sync.RWMutex
	tokens     map[string]Token
	symbols    []string // registration order, for stable snapshots
	settlement string
}

// NewRegistry creates a registry with the given settlement symbol. The
// settlement token itself still has to be registered like any other; it is
// only excluded from tradable-symbol checks.
func NewRegistry(settlement string) *Registry {
	return &Registry{
		tokens:     make(map[string]Token),
		settlement: settlement,
	}
}

// Register adds a token. Returns ErrDuplicateSymbol if the symbol is taken.
func (r *Registry) Register(symbol string, handle common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[symbol]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol)
	}
	r.tokens[symbol] = Token{Symbol: symbol, Handle: handle}
	r.symbols = append(r.symbols, symbol)
	return nil
}

// Resolve returns the token for a symbol, or ErrUnknownToken.
func (r *Registry) Resolve(symbol string) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tok, exists := r.tokens[symbol]
	if !exists {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return tok, nil
}

// IsSettlement reports whether symbol is the settlement currency.
func (r *Registry) IsSettlement(symbol string) bool {
	return symbol == r.settlement
}

// Settlement returns the settlement symbol.
func (r *Registry) Settlement() string {
	return r.settlement
}

// List returns all registered tokens in registration order.
func (r *Registry) List() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Token, 0, len(r.symbols))
	for _, s := range r.symbols {
		out = append(out, r.tokens[s])
	}
	return out
}
