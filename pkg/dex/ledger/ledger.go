// Package ledger tracks custodial balances per (trader, symbol).
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInsufficientBalance is returned by Debit when the balance cannot
// cover the requested amount.
var ErrInsufficientBalance = errors.New("not enough tokens")

type key struct {
	trader common.Address
	symbol string
}

// Entry is one (trader, symbol) balance, used for snapshots and restores.
type Entry struct {
	Trader  common.Address
	Symbol  string
	Balance *uint256.Int
}

// Ledger is the custodial balance table. Unseen keys read as zero; a debit
// is always preceded by a sufficiency check so balances never underflow.
type Ledger struct {
	mu       sync.RWMutex
	balances map[key]*uint256.Int
}

func New() *Ledger {
	return &Ledger{balances: make(map[key]*uint256.Int)}
}

// Credit increases the balance unconditionally.
func (l *Ledger) Credit(trader common.Address, symbol string, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{trader, symbol}
	cur, ok := l.balances[k]
	if !ok {
		cur = uint256.NewInt(0)
		l.balances[k] = cur
	}
	cur.Add(cur, amount)
}

// Debit decreases the balance, failing with ErrInsufficientBalance if the
// current balance is below amount. The check and the subtraction happen
// under one lock, there is no window where the balance goes negative.
func (l *Ledger) Debit(trader common.Address, symbol string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{trader, symbol}
	cur, ok := l.balances[k]
	if !ok || cur.Lt(amount) {
		return fmt.Errorf("%w: %s balance of %s below %s", ErrInsufficientBalance, symbol, trader.Hex(), amount.Dec())
	}
	cur.Sub(cur, amount)
	return nil
}

// Balance returns a copy of the current balance, zero for unseen keys.
func (l *Ledger) Balance(trader common.Address, symbol string) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cur, ok := l.balances[key{trader, symbol}]; ok {
		return cur.Clone()
	}
	return uint256.NewInt(0)
}

// Set overwrites one balance. Used when restoring from storage.
func (l *Ledger) Set(trader common.Address, symbol string, balance *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key{trader, symbol}] = balance.Clone()
}

// Snapshot returns a copy of every balance entry.
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.balances))
	for k, v := range l.balances {
		out = append(out, Entry{Trader: k.trader, Symbol: k.symbol, Balance: v.Clone()})
	}
	return out
}
