package transfer

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type bankKey struct {
	token  common.Address
	holder common.Address
}

// Bank is an in-memory Transferrer for devnet and tests. It stands in for
// the on-chain token contracts: Faucet mints wallet balance, Pull moves it
// into custody, Push pays it back out.
type Bank struct {
	mu      sync.Mutex
	wallets map[bankKey]*uint256.Int
}

func NewBank() *Bank {
	return &Bank{wallets: make(map[bankKey]*uint256.Int)}
}

// Faucet mints amount of the token into the trader's wallet.
func (b *Bank) Faucet(token common.Address, trader common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := bankKey{token, trader}
	cur, ok := b.wallets[k]
	if !ok {
		cur = uint256.NewInt(0)
		b.wallets[k] = cur
	}
	cur.Add(cur, amount)
}

// WalletBalance returns the trader's external balance of the token.
func (b *Bank) WalletBalance(token common.Address, trader common.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.wallets[bankKey{token, trader}]; ok {
		return cur.Clone()
	}
	return uint256.NewInt(0)
}

func (b *Bank) Pull(token common.Address, trader common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := bankKey{token, trader}
	cur, ok := b.wallets[k]
	if !ok || cur.Lt(amount) {
		return fmt.Errorf("%w: transfer amount exceeds balance", ErrTransferFailed)
	}
	cur.Sub(cur, amount)
	return nil
}

func (b *Bank) Push(token common.Address, trader common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := bankKey{token, trader}
	cur, ok := b.wallets[k]
	if !ok {
		cur = uint256.NewInt(0)
		b.wallets[k] = cur
	}
	cur.Add(cur, amount)
	return nil
}
