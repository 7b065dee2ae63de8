// Package transfer is the boundary to real token movement. The engine only
// ever pulls value into custody on deposit and pushes it back out on
// withdrawal; everything in between settles against the internal ledger.
package transfer

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrTransferFailed is returned when the external transfer cannot be
// completed, e.g. the trader's wallet balance or allowance is too low.
var ErrTransferFailed = errors.New("token transfer failed")

// Transferrer moves token value between a trader's external wallet and the
// exchange custody account. Calls are fallible and must not be retried
// within the same engine operation; a failure aborts the whole operation.
type Transferrer interface {
	// Pull takes amount of the token from the trader into custody.
	Pull(token common.Address, trader common.Address, amount *uint256.Int) error
	// Push pays amount of the token from custody out to the trader.
	Push(token common.Address, trader common.Address, amount *uint256.Int) error
}
