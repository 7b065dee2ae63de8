// Package dex implements the order-matching and custody engine: custodial
// balances per trader, price-sorted order books per symbol and side, and
// atomic trade settlement against the internal ledger.
package dex

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/clearport/dex/pkg/dex/book"
	"github.com/clearport/dex/pkg/dex/ledger"
	"github.com/clearport/dex/pkg/dex/token"
	"github.com/clearport/dex/pkg/dex/transfer"
	"github.com/clearport/dex/pkg/storage"
	"github.com/clearport/dex/pkg/util"
)

// ErrSettlementNotTradable is returned when an order names the settlement
// currency as its symbol.
var ErrSettlementNotTradable = errors.New("settlement token cannot be traded")

// Trade is one settled fill between an incoming order and a resting one.
type Trade struct {
	ID           uint64
	Symbol       string
	Taker        common.Address
	Maker        common.Address
	MakerOrderID uint64
	Side         book.Side // taker side
	Price        *uint256.Int
	Amount       *uint256.Int
	Timestamp    int64
}

type bookKey struct {
	symbol string
	side   book.Side
}

// Engine orchestrates deposits, withdrawals and order matching. Every
// public operation runs to completion under one exclusive lock, so no
// caller ever observes a partially applied operation, and a failure
// mid-operation rolls back completely.
type Engine struct {
	mu sync.Mutex

	registry    *token.Registry
	ledger      *ledger.Ledger
	books       map[bookKey]*book.Book
	transferrer transfer.Transferrer

	store *storage.Store // optional durability
	clock util.Clock
	log   *zap.SugaredLogger

	nextOrderID uint64
	nextTradeID uint64

	recentTrades map[string][]*Trade // symbol → newest last, memory fallback
}

type Option func(*Engine)

// WithStore persists every operation through the given store and enables
// Restore at boot.
func WithStore(s *storage.Store) Option {
	return func(e *Engine) { e.store = s }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

func WithClock(c util.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates an engine whose prices settle in the given settlement
// symbol. The settlement token still has to be registered before deposits
// in it are accepted.
func NewEngine(settlement string, t transfer.Transferrer, opts ...Option) *Engine {
	e := &Engine{
		registry:     token.NewRegistry(settlement),
		ledger:       ledger.New(),
		books:        make(map[bookKey]*book.Book),
		transferrer:  t,
		clock:        util.RealClock{},
		log:          zap.NewNop().Sugar(),
		recentTrades: make(map[string][]*Trade),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterToken adds a token to the registry. Deployment-time setup only;
// there is no removal.
func (e *Engine) RegisterToken(symbol string, handle common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := uint64(len(e.registry.List()))
	if err := e.registry.Register(symbol, handle); err != nil {
		return err
	}
	if e.store != nil {
		rec := storage.TokenRecord{Symbol: symbol, Handle: handle.Hex(), Seq: seq}
		if err := e.store.SaveToken(rec); err != nil {
			return err
		}
	}
	e.log.Infow("token_registered", "symbol", symbol, "handle", handle.Hex())
	return nil
}

// Restore reloads tokens, balances, resting orders and id counters from
// the store. Orders are re-inserted in arrival order, which reproduces
// the price-time priority of every book exactly.
func (e *Engine) Restore() error {
	if e.store == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, err := e.store.LoadTokens()
	if err != nil {
		return fmt.Errorf("restore tokens: %w", err)
	}
	for _, rec := range tokens {
		if err := e.registry.Register(rec.Symbol, common.HexToAddress(rec.Handle)); err != nil {
			return fmt.Errorf("restore tokens: %w", err)
		}
	}

	balances, err := e.store.LoadBalances()
	if err != nil {
		return fmt.Errorf("restore balances: %w", err)
	}
	for _, rec := range balances {
		bal, err := amountFromDec(rec.Balance)
		if err != nil {
			return fmt.Errorf("restore balances: %w", err)
		}
		e.ledger.Set(common.HexToAddress(rec.Trader), rec.Symbol, bal)
	}

	orders, err := e.store.LoadOrders()
	if err != nil {
		return fmt.Errorf("restore orders: %w", err)
	}
	for _, rec := range orders {
		o, err := orderFromRecord(rec)
		if err != nil {
			return fmt.Errorf("restore orders: %w", err)
		}
		e.bookFor(o.Symbol, o.Side).Insert(o)
	}

	if id, ok, err := e.store.LoadNextOrderID(); err != nil {
		return fmt.Errorf("restore counters: %w", err)
	} else if ok {
		e.nextOrderID = id
	}
	if id, ok, err := e.store.LoadNextTradeID(); err != nil {
		return fmt.Errorf("restore counters: %w", err)
	} else if ok {
		e.nextTradeID = id
	}

	e.log.Infow("state_restored",
		"tokens", len(tokens),
		"balances", len(balances),
		"orders", len(orders),
		"next_order_id", e.nextOrderID,
	)
	return nil
}

// Deposit pulls amount of the token from the trader's external wallet into
// custody, then credits the custodial balance. The pull is all-or-nothing;
// a transfer failure leaves the ledger untouched.
func (e *Engine) Deposit(trader common.Address, symbol string, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tok, err := e.registry.Resolve(symbol)
	if err != nil {
		return err
	}

	if err := e.transferrer.Pull(tok.Handle, trader, amount); err != nil {
		return err
	}
	e.ledger.Credit(trader, symbol, amount)

	if err := e.persistBalances(balanceRef{trader, symbol}); err != nil {
		// A storage failure unwinds the whole deposit: undo the credit
		// and return the pulled funds.
		_ = e.ledger.Debit(trader, symbol, amount)
		if perr := e.transferrer.Push(tok.Handle, trader, amount); perr != nil {
			e.log.Errorw("deposit_refund_failed", "trader", trader.Hex(), "symbol", symbol, "err", perr)
		}
		return err
	}
	e.log.Infow("deposit", "trader", trader.Hex(), "symbol", symbol, "amount", amount.Dec())
	return nil
}

// Withdraw debits the custodial balance first and only then pushes the
// amount out to the trader's wallet. The debit-before-transfer ordering is
// an invariant: a reentrant call during the push can never withdraw the
// same funds twice. A failed persist or push restores the debit.
func (e *Engine) Withdraw(trader common.Address, symbol string, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tok, err := e.registry.Resolve(symbol)
	if err != nil {
		return err
	}

	if err := e.ledger.Debit(trader, symbol, amount); err != nil {
		return err
	}
	// Persist the debit before the external push: a storage failure here
	// unwinds cleanly because no funds have left custody yet.
	if err := e.persistBalances(balanceRef{trader, symbol}); err != nil {
		e.ledger.Credit(trader, symbol, amount)
		return err
	}
	if err := e.transferrer.Push(tok.Handle, trader, amount); err != nil {
		e.ledger.Credit(trader, symbol, amount)
		if perr := e.persistBalances(balanceRef{trader, symbol}); perr != nil {
			e.log.Errorw("withdraw_restore_failed", "trader", trader.Hex(), "symbol", symbol, "err", perr)
		}
		return err
	}
	e.log.Infow("withdraw", "trader", trader.Hex(), "symbol", symbol, "amount", amount.Dec())
	return nil
}

// LimitOrder places a resting order. The trader must hold enough balance
// to honor it at placement time (settlement balance covering amount×price
// for buys, the base token balance covering amount for sells), but nothing
// is escrowed: the funds stay spendable and both legs are re-checked when
// a market order actually fills against this one.
//
// Limit orders never match on placement, only market orders consume the
// book.
func (e *Engine) LimitOrder(trader common.Address, symbol string, amount, price *uint256.Int, side book.Side) (*book.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.registry.Resolve(symbol); err != nil {
		return nil, err
	}
	if e.registry.IsSettlement(symbol) {
		return nil, fmt.Errorf("%w: %s", ErrSettlementNotTradable, symbol)
	}

	if side == book.Buy {
		cost, overflow := new(uint256.Int).MulOverflow(amount, price)
		if overflow || e.ledger.Balance(trader, e.registry.Settlement()).Lt(cost) {
			return nil, fmt.Errorf("%w: %s balance of %s cannot cover buy order", ledger.ErrInsufficientBalance, e.registry.Settlement(), trader.Hex())
		}
	} else {
		if e.ledger.Balance(trader, symbol).Lt(amount) {
			return nil, fmt.Errorf("%w: %s balance of %s cannot cover sell order", ledger.ErrInsufficientBalance, symbol, trader.Hex())
		}
	}

	o := &book.Order{
		ID:        e.nextOrderID,
		Trader:    trader,
		Symbol:    symbol,
		Side:      side,
		Price:     price.Clone(),
		Amount:    amount.Clone(),
		Filled:    uint256.NewInt(0),
		CreatedAt: e.clock.Now().UnixMilli(),
	}
	// Commit before touching the book or the counter, so a storage
	// failure leaves no resting order behind in memory.
	if e.store != nil {
		batch := e.store.NewBatch()
		defer batch.Close()
		if err := batch.SetOrder(orderToRecord(o)); err != nil {
			return nil, err
		}
		if err := batch.SetNextOrderID(o.ID + 1); err != nil {
			return nil, err
		}
		if err := batch.Commit(); err != nil {
			return nil, err
		}
	}

	e.nextOrderID++
	e.bookFor(symbol, side).Insert(o)

	e.log.Infow("order_placed",
		"id", o.ID,
		"trader", trader.Hex(),
		"symbol", symbol,
		"side", side.String(),
		"price", price.Dec(),
		"amount", amount.Dec(),
	)
	return o.Clone(), nil
}

// MarketOrder walks the opposite book from the best resting order, filling
// until the incoming amount is consumed or the book is exhausted. Each
// fill settles four balance legs at the resting order's price; both
// parties' balances are re-checked at settlement time since they can have
// moved after placement. If any leg fails, every mutation of this call is
// rolled back and the error surfaces — no partial fill survives.
//
// A remainder left after the book is exhausted is discarded: a market
// order never rests.
func (e *Engine) MarketOrder(trader common.Address, symbol string, amount *uint256.Int, side book.Side) ([]*Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.registry.Resolve(symbol); err != nil {
		return nil, err
	}
	if e.registry.IsSettlement(symbol) {
		return nil, fmt.Errorf("%w: %s", ErrSettlementNotTradable, symbol)
	}

	// A market sell is bounded by the trader's base balance up front; the
	// cost of a market buy depends on resting prices and can only be
	// checked per fill.
	if side == book.Sell && e.ledger.Balance(trader, symbol).Lt(amount) {
		return nil, fmt.Errorf("%w: %s balance of %s below %s", ledger.ErrInsufficientBalance, symbol, trader.Hex(), amount.Dec())
	}

	settlement := e.registry.Settlement()

	type legOp struct {
		debit  bool
		trader common.Address
		symbol string
		amount *uint256.Int
	}
	var journal []legOp

	debit := func(tr common.Address, sym string, amt *uint256.Int) error {
		if err := e.ledger.Debit(tr, sym, amt); err != nil {
			return err
		}
		journal = append(journal, legOp{debit: true, trader: tr, symbol: sym, amount: amt})
		return nil
	}
	credit := func(tr common.Address, sym string, amt *uint256.Int) {
		e.ledger.Credit(tr, sym, amt)
		journal = append(journal, legOp{debit: false, trader: tr, symbol: sym, amount: amt})
	}
	rollback := func() {
		for i := len(journal) - 1; i >= 0; i-- {
			op := journal[i]
			if op.debit {
				e.ledger.Credit(op.trader, op.symbol, op.amount)
			} else {
				// Undoing a credit we just applied cannot underflow.
				_ = e.ledger.Debit(op.trader, op.symbol, op.amount)
			}
		}
		journal = nil
	}

	opposite := e.bookFor(symbol, side.Opposite())
	fills, err := opposite.Match(amount, func(maker *book.Order, qty *uint256.Int) error {
		cost, overflow := new(uint256.Int).MulOverflow(qty, maker.Price)
		if overflow {
			return fmt.Errorf("%w: fill cost overflows", ledger.ErrInsufficientBalance)
		}
		if side == book.Buy {
			// Taker pays settlement, receives base; the resting seller
			// gives up base and receives the settlement.
			if err := debit(trader, settlement, cost); err != nil {
				return err
			}
			if err := debit(maker.Trader, symbol, qty); err != nil {
				return err
			}
			credit(maker.Trader, settlement, cost)
			credit(trader, symbol, qty)
			return nil
		}
		// Taker sells base for settlement against a resting buyer.
		if err := debit(trader, symbol, qty); err != nil {
			return err
		}
		if err := debit(maker.Trader, settlement, cost); err != nil {
			return err
		}
		credit(maker.Trader, symbol, qty)
		credit(trader, settlement, cost)
		return nil
	})
	if err != nil {
		rollback()
		return nil, err
	}

	now := e.clock.Now().UnixMilli()
	trades := make([]*Trade, 0, len(fills))
	for _, f := range fills {
		trades = append(trades, &Trade{
			ID:           e.nextTradeID,
			Symbol:       symbol,
			Taker:        trader,
			Maker:        f.Maker,
			MakerOrderID: f.MakerOrderID,
			Side:         side,
			Price:        f.Price,
			Amount:       f.Qty,
			Timestamp:    now,
		})
		e.nextTradeID++
	}
	if err := e.persistMarketOrder(trader, symbol, fills, trades); err != nil {
		// Unwind the fills a failed commit left dangling in memory.
		rollback()
		for _, f := range fills {
			opposite.Unfill(f.MakerOrderID, f.Qty)
		}
		e.nextTradeID -= uint64(len(trades))
		return nil, err
	}
	if e.store == nil {
		e.rememberTrades(symbol, trades)
	}

	e.log.Infow("market_order",
		"trader", trader.Hex(),
		"symbol", symbol,
		"side", side.String(),
		"amount", amount.Dec(),
		"fills", len(trades),
	)
	return trades, nil
}

// Tokens returns the registry snapshot in registration order.
func (e *Engine) Tokens() []token.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.List()
}

// BalanceOf returns the trader's custodial balance, zero for unseen keys.
// Like every other query it serializes behind the operation lock, so it
// never observes the partially applied legs of an in-flight operation.
func (e *Engine) BalanceOf(trader common.Address, symbol string) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balance(trader, symbol)
}

// Orders returns the book snapshot for (symbol, side) in priority order.
// Fully filled orders remain visible.
func (e *Engine) Orders(symbol string, side book.Side) []*book.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookFor(symbol, side).Orders()
}

// OrdersForTrader returns one trader's resting orders for (symbol, side).
func (e *Engine) OrdersForTrader(trader common.Address, symbol string, side book.Side) []*book.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookFor(symbol, side).OrdersForTrader(trader)
}

// Trades returns up to limit trades for a symbol, newest first.
func (e *Engine) Trades(symbol string, limit int) ([]*Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store != nil {
		recs, err := e.store.LoadRecentTrades(symbol, limit)
		if err != nil {
			return nil, err
		}
		trades := make([]*Trade, 0, len(recs))
		for _, rec := range recs {
			tr, err := tradeFromRecord(rec)
			if err != nil {
				return nil, err
			}
			trades = append(trades, tr)
		}
		return trades, nil
	}

	mem := e.recentTrades[symbol]
	var trades []*Trade
	for i := len(mem) - 1; i >= 0 && len(trades) < limit; i-- {
		trades = append(trades, mem[i])
	}
	return trades, nil
}

func (e *Engine) bookFor(symbol string, side book.Side) *book.Book {
	k := bookKey{symbol, side}
	b, ok := e.books[k]
	if !ok {
		b = book.New(symbol, side)
		e.books[k] = b
	}
	return b
}

const recentTradeCap = 1000

func (e *Engine) rememberTrades(symbol string, trades []*Trade) {
	mem := append(e.recentTrades[symbol], trades...)
	if len(mem) > recentTradeCap {
		mem = mem[len(mem)-recentTradeCap:]
	}
	e.recentTrades[symbol] = mem
}

type balanceRef struct {
	trader common.Address
	symbol string
}

// persistBalances writes the given ledger entries in one batch.
func (e *Engine) persistBalances(refs ...balanceRef) error {
	if e.store == nil {
		return nil
	}
	batch := e.store.NewBatch()
	defer batch.Close()
	if err := e.stageBalances(batch, refs); err != nil {
		return err
	}
	return batch.Commit()
}

func (e *Engine) stageBalances(batch *storage.Batch, refs []balanceRef) error {
	seen := make(map[balanceRef]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		rec := storage.BalanceRecord{
			Trader:  ref.trader.Hex(),
			Symbol:  ref.symbol,
			Balance: e.ledger.Balance(ref.trader, ref.symbol).Dec(),
		}
		if err := batch.SetBalance(rec); err != nil {
			return err
		}
	}
	return nil
}

// persistMarketOrder writes every mutation of one market order (touched
// balances, advanced maker orders, trades and the trade counter) in one
// atomic batch.
func (e *Engine) persistMarketOrder(taker common.Address, symbol string, fills []book.Fill, trades []*Trade) error {
	if e.store == nil || len(fills) == 0 {
		return nil
	}

	batch := e.store.NewBatch()
	defer batch.Close()

	settlement := e.registry.Settlement()
	refs := []balanceRef{{taker, settlement}, {taker, symbol}}
	for _, f := range fills {
		refs = append(refs, balanceRef{f.Maker, settlement}, balanceRef{f.Maker, symbol})
	}
	if err := e.stageBalances(batch, refs); err != nil {
		return err
	}

	for _, f := range fills {
		o, ok := e.findOrder(symbol, f.MakerOrderID)
		if !ok {
			return fmt.Errorf("maker order %d missing from book", f.MakerOrderID)
		}
		if err := batch.SetOrder(orderToRecord(o)); err != nil {
			return err
		}
	}
	for _, tr := range trades {
		if err := batch.SetTrade(tradeToRecord(tr)); err != nil {
			return err
		}
	}
	if err := batch.SetNextTradeID(e.nextTradeID); err != nil {
		return err
	}
	return batch.Commit()
}

func (e *Engine) findOrder(symbol string, id uint64) (*book.Order, bool) {
	if o, ok := e.bookFor(symbol, book.Buy).Get(id); ok {
		return o, true
	}
	return e.bookFor(symbol, book.Sell).Get(id)
}
