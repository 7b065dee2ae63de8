// Package storage persists the exchange state (tokens, balances, resting
// orders, trades) in a Pebble database. Every engine operation writes its
// mutations through one atomic batch, so a crash never leaves a partially
// applied operation on disk.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
)

// TokenRecord is the stored form of a registered token.
type TokenRecord struct {
	Symbol string `json:"symbol"`
	Handle string `json:"handle"` // hex address
	Seq    uint64 `json:"seq"`    // registration order
}

// BalanceRecord is the stored form of one (trader, symbol) balance.
// Amounts are decimal strings to keep full 256-bit precision in JSON.
type BalanceRecord struct {
	Trader  string `json:"trader"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
}

// OrderRecord is the stored form of a resting order.
type OrderRecord struct {
	ID        uint64 `json:"id"`
	Trader    string `json:"trader"`
	Symbol    string `json:"symbol"`
	Side      int8   `json:"side"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Filled    string `json:"filled"`
	CreatedAt int64  `json:"createdAt"`
}

// TradeRecord is the stored form of one settled fill.
type TradeRecord struct {
	ID           uint64 `json:"id"`
	Symbol       string `json:"symbol"`
	Taker        string `json:"taker"`
	Maker        string `json:"maker"`
	MakerOrderID uint64 `json:"makerOrderId"`
	Side         int8   `json:"side"` // taker side
	Price        string `json:"price"`
	Amount       string `json:"amount"`
	Timestamp    int64  `json:"timestamp"`
}

// Store wraps the Pebble database.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveToken persists a registered token. Registration happens outside the
// operation path, so it syncs on its own.
func (s *Store) SaveToken(rec TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.db.Set(tokenKey(rec.Symbol), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadTokens returns all registered tokens in registration order. The key
// space is symbol-sorted, so the stored sequence number restores the order.
func (s *Store) LoadTokens() ([]TokenRecord, error) {
	recs, err := loadPrefix[TokenRecord](s, []byte(prefixToken))
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	return recs, nil
}

// LoadBalances returns every stored balance entry.
func (s *Store) LoadBalances() ([]BalanceRecord, error) {
	return loadPrefix[BalanceRecord](s, []byte(prefixBalance))
}

// LoadOrders returns all orders in arrival (id) order.
func (s *Store) LoadOrders() ([]OrderRecord, error) {
	return loadPrefix[OrderRecord](s, []byte(prefixOrder))
}

// LoadRecentTrades returns up to limit trades for a symbol, newest first.
func (s *Store) LoadRecentTrades(symbol string, limit int) ([]TradeRecord, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var trades []TradeRecord
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var rec TradeRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // skip invalid entries
		}
		trades = append(trades, rec)
	}
	return trades, nil
}

// LoadNextOrderID returns the persisted order id counter. ok is false when
// the database has never stored one.
func (s *Store) LoadNextOrderID() (uint64, bool, error) {
	return s.loadCounter(keyNextOrderID)
}

// LoadNextTradeID returns the persisted trade id counter.
func (s *Store) LoadNextTradeID() (uint64, bool, error) {
	return s.loadCounter(keyNextTradeID)
}

func (s *Store) loadCounter(key string) (uint64, bool, error) {
	data, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(data), true, nil
}

func loadPrefix[T any](s *Store, prefix []byte) ([]T, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var out []T
	for iter.First(); iter.Valid(); iter.Next() {
		var rec T
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // skip invalid entries
		}
		out = append(out, rec)
	}
	return out, nil
}

// Batch accumulates the writes of one engine operation and commits them
// atomically.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) SetBalance(rec BalanceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.batch.Set(balanceKey(rec.Trader, rec.Symbol), data, nil)
}

func (b *Batch) SetOrder(rec OrderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.batch.Set(orderKey(rec.ID), data, nil)
}

func (b *Batch) SetTrade(rec TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.batch.Set(tradeKey(rec.Symbol, rec.Timestamp, rec.ID), data, nil)
}

func (b *Batch) SetNextOrderID(id uint64) error {
	return b.setCounter(keyNextOrderID, id)
}

func (b *Batch) SetNextTradeID(id uint64) error {
	return b.setCounter(keyNextTradeID, id)
}

func (b *Batch) setCounter(key string, id uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return b.batch.Set([]byte(key), buf[:], nil)
}

// Commit writes the batch durably.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}
