// Package memory provides in-process repositories with the same semantics as
// the Postgres ones. They back tests and single-process local runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/usecase"
)

// Store holds journals, legs and outbox events. Transactions are serialized,
// which gives the same isolation a row lock on the journal would.
type Store struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	journals map[string]*domain.LegSet
	byHash   map[string]string
	events   []*domain.OutboxEvent
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		journals: make(map[string]*domain.LegSet),
		byHash:   make(map[string]string),
	}
}

// Tx is a staged memory transaction. Writes become visible on Commit.
type Tx struct {
	store *Store
	ops   []func()
	done  bool
}

// Begin starts a transaction. It blocks while another one is open.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	s.txMu.Lock()
	if err := ctx.Err(); err != nil {
		s.txMu.Unlock()
		return nil, err
	}
	return &Tx{store: s}, nil
}

// Commit applies the staged writes.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("transaction already closed")
	}
	t.store.mu.Lock()
	for _, op := range t.ops {
		op()
	}
	t.store.mu.Unlock()

	t.done = true
	t.store.txMu.Unlock()
	return nil
}

// Rollback discards the staged writes. It is a no-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.ops = nil
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func asTx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.done {
		return nil, errors.New("memory store requires an open memory transaction")
	}
	return t, nil
}

// Insert stages a new journal with its legs.
func (s *Store) Insert(ctx context.Context, tx usecase.Transaction, set *domain.LegSet) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	_, idTaken := s.journals[set.TransactionID]
	_, hashTaken := s.byHash[set.Hash]
	s.mu.RUnlock()

	if idTaken {
		return errors.New("transaction id already exists")
	}
	if set.Hash != "" && hashTaken {
		return domain.ErrDuplicateHash
	}

	stored := cloneSet(set)
	t.ops = append(t.ops, func() {
		s.journals[stored.TransactionID] = stored
		if stored.Hash != "" {
			s.byHash[stored.Hash] = stored.TransactionID
		}
	})
	return nil
}

// GetByHash returns the journal owning hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*domain.LegSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneSet(s.journals[id]), nil
}

// GetByHashForUpdate reads a journal inside a transaction.
func (s *Store) GetByHashForUpdate(ctx context.Context, tx usecase.Transaction, hash string) (*domain.LegSet, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	return s.GetByHash(ctx, hash)
}

// GetByIDForUpdate reads a journal by id inside a transaction.
func (s *Store) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.LegSet, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.journals[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneSet(set), nil
}

// Settle stages the settled version of a journal.
func (s *Store) Settle(ctx context.Context, tx usecase.Transaction, set *domain.LegSet) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	_, ok := s.journals[set.TransactionID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrTransactionNotFound
	}

	stored := cloneSet(set)
	t.ops = append(t.ops, func() {
		s.journals[stored.TransactionID] = stored
	})
	return nil
}

// Balance sums the legs selected by query.
func (s *Store) Balance(ctx context.Context, query usecase.BalanceQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, set := range s.journals {
		for _, leg := range set.Legs {
			if leg.AccountPath != query.AccountPath || leg.Currency != query.Currency {
				continue
			}
			if query.AsOf != nil && leg.Timestamp.After(*query.AsOf) {
				continue
			}
			if counts(leg, query.View) {
				total += leg.Amount
			}
		}
	}

	return total, nil
}

func counts(leg *domain.LedgerEntry, view usecase.BalanceView) bool {
	switch view {
	case usecase.BalanceSettled:
		return !leg.Pending
	case usecase.BalanceIncludingPending:
		return true
	default:
		return !leg.Pending || leg.Amount < 0
	}
}

// List returns the legs matching filter, newest first.
func (s *Store) List(ctx context.Context, filter usecase.EntryFilter) ([]*domain.LedgerEntry, error) {
	s.mu.RLock()
	var entries []*domain.LedgerEntry
	for _, set := range s.journals {
		for _, leg := range set.Legs {
			if matches(leg, filter) {
				copied := *leg
				entries = append(entries, &copied)
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID > entries[j].ID
	})

	if filter.Offset >= len(entries) {
		return []*domain.LedgerEntry{}, nil
	}
	entries = entries[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(entries) {
		entries = entries[:filter.Limit]
	}

	return entries, nil
}

func matches(leg *domain.LedgerEntry, f usecase.EntryFilter) bool {
	switch {
	case f.AccountPath != "" && leg.AccountPath != f.AccountPath:
		return false
	case f.WalletID != "" && leg.WalletID != f.WalletID:
		return false
	case f.Hash != "" && leg.Hash != f.Hash:
		return false
	case f.Type != "" && leg.Type != f.Type:
		return false
	case f.Pending != nil && leg.Pending != *f.Pending:
		return false
	}
	return true
}

// CheckConsistency totals every currency and counts unbalanced journals.
func (s *Store) CheckConsistency(ctx context.Context) (*usecase.ConsistencyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &usecase.ConsistencyReport{Totals: make(map[domain.Currency]int64)}
	for _, set := range s.journals {
		for currency, sum := range set.Sums() {
			report.Totals[currency] += sum
			if sum != 0 {
				report.UnbalancedTransactions++
			}
		}
	}

	return report, nil
}

// Create stages an outbox event.
func (s *Store) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	copied := *event
	t.ops = append(t.ops, func() {
		s.events = append(s.events, &copied)
	})
	return nil
}

// GetUnpublished returns up to limit unpublished events, oldest first.
func (s *Store) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*domain.OutboxEvent
	for _, e := range s.events {
		if e.Published {
			continue
		}
		copied := *e
		events = append(events, &copied)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

// MarkPublished flags an event as published.
func (s *Store) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.ID == id {
			at := publishedAt
			e.Published = true
			e.PublishedAt = &at
			return nil
		}
	}
	return nil
}

// DeletePublished drops events published before the cutoff.
func (s *Store) DeletePublished(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	for _, e := range s.events {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return nil
}

// Events returns a copy of every outbox event.
func (s *Store) Events() []domain.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]domain.OutboxEvent, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, *e)
	}
	return events
}

func cloneSet(set *domain.LegSet) *domain.LegSet {
	copied := *set
	if set.SettledAt != nil {
		at := *set.SettledAt
		copied.SettledAt = &at
	}
	copied.Legs = make([]*domain.LedgerEntry, 0, len(set.Legs))
	for _, leg := range set.Legs {
		l := *leg
		if leg.SettledAt != nil {
			at := *leg.SettledAt
			l.SettledAt = &at
		}
		copied.Legs = append(copied.Legs, &l)
	}
	return &copied
}
