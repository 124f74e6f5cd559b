package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// state хранит всё содержимое in-memory хранилища. Транзакция работает с копией.
type state struct {
	seq      int64
	listings map[string]domain.Listing
	orders   map[string]orderRecord
	adOrders map[string]orderRecord
	outbox   map[string]outboxRecord
}

type orderRecord struct {
	order domain.Order
	seq   int64
}

func newState() *state {
	return &state{
		listings: make(map[string]domain.Listing),
		orders:   make(map[string]orderRecord),
		adOrders: make(map[string]orderRecord),
		outbox:   make(map[string]outboxRecord),
	}
}

func (s *state) clone() *state {
	dst := &state{
		seq:      s.seq,
		listings: make(map[string]domain.Listing, len(s.listings)),
		orders:   make(map[string]orderRecord, len(s.orders)),
		adOrders: make(map[string]orderRecord, len(s.adOrders)),
		outbox:   make(map[string]outboxRecord, len(s.outbox)),
	}
	for k, v := range s.listings {
		v.Fields = append([]byte(nil), v.Fields...)
		dst.listings[k] = v
	}
	for k, v := range s.orders {
		dst.orders[k] = v
	}
	for k, v := range s.adOrders {
		dst.adOrders[k] = v
	}
	for k, v := range s.outbox {
		v.msg.Payload = append([]byte(nil), v.msg.Payload...)
		dst.outbox[k] = v
	}
	return dst
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

func (s *state) ledger(kind domain.LedgerKind) map[string]orderRecord {
	if kind == domain.LedgerAd {
		return s.adOrders
	}
	return s.orders
}

// Store реализует UnitOfWork в памяти для локальной разработки и тестов.
// Транзакции сериализуются: WithinTx держит эксклюзивную блокировку до commit/rollback,
// поэтому внутри fn нужно обращаться только к переданному tx.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// access выбирает, с каким состоянием работает репозиторий: общим (под мьютексом) или транзакционным.
type access struct {
	store *Store
	tx    *state
}

func (a access) read(fn func(st *state) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	return fn(a.store.state)
}

func (a access) write(fn func(st *state) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.state)
}

type repositories struct {
	access access
}

func (r repositories) Listings() domain.ListingRepository {
	return &listingRepository{access: r.access}
}

func (r repositories) Orders() domain.OrderLedgerRepository {
	return &orderLedgerRepository{access: r.access, kind: domain.LedgerListing}
}

func (r repositories) AdOrders() domain.OrderLedgerRepository {
	return &orderLedgerRepository{access: r.access, kind: domain.LedgerAd}
}

func (r repositories) Outbox() domain.OutboxRepository {
	return &outboxRepository{access: r.access}
}

func (s *Store) shared() repositories {
	return repositories{access: access{store: s}}
}

// Listings возвращает репозиторий объявлений вне транзакции.
func (s *Store) Listings() domain.ListingRepository { return s.shared().Listings() }

// Orders возвращает реестр заказов объявлений вне транзакции.
func (s *Store) Orders() domain.OrderLedgerRepository { return s.shared().Orders() }

// AdOrders возвращает реестр рекламных заказов вне транзакции.
func (s *Store) AdOrders() domain.OrderLedgerRepository { return s.shared().AdOrders() }

// Outbox возвращает outbox вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository { return s.shared().Outbox() }

// WithinTx выполняет fn над копией состояния и подменяет состояние только при успехе.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	draft := s.state.clone()
	if err := fn(ctx, repositories{access: access{store: s, tx: draft}}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

var _ domain.UnitOfWork = (*Store)(nil)
