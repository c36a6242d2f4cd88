// Package memory is an in-process implementation of the datastore ports,
// used for local development and by service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/google/uuid"
)

// Store keeps all state behind one mutex. Transactions run serially against a
// copy of the state that replaces the original only when fn succeeds.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ port.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

type state struct {
	cards         map[uuid.UUID]domain.Card
	cardOrder     []uuid.UUID
	users         map[uuid.UUID]domain.User
	userOrder     []uuid.UUID
	transfers     []domain.Transfer
	blockRequests []domain.BlockRequest
}

func newState() *state {
	return &state{
		cards: make(map[uuid.UUID]domain.Card),
		users: make(map[uuid.UUID]domain.User),
	}
}

func (s *state) clone() *state {
	c := &state{
		cards:         make(map[uuid.UUID]domain.Card, len(s.cards)),
		cardOrder:     append([]uuid.UUID(nil), s.cardOrder...),
		users:         make(map[uuid.UUID]domain.User, len(s.users)),
		userOrder:     append([]uuid.UUID(nil), s.userOrder...),
		transfers:     append([]domain.Transfer(nil), s.transfers...),
		blockRequests: append([]domain.BlockRequest(nil), s.blockRequests...),
	}
	for k, v := range s.cards {
		c.cards[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// InTx runs fn with exclusive access. Isolation is always serializable.
func (s *Store) InTx(ctx context.Context, _ port.Isolation, fn func(ctx context.Context, tx port.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// read runs a single call against the live state.
func (s *Store) read() (*tx, func()) {
	s.mu.Lock()
	return &tx{st: s.state}, s.mu.Unlock
}

// ============================================================
// Autocommit calls
// ============================================================

func (s *Store) FindCardByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	t, done := s.read()
	defer done()
	return t.FindCardByID(ctx, id)
}

func (s *Store) FindCardByNumber(ctx context.Context, number string) (*domain.Card, error) {
	t, done := s.read()
	defer done()
	return t.FindCardByNumber(ctx, number)
}

func (s *Store) FindCardsByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	t, done := s.read()
	defer done()
	return t.FindCardsByOwner(ctx, userID)
}

func (s *Store) LockCard(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	return s.FindCardByID(ctx, id)
}

func (s *Store) LockCardsByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	return s.FindCardsByOwner(ctx, userID)
}

func (s *Store) ListCards(ctx context.Context, page domain.Page) ([]domain.Card, int, error) {
	t, done := s.read()
	defer done()
	return t.ListCards(ctx, page)
}

func (s *Store) ListCardsByOwner(ctx context.Context, userID uuid.UUID, f domain.CardFilter, page domain.Page) ([]domain.Card, int, error) {
	t, done := s.read()
	defer done()
	return t.ListCardsByOwner(ctx, userID, f, page)
}

func (s *Store) SaveCard(ctx context.Context, card *domain.Card) error {
	return s.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		return tx.SaveCard(ctx, card)
	})
}

func (s *Store) DeleteCard(ctx context.Context, id uuid.UUID) error {
	return s.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		return tx.DeleteCard(ctx, id)
	})
}

func (s *Store) ExpireCards(ctx context.Context, cutoff domain.YearMonth) (int64, error) {
	var n int64
	err := s.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		var err error
		n, err = tx.ExpireCards(ctx, cutoff)
		return err
	})
	return n, err
}

func (s *Store) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	t, done := s.read()
	defer done()
	return t.FindUserByID(ctx, id)
}

func (s *Store) FindUserByName(ctx context.Context, name string) (*domain.User, error) {
	t, done := s.read()
	defer done()
	return t.FindUserByName(ctx, name)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	t, done := s.read()
	defer done()
	return t.ListUsers(ctx)
}

func (s *Store) SaveUser(ctx context.Context, u *domain.User) error {
	return s.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		return tx.SaveUser(ctx, u)
	})
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		return tx.DeleteUser(ctx, id)
	})
}

func (s *Store) AppendTransfer(ctx context.Context, tr *domain.Transfer) error {
	return s.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		return tx.AppendTransfer(ctx, tr)
	})
}

func (s *Store) ListTransfersByUser(ctx context.Context, userID uuid.UUID, page domain.Page) ([]domain.Transfer, int, error) {
	t, done := s.read()
	defer done()
	return t.ListTransfersByUser(ctx, userID, page)
}

func (s *Store) CountTransfersByCard(ctx context.Context, cardNumber string) (int, error) {
	t, done := s.read()
	defer done()
	return t.CountTransfersByCard(ctx, cardNumber)
}

func (s *Store) AppendBlockRequest(ctx context.Context, br *domain.BlockRequest) error {
	return s.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		return tx.AppendBlockRequest(ctx, br)
	})
}

func (s *Store) ListBlockRequests(ctx context.Context, page domain.Page) ([]domain.BlockRequest, int, error) {
	t, done := s.read()
	defer done()
	return t.ListBlockRequests(ctx, page)
}

// ============================================================
// Transaction view
// ============================================================

// tx operates on one state snapshot; the caller holds the store mutex.
type tx struct {
	st *state
}

func (t *tx) FindCardByID(_ context.Context, id uuid.UUID) (*domain.Card, error) {
	c, ok := t.st.cards[id]
	if !ok {
		return nil, domain.CardNotFound(id.String())
	}
	return &c, nil
}

func (t *tx) FindCardByNumber(_ context.Context, number string) (*domain.Card, error) {
	for _, id := range t.st.cardOrder {
		if c := t.st.cards[id]; c.CardNumber == number {
			return &c, nil
		}
	}
	return nil, domain.CardNotFound(number)
}

func (t *tx) FindCardsByOwner(_ context.Context, userID uuid.UUID) ([]domain.Card, error) {
	return t.cardsWhere(func(c *domain.Card) bool { return c.OwnerUserID == userID }), nil
}

func (t *tx) LockCard(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	return t.FindCardByID(ctx, id)
}

func (t *tx) LockCardsByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	return t.FindCardsByOwner(ctx, userID)
}

func (t *tx) ListCards(_ context.Context, page domain.Page) ([]domain.Card, int, error) {
	all := t.cardsWhere(func(*domain.Card) bool { return true })
	return paginate(all, page), len(all), nil
}

func (t *tx) ListCardsByOwner(_ context.Context, userID uuid.UUID, f domain.CardFilter, page domain.Page) ([]domain.Card, int, error) {
	matched := t.cardsWhere(func(c *domain.Card) bool { return c.OwnerUserID == userID && f.Matches(c) })
	return paginate(matched, page), len(matched), nil
}

func (t *tx) cardsWhere(keep func(*domain.Card) bool) []domain.Card {
	out := []domain.Card{}
	for _, id := range t.st.cardOrder {
		c := t.st.cards[id]
		if keep(&c) {
			out = append(out, c)
		}
	}
	return out
}

func (t *tx) SaveCard(_ context.Context, card *domain.Card) error {
	for id, other := range t.st.cards {
		if id != card.ID && other.CardNumber == card.CardNumber {
			return &domain.ErrConflict{Message: "card number already exists"}
		}
	}
	if _, ok := t.st.users[card.OwnerUserID]; !ok {
		return domain.UserNotFound(card.OwnerUserID.String())
	}

	now := time.Now().UTC()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now

	if _, exists := t.st.cards[card.ID]; !exists {
		t.st.cardOrder = append(t.st.cardOrder, card.ID)
	}
	t.st.cards[card.ID] = *card
	return nil
}

func (t *tx) DeleteCard(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.cards[id]; !ok {
		return domain.CardNotFound(id.String())
	}
	delete(t.st.cards, id)
	t.st.cardOrder = removeID(t.st.cardOrder, id)
	return nil
}

func (t *tx) ExpireCards(_ context.Context, cutoff domain.YearMonth) (int64, error) {
	var n int64
	now := time.Now().UTC()
	for id, c := range t.st.cards {
		if c.Status != domain.CardStatusExpired && c.ExpiryDate.Before(cutoff) {
			c.Status = domain.CardStatusExpired
			c.UpdatedAt = now
			t.st.cards[id] = c
			n++
		}
	}
	return n, nil
}

func (t *tx) FindUserByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, domain.UserNotFound(id.String())
	}
	return &u, nil
}

func (t *tx) FindUserByName(_ context.Context, name string) (*domain.User, error) {
	for _, u := range t.st.users {
		if u.Name == name {
			return &u, nil
		}
	}
	return nil, domain.UserNotFound(name)
}

func (t *tx) ListUsers(context.Context) ([]domain.User, error) {
	out := make([]domain.User, 0, len(t.st.userOrder))
	for _, id := range t.st.userOrder {
		out = append(out, t.st.users[id])
	}
	return out, nil
}

func (t *tx) SaveUser(_ context.Context, u *domain.User) error {
	for id, other := range t.st.users {
		if id == u.ID {
			continue
		}
		if other.Name == u.Name {
			return &domain.ErrConflict{Message: "user name already taken"}
		}
		if other.Email == u.Email {
			return &domain.ErrConflict{Message: "email already registered"}
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, exists := t.st.users[u.ID]; !exists {
		t.st.userOrder = append(t.st.userOrder, u.ID)
	}
	t.st.users[u.ID] = *u
	return nil
}

// DeleteUser refuses while cards, transfers or block requests still point at the user.
func (t *tx) DeleteUser(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.users[id]; !ok {
		return domain.UserNotFound(id.String())
	}
	referenced := len(t.cardsWhere(func(c *domain.Card) bool { return c.OwnerUserID == id })) > 0
	for i := 0; !referenced && i < len(t.st.transfers); i++ {
		referenced = t.st.transfers[i].UserID == id
	}
	for i := 0; !referenced && i < len(t.st.blockRequests); i++ {
		referenced = t.st.blockRequests[i].UserID == id
	}
	if referenced {
		return &domain.ErrConflict{Message: "resource is still referenced by other records"}
	}
	delete(t.st.users, id)
	t.st.userOrder = removeID(t.st.userOrder, id)
	return nil
}

func (t *tx) AppendTransfer(_ context.Context, tr *domain.Transfer) error {
	t.st.transfers = append(t.st.transfers, *tr)
	return nil
}

func (t *tx) ListTransfersByUser(_ context.Context, userID uuid.UUID, page domain.Page) ([]domain.Transfer, int, error) {
	var own []domain.Transfer
	for i := len(t.st.transfers) - 1; i >= 0; i-- {
		if t.st.transfers[i].UserID == userID {
			own = append(own, t.st.transfers[i])
		}
	}
	sort.SliceStable(own, func(i, j int) bool { return own[i].TransferTime.After(own[j].TransferTime) })
	return paginate(own, page), len(own), nil
}

func (t *tx) CountTransfersByCard(_ context.Context, cardNumber string) (int, error) {
	n := 0
	for _, tr := range t.st.transfers {
		if tr.CardNumberFrom == cardNumber || tr.CardNumberTo == cardNumber {
			n++
		}
	}
	return n, nil
}

func (t *tx) AppendBlockRequest(_ context.Context, br *domain.BlockRequest) error {
	t.st.blockRequests = append(t.st.blockRequests, *br)
	return nil
}

func (t *tx) ListBlockRequests(_ context.Context, page domain.Page) ([]domain.BlockRequest, int, error) {
	all := make([]domain.BlockRequest, 0, len(t.st.blockRequests))
	for i := len(t.st.blockRequests) - 1; i >= 0; i-- {
		all = append(all, t.st.blockRequests[i])
	}
	return paginate(all, page), len(all), nil
}

func paginate[T any](items []T, page domain.Page) []T {
	start := page.Offset()
	if page.Size <= 0 || start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
