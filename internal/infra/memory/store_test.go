package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, s *Store, name string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Name: name, Email: name + "@example.com", PasswordHash: "x", Role: domain.RoleUser}
	require.NoError(t, s.SaveUser(context.Background(), u))
	return u
}

func seedCard(t *testing.T, s *Store, owner uuid.UUID, number string, balance int64) *domain.Card {
	t.Helper()
	c := &domain.Card{
		ID:          uuid.New(),
		CardNumber:  number,
		Status:      domain.CardStatusActive,
		Balance:     decimal.NewFromInt(balance),
		ExpiryDate:  domain.YearMonth{Year: 2030, Month: time.January},
		OwnerUserID: owner,
	}
	require.NoError(t, s.SaveCard(context.Background(), c))
	return c
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s, "alice")
	card := seedCard(t, s, u.ID, "1111222233334444", 500)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, port.IsolationSerializable, func(ctx context.Context, tx port.Repositories) error {
		c, err := tx.LockCard(ctx, card.ID)
		require.NoError(t, err)
		c.Balance = decimal.NewFromInt(1)
		require.NoError(t, tx.SaveCard(ctx, c))
		require.NoError(t, tx.AppendTransfer(ctx, &domain.Transfer{ID: uuid.New(), UserID: u.ID}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.FindCardByID(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(500)))

	_, total, err := s.ListTransfersByUser(ctx, u.ID, domain.Page{Size: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s, "alice")
	card := seedCard(t, s, u.ID, "1111222233334444", 500)
	ctx := context.Background()

	err := s.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		c, err := tx.LockCard(ctx, card.ID)
		if err != nil {
			return err
		}
		c.Status = domain.CardStatusBlocked
		return tx.SaveCard(ctx, c)
	})
	require.NoError(t, err)

	got, err := s.FindCardByNumber(ctx, "1111222233334444")
	require.NoError(t, err)
	assert.Equal(t, domain.CardStatusBlocked, got.Status)
}

func TestSaveCard_DuplicateNumber(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s, "alice")
	seedCard(t, s, u.ID, "1111222233334444", 0)

	dup := &domain.Card{ID: uuid.New(), CardNumber: "1111222233334444", Status: domain.CardStatusActive, OwnerUserID: u.ID}
	err := s.SaveCard(context.Background(), dup)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestSaveUser_UniqueNameAndEmail(t *testing.T) {
	s := NewStore()
	seedUser(t, s, "alice")
	ctx := context.Background()

	err := s.SaveUser(ctx, &domain.User{ID: uuid.New(), Name: "alice", Email: "other@example.com", Role: domain.RoleUser})
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	err = s.SaveUser(ctx, &domain.User{ID: uuid.New(), Name: "bobby", Email: "alice@example.com", Role: domain.RoleUser})
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestListCardsByOwner_FilterAndPaging(t *testing.T) {
	s := NewStore()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bobby")
	seedCard(t, s, alice.ID, "0000000000000001", 10)
	seedCard(t, s, alice.ID, "0000000000000002", 20)
	seedCard(t, s, alice.ID, "0000000000000003", 10)
	seedCard(t, s, bob.ID, "0000000000000004", 10)
	ctx := context.Background()

	ten := decimal.NewFromInt(10)
	cards, total, err := s.ListCardsByOwner(ctx, alice.ID, domain.CardFilter{Balance: &ten}, domain.Page{Number: 0, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, cards, 1)
	assert.Equal(t, "0000000000000001", cards[0].CardNumber)

	cards, _, err = s.ListCardsByOwner(ctx, alice.ID, domain.CardFilter{Balance: &ten}, domain.Page{Number: 1, Size: 1})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "0000000000000003", cards[0].CardNumber)

	cards, total, err = s.ListCardsByOwner(ctx, alice.ID, domain.CardFilter{}, domain.Page{Number: 5, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, cards)
}

func TestExpireCards(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s, "alice")
	old := seedCard(t, s, u.ID, "0000000000000001", 0)
	ctx := context.Background()

	old.ExpiryDate = domain.YearMonth{Year: 2020, Month: time.March}
	require.NoError(t, s.SaveCard(ctx, old))
	seedCard(t, s, u.ID, "0000000000000002", 0)

	n, err := s.ExpireCards(ctx, domain.YearMonth{Year: 2026, Month: time.October})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.FindCardByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CardStatusExpired, got.Status)

	n, err = s.ExpireCards(ctx, domain.YearMonth{Year: 2026, Month: time.October})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteUser_ReferencedByCards(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s, "alice")
	card := seedCard(t, s, u.ID, "0000000000000001", 0)
	ctx := context.Background()

	assert.Equal(t, domain.KindConflict, domain.KindOf(s.DeleteUser(ctx, u.ID)))

	require.NoError(t, s.DeleteCard(ctx, card.ID))
	require.NoError(t, s.DeleteUser(ctx, u.ID))

	_, err := s.FindUserByID(ctx, u.ID)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestListBlockRequests_NewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	first := &domain.BlockRequest{ID: uuid.New(), CardNumber: "0000000000000001", ToStatus: domain.CardStatusBlocked}
	second := &domain.BlockRequest{ID: uuid.New(), CardNumber: "0000000000000002", ToStatus: domain.CardStatusBlocked}
	require.NoError(t, s.AppendBlockRequest(ctx, first))
	require.NoError(t, s.AppendBlockRequest(ctx, second))

	got, total, err := s.ListBlockRequests(ctx, domain.Page{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
}
