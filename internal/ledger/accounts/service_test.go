package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	accounts map[int64]ledger.Account
	posted   map[int64]bool
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]ledger.Account), posted: make(map[int64]bool)}
}

func (r *memoryRepo) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	for _, existing := range r.accounts {
		if existing.Code == a.Code {
			return ledger.Account{}, ledger.ErrCodeTaken
		}
	}
	r.nextID++
	a.ID = r.nextID
	r.accounts[a.ID] = a
	return a, nil
}

func (r *memoryRepo) Update(ctx context.Context, a ledger.Account) error {
	if _, ok := r.accounts[a.ID]; !ok {
		return ledger.ErrAccountNotFound
	}
	r.accounts[a.ID] = a
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (ledger.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (ledger.Account, error) {
	for _, a := range r.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]ledger.Account, int, error) {
	var out []ledger.Account
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (r *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	a, ok := r.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	a.IsActive = active
	r.accounts[id] = a
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.accounts[id]; !ok {
		return ledger.ErrAccountNotFound
	}
	delete(r.accounts, id)
	return nil
}

func (r *memoryRepo) HasJournalLines(ctx context.Context, id int64) (bool, error) {
	return r.posted[id], nil
}

func TestCreateAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), CreateInput{
		Code:      " 4100 ",
		Name:      "Revenue",
		Type:      ledger.AccountTypeRevenue,
		IFRSClass: "revenue",
		ActorID:   1,
	})
	require.NoError(t, err)
	require.Equal(t, "4100", created.Code)
	require.True(t, created.IsActive)

	_, err = svc.Create(context.Background(), CreateInput{
		Code: "4100", Name: "Duplicate", Type: ledger.AccountTypeRevenue, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrCodeTaken)
}

func TestCreateAccountRejectsUnknownType(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), CreateInput{Code: "9999", Name: "Bogus", Type: "GOODWILL", ActorID: 1})
	require.Error(t, err)
}

func TestUpdateAccountCodeImmutableOncePosted(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created, err := svc.Create(context.Background(), CreateInput{
		Code: "1100", Name: "AR", Type: ledger.AccountTypeAsset, ActorID: 1,
	})
	require.NoError(t, err)
	repo.posted[created.ID] = true

	_, err = svc.Update(context.Background(), UpdateInput{
		ID: created.ID, Code: "1101", Name: "AR", Type: ledger.AccountTypeAsset, ActorID: 1,
	})
	require.Error(t, err)

	// Renaming without touching the code is still allowed.
	updated, err := svc.Update(context.Background(), UpdateInput{
		ID: created.ID, Code: "1100", Name: "Trade Receivables", Type: ledger.AccountTypeAsset, ActorID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "Trade Receivables", updated.Name)
}

func TestUpdateAccountRejectsHierarchyCycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	parent, err := svc.Create(context.Background(), CreateInput{Code: "1000", Name: "Assets", Type: ledger.AccountTypeAsset, ActorID: 1})
	require.NoError(t, err)
	child, err := svc.Create(context.Background(), CreateInput{Code: "1100", Name: "AR", Type: ledger.AccountTypeAsset, ParentID: &parent.ID, ActorID: 1})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), UpdateInput{
		ID: parent.ID, Code: "1000", Name: "Assets", Type: ledger.AccountTypeAsset, ParentID: &child.ID, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrHierarchyCycle)

	_, err = svc.Update(context.Background(), UpdateInput{
		ID: child.ID, Code: "1100", Name: "AR", Type: ledger.AccountTypeAsset, ParentID: &child.ID, ActorID: 1,
	})
	require.ErrorIs(t, err, ledger.ErrHierarchyCycle)
}

func TestDeletePostedAccountRefused(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created, err := svc.Create(context.Background(), CreateInput{Code: "5100", Name: "COGS", Type: ledger.AccountTypeExpense, ActorID: 1})
	require.NoError(t, err)
	repo.posted[created.ID] = true

	require.ErrorIs(t, svc.Delete(context.Background(), created.ID, 1), ledger.ErrAccountInUse)

	// Deactivation is the supported path for referenced accounts.
	require.NoError(t, svc.Deactivate(context.Background(), created.ID, 1))
	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	require.NoError(t, svc.Activate(context.Background(), created.ID, 1))
	got, err = svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)
}

func TestDeleteUnpostedAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created, err := svc.Create(context.Background(), CreateInput{Code: "5999", Name: "Scratch", Type: ledger.AccountTypeExpense, ActorID: 1})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID, 1))
	_, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
