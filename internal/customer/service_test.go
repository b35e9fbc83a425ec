package customer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "till/pkg/domain-errors"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)

	created, err := svc.Create(ctx, Customer{
		DisplayName: "Ada Lovelace",
		Email:       "ada@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.DisplayName)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)

	tests := []struct {
		name     string
		customer Customer
	}{
		{"missing display name", Customer{Email: "x@example.com"}},
		{"no contact info", Customer{DisplayName: "Ada"}},
		{"malformed email", Customer{DisplayName: "Ada", Email: "not-an-email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.customer)
			assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestGetMissing(t *testing.T) {
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)

	_, err = svc.Create(ctx, Customer{DisplayName: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Customer{DisplayName: "Alan Turing", Phone: "+1-555-0100"})
	require.NoError(t, err)

	t.Run("by name fragment", func(t *testing.T) {
		found, err := svc.Search(ctx, "love")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Ada Lovelace", found[0].DisplayName)
	})

	t.Run("by email", func(t *testing.T) {
		found, err := svc.Search(ctx, "ada@example.com")
		require.NoError(t, err)
		require.Len(t, found, 1)
	})

	t.Run("by phone fragment", func(t *testing.T) {
		found, err := svc.Search(ctx, "555-0100")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Alan Turing", found[0].DisplayName)
	})

	t.Run("empty query rejected", func(t *testing.T) {
		_, err := svc.Search(ctx, "   ")
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)

	created, err := svc.Create(ctx, Customer{DisplayName: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)

	ref, err := svc.Resolve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, ref.ID)
	assert.Equal(t, "Ada Lovelace", ref.DisplayName)
	assert.Equal(t, "ada@example.com", ref.Email)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	balance, err := ledger.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.Zero(t, balance, "unknown customers start at zero")

	require.NoError(t, ledger.Accrue(ctx, "cust-1", 500))
	require.NoError(t, ledger.Redeem(ctx, "cust-1", 200))

	balance, err = ledger.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)

	err = ledger.Redeem(ctx, "cust-1", 1000)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnprocessable))
}
