package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"till/internal/checkout/models"
	"till/pkg/platform/sentinel"
)

func testSale(id string, status models.FulfillmentStatus, createdAt time.Time) *models.Sale {
	return &models.Sale{
		ID:         id,
		State:      models.StateDraft,
		Channel:    models.ChannelPOS,
		LocationID: "loc-1",
		RegisterID: "reg-1",
		Items: []models.SaleItem{
			{ProductID: "widget", Quantity: 1, UnitPriceCents: 1000},
		},
		Fulfillment: models.FulfillmentInfo{Type: models.FulfillInStore, Status: status},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestMemoryStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sale := testSale("sale-1", models.FulfillPending, time.Now())
	require.NoError(t, s.Create(ctx, sale))

	got, err := s.Get(ctx, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, sale.ID, got.ID)
	assert.Equal(t, models.StateDraft, got.State)
}

func TestMemoryStoreCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sale := testSale("sale-1", models.FulfillPending, time.Now())
	require.NoError(t, s.Create(ctx, sale))
	assert.ErrorIs(t, s.Create(ctx, sale), sentinel.ErrConflict)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStoreUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sale := testSale("sale-1", models.FulfillPending, time.Now())
	require.NoError(t, s.Create(ctx, sale))

	sale.State = models.StateFinalized
	require.NoError(t, s.Update(ctx, sale))

	got, err := s.Get(ctx, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFinalized, got.State)
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	err := NewMemoryStore().Update(context.Background(), testSale("ghost", models.FulfillPending, time.Now()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sale := testSale("sale-1", models.FulfillPending, time.Now())
	require.NoError(t, s.Create(ctx, sale))

	got, err := s.Get(ctx, "sale-1")
	require.NoError(t, err)
	got.Items[0].UnitPriceCents = 9999

	again, err := s.Get(ctx, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), again.Items[0].UnitPriceCents, "mutating a returned sale must not affect the store")
}

func TestMemoryStoreListByFulfillmentStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now()
	require.NoError(t, s.Create(ctx, testSale("sale-2", models.FulfillPending, base.Add(time.Minute))))
	require.NoError(t, s.Create(ctx, testSale("sale-1", models.FulfillPending, base)))
	require.NoError(t, s.Create(ctx, testSale("sale-3", models.FulfillReady, base)))

	pending, err := s.ListByFulfillmentStatus(ctx, models.FulfillPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "sale-1", pending[0].ID, "oldest first")
	assert.Equal(t, "sale-2", pending[1].ID)

	ready, err := s.ListByFulfillmentStatus(ctx, models.FulfillReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "sale-3", ready[0].ID)
}
