//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"till/internal/checkout/models"
	"till/internal/order/store"
	"till/pkg/platform/sentinel"
	"till/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "sales")
	s.Require().NoError(err)
}

func newStoredSale(status models.FulfillmentStatus) *models.Sale {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Sale{
		ID:         uuid.NewString(),
		State:      models.StateDraft,
		Channel:    models.ChannelPOS,
		LocationID: "loc-1",
		RegisterID: "reg-1",
		Items: []models.SaleItem{
			{ProductID: "widget", Quantity: 2, UnitPriceCents: 1000},
		},
		SubtotalCents: 2000,
		TotalCents:    2000,
		Fulfillment:   models.FulfillmentInfo{Type: models.FulfillInStore, Status: status},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *PostgresStoreSuite) TestCreateGetRoundTrip() {
	ctx := context.Background()
	sale := newStoredSale(models.FulfillPending)
	sale.Customer = &models.CustomerRef{ID: "cust-1", DisplayName: "Ada"}
	sale.Items[0].Discount = &models.LineDiscount{Type: models.DiscountFixed, Value: 200}

	s.Require().NoError(s.store.Create(ctx, sale))

	got, err := s.store.Get(ctx, sale.ID)
	s.Require().NoError(err)
	s.Equal(sale.ID, got.ID)
	s.Equal(models.StateDraft, got.State)
	s.Require().NotNil(got.Customer)
	s.Equal("Ada", got.Customer.DisplayName)
	s.Require().NotNil(got.Items[0].Discount)
	s.Equal(int64(200), got.Items[0].Discount.Value)
}

func (s *PostgresStoreSuite) TestCreateDuplicateConflicts() {
	ctx := context.Background()
	sale := newStoredSale(models.FulfillPending)
	s.Require().NoError(s.store.Create(ctx, sale))
	s.ErrorIs(s.store.Create(ctx, sale), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateReplacesDocument() {
	ctx := context.Background()
	sale := newStoredSale(models.FulfillPending)
	s.Require().NoError(s.store.Create(ctx, sale))

	sale.State = models.StateFinalized
	sale.Fulfillment.Status = models.FulfillReady
	now := time.Now().UTC().Truncate(time.Microsecond)
	sale.FinalizedAt = &now
	s.Require().NoError(s.store.Update(ctx, sale))

	got, err := s.store.Get(ctx, sale.ID)
	s.Require().NoError(err)
	s.Equal(models.StateFinalized, got.State)
	s.Equal(models.FulfillReady, got.Fulfillment.Status)
	s.NotNil(got.FinalizedAt)
}

func (s *PostgresStoreSuite) TestUpdateMissing() {
	err := s.store.Update(context.Background(), newStoredSale(models.FulfillPending))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByFulfillmentStatusOrdersOldestFirst() {
	ctx := context.Background()

	older := newStoredSale(models.FulfillPending)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newStoredSale(models.FulfillPending)
	other := newStoredSale(models.FulfillReady)

	s.Require().NoError(s.store.Create(ctx, newer))
	s.Require().NoError(s.store.Create(ctx, older))
	s.Require().NoError(s.store.Create(ctx, other))

	pending, err := s.store.ListByFulfillmentStatus(ctx, models.FulfillPending)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(older.ID, pending[0].ID)
	s.Equal(newer.ID, pending[1].ID)
}

func (s *PostgresStoreSuite) TestConcurrentUpdatesSameSale() {
	ctx := context.Background()
	sale := newStoredSale(models.FulfillPending)
	s.Require().NoError(s.store.Create(ctx, sale))

	const goroutines = 25
	var wg sync.WaitGroup
	var errs atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clone := sale.Clone()
			clone.UpdatedAt = clone.UpdatedAt.Add(time.Duration(i) * time.Millisecond)
			if err := s.store.Update(ctx, clone); err != nil {
				errs.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(0), errs.Load(), "all document rewrites should succeed (last write wins)")

	got, err := s.store.Get(ctx, sale.ID)
	s.Require().NoError(err)
	s.Equal(sale.ID, got.ID)
}
