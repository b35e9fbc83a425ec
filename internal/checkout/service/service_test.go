package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"till/internal/audit"
	"till/internal/checkout/models"
	"till/internal/checkout/pricing"
	dErrors "till/pkg/domain-errors"
	"till/pkg/platform/sentinel"
)

// ============================================================
// Fake order backend
// ============================================================

// fakeBackend is an in-memory order backend that recomputes totals on every
// snapshot, counts every call, and can be told to fail or stall finalize.
type fakeBackend struct {
	mu    sync.Mutex
	sales map[string]*models.Sale
	seq   int

	createCalls   int
	getCalls      int
	draftCalls    int
	finalizeCalls int

	// inFlight detects overlapping draft updates for the same sale.
	inFlight int32
	overlap  atomic.Bool

	finalizeErr     error
	finalizeGate    chan struct{}
	finalizeEntered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{sales: make(map[string]*models.Sale)}
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls + f.getCalls + f.draftCalls + f.finalizeCalls
}

func (f *fakeBackend) recompute(s *models.Sale) {
	q := pricing.Preview(s.Items, s.OrderDiscount)
	s.SubtotalCents = q.SubtotalCents
	s.DiscountCents = q.LineDiscountCents + q.OrderDiscountCents
	total := q.TotalCents
	if s.CouponCode == "SAVE200" {
		total -= 200
		s.DiscountCents += 200
	}
	if s.LoyaltyPointsRedeemed > 0 {
		total -= s.LoyaltyPointsRedeemed
	}
	if total < 0 {
		total = 0
	}
	s.ShippingCents = s.Fulfillment.ShippingCostCents
	s.TotalCents = total + s.ShippingCents
	s.UpdatedAt = time.Now()
}

func (f *fakeBackend) Create(_ context.Context, req models.CreateSaleRequest) (*models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.seq++
	sale := &models.Sale{
		ID:            fmt.Sprintf("sale-%d", f.seq),
		State:         models.StateDraft,
		Channel:       req.Channel,
		LocationID:    req.LocationID,
		RegisterID:    req.RegisterID,
		Items:         append([]models.SaleItem(nil), req.Items...),
		OrderDiscount: req.OrderDiscount,
		Fulfillment: models.FulfillmentInfo{
			Type:   models.FulfillInStore,
			Status: models.FulfillPending,
		},
		CreatedAt: time.Now(),
	}
	f.recompute(sale)
	f.sales[sale.ID] = sale
	return sale.Clone(), nil
}

func (f *fakeBackend) Get(_ context.Context, saleID string) (*models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	sale, ok := f.sales[saleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sale.Clone(), nil
}

func (f *fakeBackend) DraftUpdate(_ context.Context, saleID string, req models.DraftUpdateRequest) (*models.Sale, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		f.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.draftCalls++
	sale, ok := f.sales[saleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if sale.State != models.StateDraft {
		return nil, sentinel.ErrInvalidState
	}
	if req.CouponCode != "" && req.CouponCode != "SAVE200" {
		return nil, dErrors.New(dErrors.CodeUnprocessable, "coupon not applicable")
	}
	sale.Channel = req.Channel
	sale.Items = append([]models.SaleItem(nil), req.Items...)
	sale.OrderDiscount = req.OrderDiscount
	sale.CouponCode = req.CouponCode
	sale.LoyaltyPointsRedeemed = req.LoyaltyPointsRedeemed
	sale.Fulfillment = req.Fulfillment
	if req.CustomerID != "" {
		sale.Customer = &models.CustomerRef{ID: req.CustomerID, DisplayName: "Customer " + req.CustomerID}
	} else {
		sale.Customer = nil
	}
	f.recompute(sale)
	return sale.Clone(), nil
}

func (f *fakeBackend) Finalize(_ context.Context, saleID string, req models.FinalizeRequest) (*models.Sale, error) {
	f.mu.Lock()
	gate := f.finalizeGate
	entered := f.finalizeEntered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizeCalls++
	if f.finalizeErr != nil {
		err := f.finalizeErr
		f.finalizeErr = nil
		return nil, err
	}
	sale, ok := f.sales[saleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if sale.State != models.StateDraft {
		return nil, sentinel.ErrInvalidState
	}
	sale.State = models.StateFinalized
	sale.Payments = append([]models.PaymentLine(nil), req.Payments...)
	now := time.Now()
	sale.FinalizedAt = &now
	return sale.Clone(), nil
}

func (f *fakeBackend) ListByFulfillmentStatus(_ context.Context, status models.FulfillmentStatus) ([]*models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Sale
	for _, sale := range f.sales {
		if sale.Fulfillment.Status == status {
			out = append(out, sale.Clone())
		}
	}
	return out, nil
}

func (f *fakeBackend) UpdateFulfillment(_ context.Context, saleID string, ff models.FulfillmentInfo) (*models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sale, ok := f.sales[saleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	sale.Fulfillment = ff
	f.recompute(sale)
	return sale.Clone(), nil
}

// fakeLoyalty serves balances from a map; missing customers error.
type fakeLoyalty struct {
	balances map[string]int64
}

func (f *fakeLoyalty) Balance(_ context.Context, customerID string) (int64, error) {
	balance, ok := f.balances[customerID]
	if !ok {
		return 0, errors.New("loyalty service unavailable")
	}
	return balance, nil
}

// ============================================================
// Suite setup
// ============================================================

type ServiceSuite struct {
	suite.Suite
	backend *fakeBackend
	sink    *audit.MemorySink
	loyalty *fakeLoyalty
	svc     *Service
	cap     Capability
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.backend = newFakeBackend()
	s.sink = audit.NewMemorySink()
	s.loyalty = &fakeLoyalty{balances: map[string]int64{"cust-1": 750}}

	svc, err := New(s.backend,
		WithLoyalty(s.loyalty),
		WithAuditPublisher(audit.NewPublisher(s.sink)),
	)
	s.Require().NoError(err)
	s.svc = svc

	s.cap = Capability{
		OperatorID:  "op-1",
		LocationID:  "loc-1",
		RegisterID:  "reg-1",
		CanFinalize: true,
	}
}

func (s *ServiceSuite) createSale(items []models.SaleItem, orderDiscount *models.OrderDiscount) *models.Sale {
	sale, err := s.svc.CreateSale(context.Background(), models.CreateSaleRequest{
		LocationID:    "loc-1",
		RegisterID:    "reg-1",
		Channel:       models.ChannelPOS,
		Items:         items,
		OrderDiscount: orderDiscount,
	}, s.cap)
	s.Require().NoError(err)
	return sale
}

func plainItems() []models.SaleItem {
	return []models.SaleItem{
		{
			ProductID:      "widget",
			Quantity:       2,
			UnitPriceCents: 1000,
			Discount:       &models.LineDiscount{Type: models.DiscountFixed, Value: 200},
		},
	}
}

func restrictedItems() []models.SaleItem {
	return []models.SaleItem{
		{ProductID: "spirits", Quantity: 1, UnitPriceCents: 2500, RequiresIDCheck: true, MinimumAge: 21},
	}
}

// ============================================================
// Creation and draft updates
// ============================================================

func (s *ServiceSuite) TestCreateSale() {
	sale := s.createSale(plainItems(), nil)

	s.Equal(models.StateDraft, sale.State)
	s.Equal(int64(2000), sale.SubtotalCents)
	s.Equal(int64(200), sale.DiscountCents)
	s.Equal(int64(1800), sale.TotalCents)

	events := s.sink.BySale(sale.ID)
	s.Require().Len(events, 1)
	s.Equal(audit.EventSaleCreated, events[0].Type)
	s.Equal("op-1", events[0].OperatorID)
	s.NotEmpty(events[0].ID)
}

func (s *ServiceSuite) TestCreateSaleRejectsEmptyCart() {
	_, err := s.svc.CreateSale(context.Background(), models.CreateSaleRequest{
		LocationID: "loc-1",
		RegisterID: "reg-1",
		Channel:    models.ChannelPOS,
	}, s.cap)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	s.Zero(s.backend.totalCalls())
}

func (s *ServiceSuite) TestUpdateDraftRecomputesTotals() {
	sale := s.createSale(plainItems(), nil)

	req := models.SnapshotOf(sale)
	req.Items = []models.SaleItem{{ProductID: "gadget", Quantity: 3, UnitPriceCents: 1999}}
	req.OrderDiscount = &models.OrderDiscount{Type: models.DiscountPercent, Value: 1000}

	updated, err := s.svc.UpdateDraft(context.Background(), sale.ID, req)
	s.Require().NoError(err)
	s.Equal(int64(5997), updated.SubtotalCents)
	s.Equal(int64(600), updated.DiscountCents)
	s.Equal(int64(5397), updated.TotalCents)
}

func (s *ServiceSuite) TestUpdateDraftSerializedPerSale() {
	sale := s.createSale(plainItems(), nil)
	req := models.SnapshotOf(sale)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.UpdateDraft(context.Background(), sale.ID, req)
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.False(s.backend.overlap.Load(), "draft updates for one sale must never overlap")
}

func (s *ServiceSuite) TestUpdateDraftUnknownSale() {
	req := models.SnapshotOf(s.createSale(plainItems(), nil))
	_, err := s.svc.UpdateDraft(context.Background(), "missing", req)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

// ============================================================
// Coupons, loyalty, customers
// ============================================================

func (s *ServiceSuite) TestApplyCoupon() {
	sale := s.createSale(plainItems(), nil)

	updated, err := s.svc.ApplyCoupon(context.Background(), sale.ID, "SAVE200")
	s.Require().NoError(err)
	s.Equal("SAVE200", updated.CouponCode)
	s.Equal(int64(1600), updated.TotalCents)
}

func (s *ServiceSuite) TestApplyCouponRejectedVerbatim() {
	sale := s.createSale(plainItems(), nil)

	_, err := s.svc.ApplyCoupon(context.Background(), sale.ID, "EXPIRED")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeUnprocessable))

	var de *dErrors.Error
	s.Require().ErrorAs(err, &de)
	s.Equal("coupon not applicable", de.Message)

	refreshed, err := s.svc.GetSale(context.Background(), sale.ID)
	s.Require().NoError(err)
	s.Empty(refreshed.CouponCode)
	s.Equal(int64(1800), refreshed.TotalCents)
}

func (s *ServiceSuite) TestRedeemLoyalty() {
	sale := s.createSale(plainItems(), nil)

	updated, err := s.svc.RedeemLoyalty(context.Background(), sale.ID, 300)
	s.Require().NoError(err)
	s.Equal(int64(300), updated.LoyaltyPointsRedeemed)
	s.Equal(int64(1500), updated.TotalCents)
}

func (s *ServiceSuite) TestAttachCustomerReturnsBalance() {
	sale := s.createSale(plainItems(), nil)

	updated, balance, err := s.svc.AttachCustomer(context.Background(), sale.ID, "cust-1")
	s.Require().NoError(err)
	s.Require().NotNil(updated.Customer)
	s.Equal("cust-1", updated.Customer.ID)
	s.Require().NotNil(balance)
	s.Equal(int64(750), *balance)
}

func (s *ServiceSuite) TestAttachCustomerBalanceFetchFailureIsAdvisory() {
	sale := s.createSale(plainItems(), nil)

	updated, balance, err := s.svc.AttachCustomer(context.Background(), sale.ID, "cust-unknown")
	s.Require().NoError(err)
	s.Require().NotNil(updated.Customer)
	s.Nil(balance)
}

// ============================================================
// Finalize
// ============================================================

func cashAndCard(cash, card int64) []models.PaymentLine {
	return []models.PaymentLine{
		{ID: "p1", Method: models.MethodCash, AmountCents: cash},
		{ID: "p2", Method: models.MethodCard, AmountCents: card},
	}
}

func (s *ServiceSuite) TestFinalizeSplitTender() {
	sale := s.createSale([]models.SaleItem{{ProductID: "gadget", Quantity: 3, UnitPriceCents: 1999}},
		&models.OrderDiscount{Type: models.DiscountPercent, Value: 1000})
	s.Require().Equal(int64(5397), sale.TotalCents)

	finalized, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(5000, 500),
	}, s.cap)
	s.Require().NoError(err)
	s.Equal(models.StateFinalized, finalized.State)
	s.NotNil(finalized.FinalizedAt)
	s.Len(finalized.Payments, 2)

	events := s.sink.BySale(sale.ID)
	s.Require().Len(events, 2)
	s.Equal(audit.EventSaleFinalized, events[1].Type)
	s.False(events[1].IDChecked)
}

func (s *ServiceSuite) TestFinalizeWithoutCapability() {
	sale := s.createSale(plainItems(), nil)
	calls := s.backend.totalCalls()

	noFinalize := s.cap
	noFinalize.CanFinalize = false
	_, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(1800, 0),
	}, noFinalize)
	s.True(dErrors.Is(err, dErrors.CodeForbidden))
	s.Equal(calls, s.backend.totalCalls())
}

func (s *ServiceSuite) TestFinalizeBlockedByComplianceGate() {
	sale := s.createSale(restrictedItems(), nil)
	calls := s.backend.totalCalls()

	_, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments:       cashAndCard(2500, 0),
		IDVerification: &models.IDVerification{IDType: "drivers_license", BirthDate: "1990-04-01"},
	}, s.cap)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeUnprocessable))
	s.True(IsComplianceBlocked(err))
	s.Equal(calls, s.backend.totalCalls(), "blocked finalize must issue no backend call")

	// Collecting the missing field clears the block.
	finalized, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments:       cashAndCard(2500, 0),
		IDVerification: &models.IDVerification{IDType: "drivers_license", IDLast4: "1234", BirthDate: "1990-04-01"},
	}, s.cap)
	s.Require().NoError(err)
	s.Equal(models.StateFinalized, finalized.State)

	events := s.sink.BySale(sale.ID)
	s.Require().Len(events, 2)
	s.True(events[1].IDChecked)
}

func (s *ServiceSuite) TestFinalizeBalanceDueRejected() {
	sale := s.createSale(plainItems(), nil) // total 1800
	calls := s.backend.totalCalls()

	_, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(1000, 0),
	}, s.cap)
	s.True(dErrors.Is(err, dErrors.CodeUnprocessable))
	s.Equal(calls, s.backend.totalCalls())

	refreshed, err := s.svc.GetSale(context.Background(), sale.ID)
	s.Require().NoError(err)
	s.True(refreshed.Mutable(), "failed finalize leaves the sale in draft")
}

func (s *ServiceSuite) TestFinalizeBalanceDueAllowedByConfig() {
	svc, err := New(s.backend, WithAllowBalanceDue(true))
	s.Require().NoError(err)

	sale, err := svc.CreateSale(context.Background(), models.CreateSaleRequest{
		LocationID: "loc-1",
		RegisterID: "reg-1",
		Channel:    models.ChannelWholesale,
		Items:      plainItems(),
	}, s.cap)
	s.Require().NoError(err)

	finalized, err := svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(1000, 0),
	}, s.cap)
	s.Require().NoError(err)
	s.Equal(models.StateFinalized, finalized.State)
}

func (s *ServiceSuite) TestFinalizeOverpaymentGivesChange() {
	sale := s.createSale(plainItems(), nil) // total 1800

	finalized, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(2000, 0),
	}, s.cap)
	s.Require().NoError(err)
	s.Equal(models.StateFinalized, finalized.State)
}

func (s *ServiceSuite) TestFinalizeBusyFlag() {
	sale := s.createSale(plainItems(), nil)

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	s.backend.mu.Lock()
	s.backend.finalizeGate = gate
	s.backend.finalizeEntered = entered
	s.backend.mu.Unlock()

	first := make(chan error, 1)
	go func() {
		_, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
			Payments: cashAndCard(1800, 0),
		}, s.cap)
		first <- err
	}()
	<-entered

	_, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(1800, 0),
	}, s.cap)
	s.True(dErrors.Is(err, dErrors.CodeConflict), "second finalize must be rejected while the first is in flight")

	close(gate)
	s.Require().NoError(<-first)
}

func (s *ServiceSuite) TestFinalizeTwice() {
	sale := s.createSale(plainItems(), nil)

	_, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(1800, 0),
	}, s.cap)
	s.Require().NoError(err)

	_, err = s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(1800, 0),
	}, s.cap)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestFinalizeBackendRejectionLeavesDraft() {
	sale := s.createSale(plainItems(), nil)

	s.backend.mu.Lock()
	s.backend.finalizeErr = dErrors.New(dErrors.CodeUnprocessable, "card declined")
	s.backend.mu.Unlock()

	_, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(0, 1800),
	}, s.cap)
	s.Require().Error(err)
	var de *dErrors.Error
	s.Require().ErrorAs(err, &de)
	s.Equal("card declined", de.Message)

	refreshed, err := s.svc.GetSale(context.Background(), sale.ID)
	s.Require().NoError(err)
	s.True(refreshed.Mutable())

	// Retry succeeds once the backend accepts.
	finalized, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(0, 1800),
	}, s.cap)
	s.Require().NoError(err)
	s.Equal(models.StateFinalized, finalized.State)
}

// ============================================================
// Fulfillment queue
// ============================================================

func (s *ServiceSuite) TestFulfillmentQueue() {
	sale := s.createSale(plainItems(), nil)

	pending, err := s.svc.ListFulfillment(context.Background(), models.FulfillPending)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(sale.ID, pending[0].ID)

	updated, err := s.svc.SetFulfillment(context.Background(), sale.ID, models.FulfillmentInfo{
		Type:   models.FulfillPickup,
		Status: models.FulfillReady,
	})
	s.Require().NoError(err)
	s.Equal(models.FulfillReady, updated.Fulfillment.Status)

	pending, err = s.svc.ListFulfillment(context.Background(), models.FulfillPending)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *ServiceSuite) TestSetFulfillmentAfterFinalize() {
	sale := s.createSale(plainItems(), nil)
	_, err := s.svc.Finalize(context.Background(), sale.ID, models.FinalizeRequest{
		Payments: cashAndCard(1800, 0),
	}, s.cap)
	s.Require().NoError(err)

	updated, err := s.svc.SetFulfillment(context.Background(), sale.ID, models.FulfillmentInfo{
		Type:   models.FulfillPickup,
		Status: models.FulfillDelivered,
	})
	s.Require().NoError(err)
	s.Equal(models.FulfillDelivered, updated.Fulfillment.Status)
}
