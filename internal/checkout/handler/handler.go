// Package handler exposes the checkout API over HTTP. Register sign-in is the
// only unauthenticated route; everything else requires a register session
// token, and the finalize capability travels into the core as an explicit
// Capability value rather than ambient context.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"till/internal/checkout/models"
	"till/internal/checkout/ports"
	"till/internal/checkout/service"
	"till/internal/customer"
	"till/internal/platform/middleware"
	"till/internal/register/device"
	dErrors "till/pkg/domain-errors"
	"till/pkg/platform/httputil"
)

// CheckoutService defines the sale lifecycle operations the handler drives.
type CheckoutService interface {
	CreateSale(ctx context.Context, req models.CreateSaleRequest, cap service.Capability) (*models.Sale, error)
	GetSale(ctx context.Context, saleID string) (*models.Sale, error)
	UpdateDraft(ctx context.Context, saleID string, req models.DraftUpdateRequest) (*models.Sale, error)
	AttachCustomer(ctx context.Context, saleID, customerID string) (*models.Sale, *int64, error)
	ApplyCoupon(ctx context.Context, saleID, code string) (*models.Sale, error)
	RemoveCoupon(ctx context.Context, saleID string) (*models.Sale, error)
	RedeemLoyalty(ctx context.Context, saleID string, points int64) (*models.Sale, error)
	UpdateDraftFulfillment(ctx context.Context, saleID string, f models.FulfillmentInfo) (*models.Sale, error)
	Finalize(ctx context.Context, saleID string, req models.FinalizeRequest, cap service.Capability) (*models.Sale, error)
	ListFulfillment(ctx context.Context, status models.FulfillmentStatus) ([]*models.Sale, error)
	SetFulfillment(ctx context.Context, saleID string, f models.FulfillmentInfo) (*models.Sale, error)
}

// CustomerDirectory defines the customer lookup operations the handler exposes.
type CustomerDirectory interface {
	Create(ctx context.Context, c customer.Customer) (*customer.Customer, error)
	Get(ctx context.Context, customerID string) (*customer.Customer, error)
	Search(ctx context.Context, query string) ([]*customer.Customer, error)
}

// RegisterAuth signs operators in to a register.
type RegisterAuth interface {
	SignIn(ctx context.Context, operatorID, pin, locationID, registerID string) (string, error)
}

// Handler handles checkout endpoints.
type Handler struct {
	logger    *slog.Logger
	checkout  CheckoutService
	customers CustomerDirectory
	loyalty   ports.LoyaltyReader
	registers RegisterAuth
	validator middleware.TokenValidator
}

// New creates a new checkout Handler.
func New(
	checkout CheckoutService,
	customers CustomerDirectory,
	loyalty ports.LoyaltyReader,
	registers RegisterAuth,
	validator middleware.TokenValidator,
	logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		checkout:  checkout,
		customers: customers,
		loyalty:   loyalty,
		registers: registers,
		validator: validator,
	}
}

// Register registers the checkout routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	checkoutRouter := chi.NewRouter()
	checkoutRouter.Use(middleware.Recovery(h.logger))
	checkoutRouter.Use(middleware.RequestID)
	checkoutRouter.Use(middleware.Logger(h.logger))
	checkoutRouter.Use(middleware.Timeout(30 * time.Second))
	checkoutRouter.Use(middleware.ContentTypeJSON)

	checkoutRouter.Post("/register/sign-in", h.handleSignIn)

	checkoutRouter.Group(func(authed chi.Router) {
		authed.Use(middleware.RequireAuth(h.validator, h.logger))

		authed.Post("/sales", h.handleCreateSale)
		authed.Get("/sales/{saleID}", h.handleGetSale)
		authed.Put("/sales/{saleID}/draft", h.handleUpdateDraft)
		authed.Put("/sales/{saleID}/draft/fulfillment", h.handleDraftFulfillment)
		authed.Post("/sales/{saleID}/customer", h.handleAttachCustomer)
		authed.Post("/sales/{saleID}/coupon", h.handleApplyCoupon)
		authed.Delete("/sales/{saleID}/coupon", h.handleRemoveCoupon)
		authed.Post("/sales/{saleID}/loyalty", h.handleRedeemLoyalty)
		authed.Post("/sales/{saleID}/finalize", h.handleFinalize)

		authed.Get("/fulfillment", h.handleListFulfillment)
		authed.Put("/sales/{saleID}/fulfillment", h.handleSetFulfillment)

		authed.Post("/customers", h.handleCreateCustomer)
		authed.Get("/customers", h.handleSearchCustomers)
		authed.Get("/customers/{customerID}", h.handleGetCustomer)
		authed.Get("/customers/{customerID}/loyalty", h.handleLoyaltyBalance)
	})

	r.Mount("/", checkoutRouter)
}

// capability builds the explicit entitlement from the authenticated claims and
// the requesting device.
func (h *Handler) capability(r *http.Request) (service.Capability, bool) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		return service.Capability{}, false
	}
	return service.Capability{
		OperatorID:  claims.OperatorID,
		LocationID:  claims.LocationID,
		RegisterID:  claims.RegisterID,
		Device:      device.ParseUserAgent(r.UserAgent()),
		CanFinalize: claims.CanFinalize,
	}, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) missingClaims(w http.ResponseWriter, r *http.Request) {
	// Should never happen once RequireAuth is mounted.
	h.logger.ErrorContext(r.Context(), "register claims missing from context despite auth middleware",
		"request_id", middleware.GetRequestID(r.Context()),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
}

type signInRequest struct {
	OperatorID string `json:"operator_id"`
	PIN        string `json:"pin"`
	LocationID string `json:"location_id"`
	RegisterID string `json:"register_id"`
}

type signInResponse struct {
	Token string `json:"token"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.registers.SignIn(r.Context(), req.OperatorID, req.PIN, req.LocationID, req.RegisterID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, signInResponse{Token: token})
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	cap, ok := h.capability(r)
	if !ok {
		h.missingClaims(w, r)
		return
	}

	var req models.CreateSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.LocationID == "" {
		req.LocationID = cap.LocationID
	}
	if req.RegisterID == "" {
		req.RegisterID = cap.RegisterID
	}

	sale, err := h.checkout.CreateSale(r.Context(), req, cap)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.checkout.GetSale(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req models.DraftUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	sale, err := h.checkout.UpdateDraft(r.Context(), chi.URLParam(r, "saleID"), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleDraftFulfillment(w http.ResponseWriter, r *http.Request) {
	var req models.FulfillmentInfo
	if !h.decode(w, r, &req) {
		return
	}

	sale, err := h.checkout.UpdateDraftFulfillment(r.Context(), chi.URLParam(r, "saleID"), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

type attachCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

// attachCustomerResponse carries the refreshed sale plus the advisory loyalty
// balance, when it could be fetched.
type attachCustomerResponse struct {
	Sale           *models.Sale `json:"sale"`
	LoyaltyBalance *int64       `json:"loyalty_balance,omitempty"`
}

func (h *Handler) handleAttachCustomer(w http.ResponseWriter, r *http.Request) {
	var req attachCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}

	sale, balance, err := h.checkout.AttachCustomer(r.Context(), chi.URLParam(r, "saleID"), req.CustomerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attachCustomerResponse{Sale: sale, LoyaltyBalance: balance})
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	sale, err := h.checkout.ApplyCoupon(r.Context(), chi.URLParam(r, "saleID"), req.Code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleRemoveCoupon(w http.ResponseWriter, r *http.Request) {
	sale, err := h.checkout.RemoveCoupon(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

type redeemLoyaltyRequest struct {
	Points int64 `json:"points"`
}

func (h *Handler) handleRedeemLoyalty(w http.ResponseWriter, r *http.Request) {
	var req redeemLoyaltyRequest
	if !h.decode(w, r, &req) {
		return
	}

	sale, err := h.checkout.RedeemLoyalty(r.Context(), chi.URLParam(r, "saleID"), req.Points)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cap, ok := h.capability(r)
	if !ok {
		h.missingClaims(w, r)
		return
	}

	var req models.FinalizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	saleID := chi.URLParam(r, "saleID")
	sale, err := h.checkout.Finalize(ctx, saleID, req, cap)
	if err != nil {
		if service.IsComplianceBlocked(err) {
			h.logger.WarnContext(ctx, "finalize blocked pending identity verification",
				"request_id", middleware.GetRequestID(ctx),
				"sale_id", saleID,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleListFulfillment(w http.ResponseWriter, r *http.Request) {
	status := models.FulfillmentStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.FulfillPending
	}

	sales, err := h.checkout.ListFulfillment(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if sales == nil {
		sales = []*models.Sale{}
	}
	httputil.WriteJSON(w, http.StatusOK, sales)
}

func (h *Handler) handleSetFulfillment(w http.ResponseWriter, r *http.Request) {
	var req models.FulfillmentInfo
	if !h.decode(w, r, &req) {
		return
	}

	sale, err := h.checkout.SetFulfillment(r.Context(), chi.URLParam(r, "saleID"), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customer.Customer
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.customers.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleSearchCustomers(w http.ResponseWriter, r *http.Request) {
	results, err := h.customers.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if results == nil {
		results = []*customer.Customer{}
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}

func (h *Handler) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	found, err := h.customers.Get(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

type loyaltyBalanceResponse struct {
	CustomerID string `json:"customer_id"`
	Balance    int64  `json:"balance"`
}

func (h *Handler) handleLoyaltyBalance(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	// Unknown customers read as zero balance from the ledger, so check the
	// directory first to keep 404 semantics.
	if _, err := h.customers.Get(r.Context(), customerID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.loyalty.Balance(r.Context(), customerID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "loyalty program unreachable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loyaltyBalanceResponse{CustomerID: customerID, Balance: balance})
}
