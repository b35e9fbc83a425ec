package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"till/internal/checkout/models"
	dErrors "till/pkg/domain-errors"
	"till/pkg/platform/sentinel"
)

const defaultSearchLimit = 25

// Service is the customer directory used by operators mid-sale.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("customer store is required")
	}
	svc := &Service{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create registers a new customer record.
func (s *Service) Create(ctx context.Context, customer Customer) (*Customer, error) {
	customer.DisplayName = strings.TrimSpace(customer.DisplayName)
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	if err := s.store.Create(ctx, &customer); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "customer already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create customer")
	}

	s.logger.InfoContext(ctx, "customer created", "customer_id", customer.ID)
	return &customer, nil
}

// Get fetches one customer record.
func (s *Service) Get(ctx context.Context, customerID string) (*Customer, error) {
	customer, err := s.store.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "customer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get customer")
	}
	return customer, nil
}

// Search matches customers by name, email, or phone.
func (s *Service) Search(ctx context.Context, query string) ([]*Customer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "search query is required")
	}
	customers, err := s.store.Search(ctx, query, defaultSearchLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search customers")
	}
	return customers, nil
}

// Resolve turns a customer ID into the reference embedded in sale documents.
// Satisfies the order backend's CustomerResolver.
func (s *Service) Resolve(ctx context.Context, customerID string) (*models.CustomerRef, error) {
	customer, err := s.store.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &models.CustomerRef{
		ID:          customer.ID,
		DisplayName: customer.DisplayName,
		Email:       customer.Email,
		Phone:       customer.Phone,
	}, nil
}
