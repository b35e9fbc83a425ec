package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "till/pkg/domain-errors"
)

var testProducts = map[string]Product{
	"widget":  {ID: "widget", Name: "Widget", PriceCents: 1000},
	"spirits": {ID: "spirits", Name: "Single Malt", PriceCents: 4500, RequiresIDCheck: true, MinimumAge: 21},
}

type failingClient struct{}

func (failingClient) Product(context.Context, string, string) (Product, error) {
	return Product{}, errors.New("catalog down")
}

func TestResolvePreservesOrder(t *testing.T) {
	resolver := NewResolver(MockClient{Products: testProducts})

	items, err := resolver.Resolve(context.Background(), []LineRef{
		{ProductID: "spirits", Quantity: 1},
		{ProductID: "widget", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "spirits", items[0].ProductID)
	assert.True(t, items[0].RequiresIDCheck)
	assert.Equal(t, 21, items[0].MinimumAge)

	assert.Equal(t, "widget", items[1].ProductID)
	assert.Equal(t, int64(3), items[1].Quantity)
	assert.Equal(t, int64(1000), items[1].UnitPriceCents)
}

func TestResolveUnknownProductIsDeterministic(t *testing.T) {
	resolver := NewResolver(MockClient{})

	first, err := resolver.Resolve(context.Background(), []LineRef{{ProductID: "mystery", Quantity: 1}})
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), []LineRef{{ProductID: "mystery", Quantity: 1}})
	require.NoError(t, err)

	assert.Equal(t, first[0].UnitPriceCents, second[0].UnitPriceCents)
	assert.Positive(t, first[0].UnitPriceCents)
}

func TestResolveEmptyBatch(t *testing.T) {
	resolver := NewResolver(MockClient{})
	_, err := resolver.Resolve(context.Background(), nil)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
}

func TestResolveInvalidQuantity(t *testing.T) {
	resolver := NewResolver(MockClient{})
	_, err := resolver.Resolve(context.Background(), []LineRef{{ProductID: "widget", Quantity: 0}})
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
}

func TestResolveLookupFailureFailsBatch(t *testing.T) {
	resolver := NewResolver(failingClient{})
	_, err := resolver.Resolve(context.Background(), []LineRef{
		{ProductID: "widget", Quantity: 1},
		{ProductID: "spirits", Quantity: 1},
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
}
