package app

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-sync/internal/service/catalog"
)

// newTestProduct создаёт тестовый товар для использования в тестах.
func newTestProduct() catalog.Product {
	discount := int64(900)
	return catalog.Product{
		ID:                 "product-1",
		Name:               "Test product",
		PriceMinor:         1000,
		DiscountPriceMinor: &discount,
		Currency:           "USD",
		AvailableQty:       5,
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
