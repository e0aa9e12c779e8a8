package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiranaflow/kiranaflow/internal/storage"
)

func TestOrderItemInputToStorageComputesTotalFromRupees(t *testing.T) {
	in := orderItemInput{ProductName: "Rice", Quantity: 2.5, Unit: "kg", PricePerUnit: 50}
	out := in.toStorage()

	assert.Equal(t, "Rice", out.ProductName)
	assert.Equal(t, 2.5, out.Quantity)
	assert.Equal(t, int64(5000), out.PricePerUnitPs)
	assert.Equal(t, int64(12500), out.TotalPricePs)
}

func TestNewOrderResponseConvertsPaiseToRupees(t *testing.T) {
	order := &storage.Order{
		ID:            "order_1",
		TotalAmountPs: 12500,
		Status:        storage.OrderStatusPending,
		Items: []storage.OrderItem{
			{ProductName: "Rice", Quantity: 2.5, PricePerUnitPs: 5000, TotalPricePs: 12500},
		},
	}
	resp := newOrderResponse(order)

	assert.Equal(t, 125.0, resp.Total)
	assert.Equal(t, "pending", resp.Status)
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, 50.0, resp.Items[0].PricePerUnit)
	assert.Equal(t, 125.0, resp.Items[0].Total)
	assert.Nil(t, resp.Invoice)
}

func TestNewOrderResponseIncludesInvoiceWhenAttached(t *testing.T) {
	order := &storage.Order{
		Invoice: &storage.Invoice{Number: "INV-2026-001", SubtotalPs: 10000, TotalPs: 11800, CGSTPs: 900, SGSTPs: 900},
	}
	resp := newOrderResponse(order)

	require := assert.New(t)
	require.NotNil(resp.Invoice)
	require.Equal("INV-2026-001", resp.Invoice.Number)
	require.Equal(118.0, resp.Invoice.Total)
}

func TestNewStatsResponseConvertsRevenue(t *testing.T) {
	resp := newStatsResponse(storage.Stats{TotalOrders: 3, PendingOrders: 1, ConfirmedOrders: 2, TotalRevenuePs: 45000})
	assert.Equal(t, 450.0, resp.TotalRevenue)
}
