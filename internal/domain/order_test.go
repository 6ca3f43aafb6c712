package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToOrderStatus(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      OrderStatus
		wantError bool
	}{
		{name: "pending review: ok", in: "PENDING_REVIEW", want: OrderStatusPendingReview},
		{name: "cancelled: ok", in: "CANCELLED", want: OrderStatusCancelled},
		{name: "stock bucket: ok", in: "STOCK", want: OrderStatusStock},
		{name: "lower case: fail", in: "done", wantError: true},
		{name: "empty: fail", in: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToOrderStatus(tt.in)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, OrderStatusDone.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusPrescription.Terminal())
	assert.False(t, OrderStatusStock.Terminal())
}

func TestShippingAddress(t *testing.T) {
	addr := ShippingAddress{Street: "12 Sukhumvit", District: "Watthana", Province: "Bangkok", PostalCode: "10110"}
	require.NoError(t, addr.Validate())

	v, err := addr.Value()
	require.NoError(t, err)

	var scanned ShippingAddress
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, addr, scanned)

	addr.PostalCode = ""
	assert.EqualError(t, addr.Validate(), "postalCode is empty")

	assert.Error(t, scanned.Scan(42))
}

func TestOrder_ItemsTotal(t *testing.T) {
	order := Order{Items: []OrderItem{
		{Quantity: 3, PriceAtTime: decimal.RequireFromString("19.99")},
		{Quantity: 1, PriceAtTime: decimal.RequireFromString("0.10")},
	}}

	assert.True(t, decimal.RequireFromString("60.07").Equal(order.ItemsTotal()))
}

func TestNewOrderEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	order := &Order{
		ID:          "order-1",
		UserID:      "user-1",
		User:        &UserSummary{ID: "user-1", Email: "somchai@example.com"},
		Status:      OrderStatusPrescription,
		TotalAmount: decimal.RequireFromString("45.00"),
		Items: []OrderItem{
			{ProductID: "p-1", Product: &Product{Name: "Amoxicillin 500mg"}, Quantity: 3, PriceAtTime: decimal.RequireFromString("15.00")},
			{ProductID: "p-gone", Quantity: 1, PriceAtTime: decimal.Zero},
		},
	}

	e := NewOrderEvent(EventOrderCreated, order, at)

	assert.Equal(t, EventOrderCreated, e.Type)
	assert.Equal(t, "somchai@example.com", e.CustomerEmail)
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	require.Len(t, e.Items, 2)
	assert.Equal(t, "Amoxicillin 500mg", e.Items[0].ProductName)
	assert.Empty(t, e.Items[1].ProductName)
}
