package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

// remember to add new statuses to validOrderStatuses
const (
	OrderStatusPendingReview OrderStatus = "PENDING_REVIEW"
	OrderStatusPrescription  OrderStatus = "PRESCRIPTION"
	OrderStatusProcessing    OrderStatus = "PROCESSING"
	OrderStatusDone          OrderStatus = "DONE"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusStock         OrderStatus = "STOCK"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPendingReview: {},
	OrderStatusPrescription:  {},
	OrderStatusProcessing:    {},
	OrderStatusDone:          {},
	OrderStatusCancelled:     {},
	OrderStatusStock:         {},
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

func (s OrderStatus) Valid() bool {
	_, ok := validOrderStatuses[s]
	return ok
}

// Terminal reports whether no further stock movement may be tied to the order.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDone || s == OrderStatusCancelled
}

type ShippingAddress struct {
	Street     string `json:"street"`
	District   string `json:"district"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
}

func (a ShippingAddress) Validate() error {
	switch {
	case a.Street == "":
		return errors.New("street is empty")
	case a.District == "":
		return errors.New("district is empty")
	case a.Province == "":
		return errors.New("province is empty")
	case a.PostalCode == "":
		return errors.New("postalCode is empty")
	}
	return nil
}

// Value stores the address as jsonb. lib/pq sends []byte as bytea, so the
// document goes out as text.
func (a ShippingAddress) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *ShippingAddress) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("cannot scan %T into ShippingAddress", src)
	}
}

// MaxItemQuantity bounds a single order or cart line. Quantities are stored
// as INTEGER.
const MaxItemQuantity = 1000

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	ProductID   string          `json:"productId"`
	Product     *Product        `json:"product,omitempty"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"priceAtTime"`
}

// Subtotal is priceAtTime * quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                string           `json:"id"`
	UserID            string           `json:"userId"`
	User              *UserSummary     `json:"user,omitempty"`
	Status            OrderStatus      `json:"status"`
	TotalAmount       decimal.Decimal  `json:"totalAmount"`
	PrescriptionImage *string          `json:"prescriptionImage,omitempty"`
	ShippingAddress   *ShippingAddress `json:"shippingAddress,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
	Items             []OrderItem      `json:"items"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// ItemsTotal sums the item subtotals. For a created order it equals TotalAmount.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}
