package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
)

type OrderEventItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"priceAtTime"`
}

// OrderEvent is the payload published on the order events topic.
type OrderEvent struct {
	Type           EventType        `json:"type"`
	OrderID        string           `json:"orderId"`
	UserID         string           `json:"userId"`
	CustomerEmail  string           `json:"customerEmail,omitempty"`
	Status         OrderStatus      `json:"status"`
	PreviousStatus OrderStatus      `json:"previousStatus,omitempty"`
	TotalAmount    decimal.Decimal  `json:"totalAmount"`
	Items          []OrderEventItem `json:"items,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

func NewOrderEvent(t EventType, order *Order, at time.Time) OrderEvent {
	e := OrderEvent{
		Type:        t,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Timestamp:   at.UTC(),
	}
	if order.User != nil {
		e.CustomerEmail = order.User.Email
	}
	for _, item := range order.Items {
		ei := OrderEventItem{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			PriceAtTime: item.PriceAtTime,
		}
		if item.Product != nil {
			ei.ProductName = item.Product.Name
		}
		e.Items = append(e.Items, ei)
	}
	return e
}

func (e OrderEvent) EventType() string {
	return string(e.Type)
}
