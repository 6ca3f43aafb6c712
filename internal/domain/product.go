package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Price                decimal.Decimal `json:"price"`
	StockQuantity        int             `json:"stockQuantity"`
	InStock              bool            `json:"inStock"`
	RequiresPrescription bool            `json:"requiresPrescription"`
	Image                *string         `json:"image,omitempty"`
	CategoryID           *string         `json:"categoryId,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}
