package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a subscription plan definition.
type Plan struct {
	PlanID        int64           `json:"id"`
	Name          string          `json:"name"`
	BooksPerMonth int             `json:"booksPerMonth"`
	PricePerMonth decimal.Decimal `json:"pricePerMonth"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlanPatch is a partial update to a plan. Nil fields are left unchanged.
type PlanPatch struct {
	Name          *string          `json:"name,omitempty"`
	BooksPerMonth *int             `json:"booksPerMonth,omitempty"`
	PricePerMonth *decimal.Decimal `json:"pricePerMonth,omitempty"`
}

// IsEmpty returns true if the patch changes nothing.
func (p *PlanPatch) IsEmpty() bool {
	return p.Name == nil && p.BooksPerMonth == nil && p.PricePerMonth == nil
}

// Apply copies the set fields of the patch onto plan.
func (p *PlanPatch) Apply(plan *Plan) {
	if p.Name != nil {
		plan.Name = *p.Name
	}
	if p.BooksPerMonth != nil {
		plan.BooksPerMonth = *p.BooksPerMonth
	}
	if p.PricePerMonth != nil {
		plan.PricePerMonth = *p.PricePerMonth
	}
}
