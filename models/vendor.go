package models

import "time"

// Vendor is the payout recipient. Only the fields the payment engine needs
// are modelled here; the full vendor profile lives in the marketplace.
type Vendor struct {
	ID        string    `bson:"id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Category  string    `bson:"category,omitempty" json:"category,omitempty"`
	City      string    `bson:"city,omitempty" json:"city,omitempty"`
	Phone     string    `bson:"phone" json:"phone"`
	IsActive  bool      `bson:"isActive" json:"isActive"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
