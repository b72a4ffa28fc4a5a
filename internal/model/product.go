package model

import "time"

// Product represents a catalogue product as seen by the fulfillment core.
// The catalogue itself is owned elsewhere; this is the read model used to
// snapshot order items at checkout time.
type Product struct {
	ID         string        `json:"id" db:"id"`
	SKU        string        `json:"sku" db:"sku"`
	Name       LocalizedText `json:"name"`
	PriceCents int64         `json:"priceCents" db:"price_cents"`
	WeightGram int           `json:"weightGram" db:"weight_gram"`
	Category   string        `json:"category" db:"category"`
	CreatedAt  time.Time     `json:"createdAt" db:"created_at"`
}
