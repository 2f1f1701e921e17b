package product

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Product is a catalog entry as stored in the remote products collection.
// ID is empty until the record store assigns one on create.
type Product struct {
	ID          string  `json:"productId"`
	Name        string  `json:"productName"`
	Price       float64 `json:"productPrice"`
	Description string  `json:"productDescription"`
	ImageURL    string  `json:"imageUrl"`
}

// RecordKey returns the record store key of the product.
func (p Product) RecordKey() string {
	return p.ID
}

// WithRecordKey returns a copy of the product carrying the given key.
func (p Product) WithRecordKey(key string) Product {
	p.ID = key
	return p
}

// Draft holds the raw values entered on an add-product form.
type Draft struct {
	Name        string
	Price       string
	Description string
}

// Product builds an unpersisted product from the draft and a resolved image URL.
func (d Draft) Product(imageURL string) Product {
	return Product{
		Name:        strings.TrimSpace(d.Name),
		Price:       ParsePrice(d.Price),
		Description: strings.TrimSpace(d.Description),
		ImageURL:    imageURL,
	}
}

// Patch is a partial update. Nil fields keep the current value.
type Patch struct {
	Name        *string
	Description *string
	Price       *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil
}

// Apply returns base with the patch fields applied.
func (p Patch) Apply(base Product) Product {
	if p.Name != nil {
		base.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		base.Description = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		base.Price = ParsePrice(*p.Price)
	}
	return base
}

// ParsePrice converts user input into a price. Anything that is not a finite,
// non-negative number becomes 0.
func ParsePrice(raw string) float64 {
	v, err := cast.ToFloat64E(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
