package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemType distinguishes the two purchasable catalog variants.
type ItemType string

const (
	ItemTypeTest   ItemType = "test"
	ItemTypeCourse ItemType = "course"
)

// Valid reports whether the item type is one of the known variants.
func (t ItemType) Valid() bool {
	return t == ItemTypeTest || t == ItemTypeCourse
}

// CatalogItem is a purchasable entry (exam or course) with a price, an
// availability window and a cached registration count.
type CatalogItem struct {
	ID                string          `db:"id" json:"id"`
	Title             string          `db:"title" json:"title"`
	Description       string          `db:"description" json:"description"`
	Price             decimal.Decimal `db:"price" json:"price"`
	StartAt           time.Time       `db:"start_at" json:"start_at"`
	EndAt             time.Time       `db:"end_at" json:"end_at"`
	RegistrationCount int             `db:"registration_count" json:"registration_count"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// IsAvailable reports whether now falls inside the inclusive availability
// window [start_at, end_at].
func (i *CatalogItem) IsAvailable(now time.Time) bool {
	return !now.Before(i.StartAt) && !now.After(i.EndAt)
}

// CatalogItemDetail enriches CatalogItem with the per-user registration flag.
type CatalogItemDetail struct {
	CatalogItem
	IsRegistered bool `db:"is_registered" json:"is_registered"`
}

// Catalog sort modes.
const (
	CatalogSortCreated = "created"
	CatalogSortPopular = "popular"
)

// CatalogFilter captures list criteria for catalog queries.
type CatalogFilter struct {
	Status   string
	Search   string
	Sort     string
	Page     int
	PageSize int
}
