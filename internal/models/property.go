package models

import "github.com/shopspring/decimal"

// Property is the minimal local read model the reservation flow needs
// from the property-management system (out of scope per spec.md §1, but
// its pricing/status fields are read, never written, by this service).
type Property struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	TenantID    string          `gorm:"index;size:36" json:"tenant_id"`
	BasePrice   decimal.Decimal `gorm:"type:decimal(10,2)" json:"base_price"`
	CleaningFee decimal.Decimal `gorm:"type:decimal(10,2)" json:"cleaning_fee"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(6,4)" json:"tax_rate"`
	TaxIncluded bool            `json:"tax_included"`
	Active      bool            `json:"active"`
}

func (Property) TableName() string { return "properties" }
