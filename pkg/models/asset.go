package models

import "time"

// Asset identity is (symbol, asset_type); descriptive fields are merged
// across batches, never overwritten with nulls.
type Asset struct {
	ID        int64      `json:"id" db:"id"`
	Symbol    string     `json:"symbol" db:"symbol"`
	AssetType string     `json:"asset_type" db:"asset_type"`
	Name      *string    `json:"name,omitempty" db:"name"`
	Exchange  *string    `json:"exchange,omitempty" db:"exchange"`
	Sector    *string    `json:"sector,omitempty" db:"sector"`
	Currency  string     `json:"currency" db:"currency"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UpsertAssetRequest carries the descriptive fields a batch may contribute.
type UpsertAssetRequest struct {
	Symbol    string  `json:"symbol" validate:"required"`
	AssetType string  `json:"asset_type" validate:"required"`
	Name      *string `json:"name,omitempty"`
	Exchange  *string `json:"exchange,omitempty"`
	Sector    *string `json:"sector,omitempty"`
	Currency  *string `json:"currency,omitempty"`
}

const (
	AssetTypeStock  = "STOCK"
	AssetTypeETF    = "ETF"
	AssetTypeCrypto = "CRYPTO"
	AssetTypeIndex  = "INDEX"
)
