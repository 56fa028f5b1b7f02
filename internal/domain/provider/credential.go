package provider

import (
	"github.com/promptlab/backend/internal/domain/shared"
)

// Credential is a tenant's sealed API key for one provider. (tenant_id, provider) is unique.
type Credential struct {
	shared.BaseEntity
	shared.TenantOwned
	Provider Name   `gorm:"type:varchar(32);not null;index" json:"provider"`
	Label    string `gorm:"type:varchar(100)" json:"label"`
	Sealed   []byte `gorm:"not null" json:"-"`
	// Hint is the last four characters of the key, for display
	Hint string `gorm:"type:varchar(8)" json:"hint"`
}

// TableName returns the table name for GORM
func (Credential) TableName() string {
	return "provider_credentials"
}

// KeyHint returns the display hint for an API key
func KeyHint(apiKey string) string {
	if len(apiKey) <= 4 {
		return "****"
	}
	return "…" + apiKey[len(apiKey)-4:]
}
