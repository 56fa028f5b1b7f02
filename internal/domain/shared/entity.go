package shared

import "time"

// BaseEntity provides the common persistence fields for all entities
type BaseEntity struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetID returns the entity ID
func (e *BaseEntity) GetID() uint64 {
	return e.ID
}

// TenantOwned marks an entity as owned by exactly one tenant. The tenant_id column is
// stamped and filtered by the persistence layer; application code never sets it from
// request input.
type TenantOwned struct {
	TenantID uint64 `gorm:"not null;index" json:"tenant_id"`
}

// GetTenantID returns the owning tenant
func (t *TenantOwned) GetTenantID() uint64 {
	return t.TenantID
}
