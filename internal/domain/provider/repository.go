package provider

import "context"

// CredentialRepository persists credentials of the current tenant
type CredentialRepository interface {
	// Upsert replaces the tenant's credential for the provider
	Upsert(ctx context.Context, c *Credential) error
	FindByProvider(ctx context.Context, name Name) (*Credential, error)
	List(ctx context.Context) ([]Credential, error)
}
