// Package credentials manages per-provider API keys and model choices in the
// sync storage partition.
package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagerelay/pagerelay/pkg/storage"
	"github.com/pagerelay/pagerelay/pkg/types"
)

// Validator confirms a credential against the real provider with a minimal
// call. The API coordinator implements this.
type Validator interface {
	ValidateCredential(ctx context.Context, platformID string, cred types.Credential) types.ValidationResult
}

// Manager provides CRUD and validation over stored credentials. All entries
// live under one sync-partition key, keyed by platform id.
type Manager struct {
	store     storage.Store
	validator Validator
}

// NewManager creates a credential manager. validator may be nil, in which
// case Validate only checks shape.
func NewManager(store storage.Store, validator Validator) *Manager {
	return &Manager{store: store, validator: validator}
}

func (m *Manager) loadAll() (map[string]types.Credential, error) {
	all := make(map[string]types.Credential)
	if _, err := m.store.Get(storage.KeyCredentials, &all); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return all, nil
}

// Get returns the stored credential for a platform. The bool reports whether
// one exists.
func (m *Manager) Get(platformID string) (types.Credential, bool, error) {
	all, err := m.loadAll()
	if err != nil {
		return types.Credential{}, false, err
	}
	cred, ok := all[platformID]
	return cred, ok, nil
}

// Store saves a credential for a platform, replacing any previous entry.
func (m *Manager) Store(platformID string, cred types.Credential) error {
	if strings.TrimSpace(cred.APIKey) == "" {
		return fmt.Errorf("api key must not be empty")
	}

	all, err := m.loadAll()
	if err != nil {
		return err
	}
	all[platformID] = cred
	if err := m.store.Set(storage.KeyCredentials, all); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Remove deletes a platform's credential. Removing a missing entry is a
// no-op.
func (m *Manager) Remove(platformID string) error {
	all, err := m.loadAll()
	if err != nil {
		return err
	}
	if _, ok := all[platformID]; !ok {
		return nil
	}
	delete(all, platformID)
	if err := m.store.Set(storage.KeyCredentials, all); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}

// Validate checks the credential's shape and then, if a validator is wired,
// confirms it against the provider with a minimal live call.
func (m *Manager) Validate(ctx context.Context, platformID string, cred types.Credential) types.ValidationResult {
	if strings.TrimSpace(cred.APIKey) == "" {
		return types.ValidationResult{IsValid: false, Message: "API key is required"}
	}
	if m.validator == nil {
		return types.ValidationResult{IsValid: true, Message: "Key format accepted (no live validation configured)"}
	}
	return m.validator.ValidateCredential(ctx, platformID, cred)
}

// GetMasked returns the credential with its key masked for display. Keys
// never leave this package unmasked on a read path surfaced to a UI.
func (m *Manager) GetMasked(platformID string) (types.Credential, bool, error) {
	cred, ok, err := m.Get(platformID)
	if err != nil || !ok {
		return types.Credential{}, ok, err
	}
	cred.APIKey = Mask(cred.APIKey)
	return cred, true, nil
}

// Mask hides the middle of an API key for display: keys of 8 characters or
// fewer are fully masked, longer keys keep their first and last 4.
func Mask(apiKey string) string {
	if len(apiKey) <= 8 {
		return "********"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}
