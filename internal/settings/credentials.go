package settings

import (
	"context"
	"fmt"
)

// APIKeyName is the store key under which the API credential is persisted.
const APIKeyName = "apiKey"

// Credentials reads and writes the API credential.
type Credentials struct {
	store Store
}

// NewCredentials returns Credentials backed by store.
func NewCredentials(store Store) *Credentials {
	return &Credentials{store: store}
}

// Load returns the stored API key, or "" if none was saved.
func (c *Credentials) Load(ctx context.Context) (string, error) {
	v, _, err := c.store.Get(ctx, APIKeyName)
	if err != nil {
		return "", fmt.Errorf("settings: load api key: %w", err)
	}
	return v, nil
}

// Save persists key. An empty key is stored as-is.
func (c *Credentials) Save(ctx context.Context, key string) error {
	if err := c.store.Set(ctx, APIKeyName, key); err != nil {
		return fmt.Errorf("settings: save api key: %w", err)
	}
	return nil
}

// Clear removes the stored key.
func (c *Credentials) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, APIKeyName); err != nil {
		return fmt.Errorf("settings: clear api key: %w", err)
	}
	return nil
}
