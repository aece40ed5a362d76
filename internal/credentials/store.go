package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
)

var (
	// ErrNotFound is returned when no bundle is stored for a bridge.
	ErrNotFound = errors.New("credentials: not found")

	// ErrInvalidKey is returned for an empty bridge type or ID.
	ErrInvalidKey = errors.New("credentials: bridge type and ID are required")
)

// Store persists credential bundles keyed by bridge type and bridge ID.
type Store interface {
	Get(ctx context.Context, bridgeType, bridgeID string) (*lutron.CredentialBundle, error)
	Put(ctx context.Context, bridgeType, bridgeID string, bundle *lutron.CredentialBundle) error
	Close() error
}

func checkKey(bridgeType, bridgeID string) error {
	if bridgeType == "" || bridgeID == "" {
		return ErrInvalidKey
	}
	return nil
}

// Source serves engines from a Store.
type Source struct {
	store Store
}

// NewSource wraps store as a lutron.CredentialSource.
func NewSource(store Store) *Source {
	return &Source{store: store}
}

// Credentials returns the stored bundle. A missing entry yields (nil, nil)
// so the engine reports lutron.ErrNoCredentials itself.
func (s *Source) Credentials(ctx context.Context, bridgeType, bridgeID string) (*lutron.CredentialBundle, error) {
	bundle, err := s.store.Get(ctx, bridgeType, bridgeID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading credentials for %s %s: %w", bridgeType, bridgeID, err)
	}
	return bundle, nil
}

// Merge overlays the non-empty fields of update onto a copy of base.
func Merge(base, update *lutron.CredentialBundle) *lutron.CredentialBundle {
	var out lutron.CredentialBundle
	if base != nil {
		out = *base
	}
	if update == nil {
		return &out
	}
	if update.PrivateKey != "" {
		out.PrivateKey = update.PrivateKey
	}
	if update.DeviceCert != "" {
		out.DeviceCert = update.DeviceCert
	}
	if update.CACert != "" {
		out.CACert = update.CACert
	}
	if update.Login != "" {
		out.Login = update.Login
		out.Password = update.Password
	}
	return &out
}
