package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
)

// Seed copies credentials named in the bridges configuration into store,
// merging with what is already stored. Bridges without configured
// credentials are left alone.
func Seed(ctx context.Context, store Store, bridges []config.BridgeConfig) error {
	var errs []error
	for _, b := range bridges {
		update, err := configuredBundle(ctx, b)
		if err != nil {
			errs = append(errs, fmt.Errorf("bridge %s: %w", b.ID, err))
			continue
		}
		if update == nil {
			continue
		}

		existing, err := store.Get(ctx, b.Type, b.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("bridge %s: %w", b.ID, err))
			continue
		}
		if err := store.Put(ctx, b.Type, b.ID, Merge(existing, update)); err != nil {
			errs = append(errs, fmt.Errorf("bridge %s: %w", b.ID, err))
		}
	}
	return errors.Join(errs...)
}

func configuredBundle(ctx context.Context, b config.BridgeConfig) (*lutron.CredentialBundle, error) {
	var bundle *lutron.CredentialBundle

	if b.TLS.HasFiles() {
		pem, err := PEMProvider{}.Authenticate(ctx, map[string]string{
			FieldKeyFile:  b.TLS.KeyFile,
			FieldCertFile: b.TLS.CertFile,
			FieldCAFile:   b.TLS.CAFile,
		})
		if err != nil {
			return nil, err
		}
		bundle = pem
	}

	if b.Telnet.Login != "" {
		login, err := TelnetProvider{}.Authenticate(ctx, map[string]string{
			FieldLogin:    b.Telnet.Login,
			FieldPassword: b.Telnet.Password,
		})
		if err != nil {
			return nil, err
		}
		bundle = Merge(bundle, login)
	}
	return bundle, nil
}
