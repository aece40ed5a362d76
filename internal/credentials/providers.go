package credentials

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
)

// Input field names accepted by the providers.
const (
	FieldUser     = "user"
	FieldLogin    = "login"
	FieldPassword = "password"

	FieldKeyFile  = "key_file"
	FieldCertFile = "cert_file"
	FieldCAFile   = "ca_file"

	FieldPrivateKey = "private_key"
	FieldDeviceCert = "device_certificate"
	FieldCACert     = "ca_certificate"
)

var (
	// ErrMissingInput is returned when a required input field is empty.
	ErrMissingInput = errors.New("credentials: missing input")

	// ErrPairingUnavailable is returned when a TLS bundle is requested from
	// a user and password but no pairing handshake is configured.
	ErrPairingUnavailable = errors.New("credentials: bridge pairing is not available")

	// ErrInvalidKeyPair is returned when the key and certificate do not load.
	ErrInvalidKeyPair = errors.New("credentials: invalid key pair")
)

// PairFunc performs the bridge pairing handshake for a Lutron account and
// returns the resulting key material.
type PairFunc func(ctx context.Context, user, password string) (*lutron.CredentialBundle, error)

// PEMProvider produces LEAP bundles. Input is either PEM file paths
// (key_file, cert_file, optional ca_file), inline PEM text (private_key,
// device_certificate, optional ca_certificate), or a Lutron account
// (user, password) handed to Pair.
type PEMProvider struct {
	Pair PairFunc
}

// QueryFields lists what an interactive flow asks for; the last is secret.
func (PEMProvider) QueryFields() []string {
	return []string{FieldUser, FieldPassword}
}

// Authenticate builds a bundle and checks that the key pair loads.
func (p PEMProvider) Authenticate(ctx context.Context, input map[string]string) (*lutron.CredentialBundle, error) {
	var (
		bundle *lutron.CredentialBundle
		err    error
	)
	switch {
	case input[FieldKeyFile] != "" || input[FieldCertFile] != "":
		bundle, err = bundleFromFiles(input[FieldKeyFile], input[FieldCertFile], input[FieldCAFile])
	case input[FieldPrivateKey] != "" || input[FieldDeviceCert] != "":
		bundle = &lutron.CredentialBundle{
			PrivateKey: input[FieldPrivateKey],
			DeviceCert: input[FieldDeviceCert],
			CACert:     input[FieldCACert],
		}
	case p.Pair != nil:
		if input[FieldUser] == "" || input[FieldPassword] == "" {
			return nil, fmt.Errorf("%w: user and password", ErrMissingInput)
		}
		bundle, err = p.Pair(ctx, input[FieldUser], input[FieldPassword])
	default:
		return nil, ErrPairingUnavailable
	}
	if err != nil {
		return nil, err
	}
	if err := verifyKeyPair(bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

func bundleFromFiles(keyFile, certFile, caFile string) (*lutron.CredentialBundle, error) {
	if keyFile == "" || certFile == "" {
		return nil, fmt.Errorf("%w: key_file and cert_file", ErrMissingInput)
	}
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	cert, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("reading device certificate: %w", err)
	}
	bundle := &lutron.CredentialBundle{PrivateKey: string(key), DeviceCert: string(cert)}
	if caFile != "" {
		ca, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		bundle.CACert = string(ca)
	}
	return bundle, nil
}

func verifyKeyPair(b *lutron.CredentialBundle) error {
	if b == nil || !b.HasTLS() {
		return fmt.Errorf("%w: private key and device certificate", ErrMissingInput)
	}
	if _, err := tls.X509KeyPair([]byte(b.DeviceCert), []byte(b.PrivateKey)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKeyPair, err)
	}
	return nil
}

// TelnetProvider produces Telnet-only bundles from a login and password.
type TelnetProvider struct{}

// QueryFields lists what an interactive flow asks for; the last is secret.
func (TelnetProvider) QueryFields() []string {
	return []string{FieldLogin, FieldPassword}
}

// Authenticate returns the login bundle. The bridge itself checks it on the
// next connection.
func (TelnetProvider) Authenticate(_ context.Context, input map[string]string) (*lutron.CredentialBundle, error) {
	login := strings.TrimSpace(input[FieldLogin])
	if login == "" || input[FieldPassword] == "" {
		return nil, fmt.Errorf("%w: login and password", ErrMissingInput)
	}
	return &lutron.CredentialBundle{Login: login, Password: input[FieldPassword]}, nil
}

// ProviderFor returns the provider serving a bridge type.
func ProviderFor(bridgeType string, pair PairFunc) (lutron.AuthProvider, error) {
	switch bridgeType {
	case lutron.TypeHybrid:
		return PEMProvider{Pair: pair}, nil
	case lutron.TypeTelnet:
		return TelnetProvider{}, nil
	default:
		return nil, fmt.Errorf("credentials: unknown bridge type %q", bridgeType)
	}
}
