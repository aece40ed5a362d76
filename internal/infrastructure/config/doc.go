// Package config loads and validates the Lutron gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LUTRONGW_* environment variables
//   - Per-bridge defaults (type, LEAP and Telnet ports)
//   - Validation of every section, reported in one error
//
// Security Considerations:
//   - Passwords, tokens and the JWT secret belong in environment variables
//   - Log only Config.Redacted copies
//   - Bridge PEM files stay on disk; startup copies them into the credential store
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, b := range cfg.Bridges {
//	    fmt.Println(b.ID, b.Type, b.Address)
//	}
package config
