// Package credentials stores and produces Lutron bridge credential bundles.
//
// A bundle holds the PEM client key and certificates a LEAP bridge accepts
// on its TLS port, and the login a Telnet integration port expects. Bundles
// are kept per (bridge type, bridge ID) in a Store:
//
//   - SQLiteStore: the bridge_credentials table in the gateway database
//   - BoltStore: one bbolt bucket per bridge type
//
// Source adapts a Store to the engine's lutron.CredentialSource. Providers
// turn operator input (PEM files from a completed pairing, or a Telnet login)
// into bundles, and Seed copies what the configuration names into the store
// at startup.
//
// Usage:
//
//	store := credentials.NewSQLiteStore(db)
//	if err := credentials.Seed(ctx, store, cfg.Bridges); err != nil {
//	    return err
//	}
//	engine, err := lutron.NewEngine(lutron.Options{
//	    Credentials: credentials.NewSource(store),
//	    // ...
//	})
package credentials
