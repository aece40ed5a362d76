package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/lutron-gateway/internal/auth"
	"github.com/nerrad567/lutron-gateway/internal/credentials"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/database"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/logging"
)

// newRootCmd builds the lutrongw command tree. Without a subcommand the
// gateway runs.
func newRootCmd() *cobra.Command {
	var configFlag string
	configPath := func() string {
		if configFlag != "" {
			return configFlag
		}
		return getConfigPath()
	}

	serve := func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), configPath())
	}

	root := &cobra.Command{
		Use:           "lutrongw",
		Short:         "Gateway between Lutron LEAP/LIP bridges and MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "",
		"config file (default $LUTRONGW_CONFIG, then "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{
			Use:     "serve",
			Aliases: []string{"run"},
			Short:   "Run the gateway",
			Args:    cobra.NoArgs,
			RunE:    serve,
		},
		newTokenCmd(configPath),
		newCredentialsCmd(configPath),
		newMigrateCmd(configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "lutrongw %s (commit %s, built %s)\n", version, commit, date)
			},
		},
	)
	return root
}

func newTokenCmd(configPath func() string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(configPath(), subject, auth.Role(role), ttl, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "who the token is for (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	return cmd
}

func newCredentialsCmd(configPath func() string) *cobra.Command {
	var bridgeID string
	cmd := &cobra.Command{
		Use:   "credentials --bridge ID key=value...",
		Short: "Store credentials for a configured bridge",
		Long: `Authenticates through the bridge type's provider and stores the resulting
bundle, merged over anything already stored.

LEAP bridges take key_file=, cert_file= and ca_file= (or private_key=,
device_certificate= and ca_certificate= with PEM text). Telnet bridges take
login= and password=.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredentials(cmd.Context(), configPath(), bridgeID, args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&bridgeID, "bridge", "", "bridge ID as configured (required)")
	_ = cmd.MarkFlagRequired("bridge")
	return cmd
}

func newMigrateCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, roll back or list SQLite schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			return runMigrate(cmd.Context(), configPath(), action, cmd.OutOrStdout())
		},
	}
}

// runToken mints a bearer token signed with the configured JWT secret.
func runToken(configPath, subject string, role auth.Role, ttl int, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	tokenCfg := auth.TokenConfig{
		Secret:     cfg.Security.JWT.Secret,
		Issuer:     cfg.Security.JWT.Issuer,
		TTLMinutes: cfg.Security.JWT.AccessTokenTTL,
	}
	if ttl > 0 {
		tokenCfg.TTLMinutes = ttl
	}

	token, err := auth.IssueToken(tokenCfg, subject, role)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// runCredentials stores a credential bundle for one configured bridge.
func runCredentials(ctx context.Context, configPath, bridgeID string, args []string, out io.Writer) error {
	input, err := parseInputs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	bridge, ok := cfg.Bridge(bridgeID)
	if !ok {
		return fmt.Errorf("bridge %q is not configured", bridgeID)
	}

	// Pairing with a Lutron account is not offered here; PEM files from a
	// completed pairing are.
	provider, err := credentials.ProviderFor(bridge.Type, nil)
	if err != nil {
		return err
	}
	bundle, err := provider.Authenticate(ctx, input)
	if err != nil {
		return fmt.Errorf("bridge %s: %w", bridge.ID, err)
	}

	log := logging.New(config.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"}, version)
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	existing, err := store.Get(ctx, bridge.Type, bridge.ID)
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return fmt.Errorf("reading stored credentials: %w", err)
	}
	if err := store.Put(ctx, bridge.Type, bridge.ID, credentials.Merge(existing, bundle)); err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}
	fmt.Fprintf(out, "stored credentials for %s bridge %s\n", bridge.Type, bridge.ID)
	return nil
}

// parseInputs turns key=value arguments into a provider input map.
func parseInputs(args []string) (map[string]string, error) {
	input := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, want key=value", arg)
		}
		input[key] = value
	}
	return input, nil
}

// runMigrate applies (up), rolls back (down) or only lists (status) the
// SQLite schema migrations, then prints their state.
func runMigrate(ctx context.Context, configPath, action string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Credentials.Backend != config.BackendSQLite {
		return fmt.Errorf("migrations apply to the %s backend, configured backend is %s",
			config.BackendSQLite, cfg.Credentials.Backend)
	}
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	switch action {
	case "up":
		err = db.Migrate(ctx)
	case "down":
		err = db.MigrateDown(ctx)
	case "status":
	default:
		err = fmt.Errorf("unknown migrate action %q, want up, down or status", action)
	}
	if err != nil {
		return err
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, r := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}
