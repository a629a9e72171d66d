package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/model"
	"github.com/scanzie/smeal/internal/store"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Apply the database schema for the configured driver. The schema is
idempotent; running migrate twice is harmless.

Examples:
  scanzie migrate

  # Also create a development user and print a session token for it
  scanzie migrate --seed-user "Ada Lovelace" --seed-email ada@example.com`,
		Args: cobra.NoArgs,
		RunE: runMigrateCmd,
	}
	cmd.Flags().String("seed-user", "", "Create a user with this name and print a session token")
	cmd.Flags().String("seed-email", "", "Email of the seeded user")
	cmd.Flags().Duration("seed-ttl", auth.DefaultSessionTTL, "Lifetime of the seeded session")
	return cmd
}

func runMigrateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)
	ctx := cmd.Context()

	// Open applies the schema.
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", cfg.Database.Driver)

	name, _ := cmd.Flags().GetString("seed-user")
	if name == "" {
		return nil
	}
	email, _ := cmd.Flags().GetString("seed-email")
	ttl, _ := cmd.Flags().GetDuration("seed-ttl")

	u := &model.User{Name: name, Email: email}
	if err := st.CreateUser(ctx, u); err != nil {
		return err
	}
	sess, err := auth.NewResolver(st, logger).Issue(ctx, u.ID, ttl)
	if err != nil {
		return fmt.Errorf("issue session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user:    %s (%s)\n", u.ID, u.Initials())
	fmt.Fprintf(cmd.OutOrStdout(), "token:   %s\n", sess.Token)
	fmt.Fprintf(cmd.OutOrStdout(), "expires: %s\n", sess.ExpiresAt.Format(time.RFC3339))
	return nil
}
