package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pressograph/prefsync"
	"github.com/pressograph/prefsync/api"
	"github.com/pressograph/prefsync/internal/config"
)

// The operator commands have no request cookie; an empty MemoryCarrier
// stands in so every read goes to the cache and store.

func newGetCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "get <kind>",
		Short: "Print a user's effective preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.syncer.Get(cmd.Context(), prefsync.NewMemoryCarrier(nil), args[0], userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSetCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "set <kind> <value>",
		Short: "Store a preference for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			carrier := prefsync.NewMemoryCarrier(nil)
			res, err := a.syncer.Set(cmd.Context(), carrier, args[0], args[1], userID)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("preference not fully saved: %w", res.Err)
			}
			v, _ := carrier.Read(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", args[0], v)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newClearCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "clear <kind>",
		Short: "Remove a user's preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.syncer.Clear(cmd.Context(), prefsync.NewMemoryCarrier(nil), args[0], userID); err != nil {
				return err
			}
			if n := a.syncer.Pending(); n > 0 {
				return fmt.Errorf("preference not fully cleared; %d tier writes failed", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every preference for a user as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			snapshot := a.syncer.Snapshot(cmd.Context(), prefsync.NewMemoryCarrier(nil), userID)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		Long:  `Issue an HS256 bearer token signed with PREFSYNC_JWT_SECRET, for local testing.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			auth, err := api.NewAuthenticator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
			if err != nil {
				return err
			}
			tok, err := auth.Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
