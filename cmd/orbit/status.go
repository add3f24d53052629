package main

import (
	"context"
	"fmt"
	"time"

	orbit "github.com/orbit-social/orbit-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration, check token expiry, and fetch live account info.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL: %s\n", valueOrDefault(cfg.Default.BaseURL, orbit.DefaultBaseURL))

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.Username != "" {
			fmt.Printf("  Username: %s\n", cfg.Auth.Username)
			fmt.Printf("  User ID:  %d\n", cfg.Auth.UserID)
		} else {
			fmt.Println("  Username: (not logged in)")
		}

		tokenStatus := "none"
		if cfg.Auth.Token != "" {
			tokenStatus = maskToken(cfg.Auth.Token)
			if id, expires, err := orbit.IdentityFromToken(cfg.Auth.Token); err == nil {
				switch {
				case expires.IsZero():
					tokenStatus = fmt.Sprintf("%s (user %d, no expiry)", tokenStatus, id)
				case time.Now().Before(expires):
					tokenStatus = fmt.Sprintf("%s (user %d, expires %s)", tokenStatus, id, expires.Format(time.RFC3339))
				default:
					tokenStatus = fmt.Sprintf("%s (user %d, EXPIRED %s)", tokenStatus, id, expires.Format(time.RFC3339))
				}
			}
		}
		fmt.Printf("  Token:    %s\n", tokenStatus)

		if cfg.Auth.Token == "" {
			return nil
		}

		fmt.Println()
		fmt.Println("Live status:")

		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		me, err := client.Account.Me(ctx)
		if err != nil {
			fmt.Printf("  Error fetching account info: %v\n", err)
			return nil
		}
		fmt.Printf("  Username: %s\n", me.Username)
		fmt.Printf("  Email:    %s\n", me.Email)
		fmt.Printf("  Name:     %s %s\n", me.FirstName, me.LastName)
		return nil
	},
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
