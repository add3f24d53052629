package main

import (
	"context"
	"fmt"
	"time"

	orbit "github.com/orbit-social/orbit-go"
	"github.com/spf13/cobra"
)

var (
	loginIdentifier string
	loginPassword   string
)

func init() {
	loginCmd.Flags().StringVarP(&loginIdentifier, "user", "u", "", "username or email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password")
	loginCmd.MarkFlagRequired("user")
	loginCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token in ~/.orbit/config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		var opts []orbit.ClientOption
		if cfg.Default.BaseURL != "" {
			opts = append(opts, orbit.WithBaseURL(cfg.Default.BaseURL))
		}
		client := orbit.NewClient("", opts...)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		auth, err := client.Account.Login(ctx, &orbit.LoginOptions{
			Identifier: loginIdentifier,
			Password:   loginPassword,
		})
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg.Auth.Token = auth.Token
		cfg.Auth.UserID = auth.User.ID
		cfg.Auth.Username = auth.User.Username
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Logged in as %s (id %d), token saved to %s\n", auth.User.Username, auth.User.ID, path)
		return nil
	},
}
