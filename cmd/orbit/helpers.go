package main

import (
	"fmt"
	"os"

	orbit "github.com/orbit-social/orbit-go"
)

// getClient creates an Orbit client authenticated with the stored token.
func getClient() *orbit.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'orbit login' first.")
		os.Exit(1)
	}

	var opts []orbit.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, orbit.WithBaseURL(cfg.Default.BaseURL))
	}

	return orbit.NewClient(cfg.Auth.Token, opts...)
}

// maskToken shows the first 12 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 16 {
		return "****"
	}
	return token[:12] + "..." + token[len(token)-4:]
}
