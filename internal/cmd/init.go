package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/callwatch/callwatch/internal/config"
	"github.com/callwatch/callwatch/pkg/cli"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				output = "callwatch.json"
			}
			defaults, _ := cmd.Flags().GetBool("defaults")
			return runInit(output, defaults)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output config file path (default: ./callwatch.json)")
	cmd.Flags().Bool("defaults", false, "generate non-interactively with secure defaults")
	return cmd
}

func runInit(output string, defaults bool) error {
	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", output)
	}

	secret, err := config.GenerateRandomSecret()
	if err != nil {
		return err
	}

	cfg := config.Config{
		Server: config.ServerConfig{Addr: ":8080"},
		Auth: config.AuthConfig{
			JWTSecret: secret,
			JWTExpiry: config.Duration{Duration: 24 * time.Hour},
		},
		Storage: config.StorageConfig{Driver: "sqlite", DSN: "callwatch.db"},
		Switches: config.SwitchesConfig{
			Default: "sw1.example.com",
			Servers: map[string]config.SwitchEntry{
				"sw1.example.com": {Addr: "sw1.example.com:8021", Password: "ClueCon"},
			},
			Timeout: config.Duration{Duration: 5 * time.Second},
		},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
	}

	if !defaults {
		p := cli.DefaultPrompter()
		cfg.Server.Addr = p.Ask("Listen address", cfg.Server.Addr)
		cfg.Storage.DSN = p.Ask("SQLite database path", cfg.Storage.DSN)

		server := p.Ask("Registration server (FreeSWITCH host)", "sw1.example.com")
		addr := p.Ask("Event socket address", server+":8021")
		password := p.AskPassword("Event socket password")
		if password == "" {
			password = "ClueCon"
		}
		cfg.Switches = config.SwitchesConfig{
			Default: server,
			Servers: map[string]config.SwitchEntry{server: {Addr: addr, Password: password}},
			Timeout: config.Duration{Duration: 5 * time.Second},
		}

		if p.Confirm("Create an initial admin account?", true) {
			username := p.Ask("Admin username", "admin")
			adminPass := p.AskPassword("Admin password")
			cfg.Auth.InitialAdmin = &config.InitialAdmin{Username: username, Password: adminPass}
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(output, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("wrote %s\n", output)
	return nil
}
