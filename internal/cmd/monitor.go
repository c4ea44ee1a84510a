package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/callwatch/callwatch/internal/tui/dashboard"
	"github.com/callwatch/callwatch/pkg/cli"
)

func newMonitorCmd() *cobra.Command {
	var (
		server   string
		agent    string
		username string
		token    string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Terminal wallboard for live agent status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agent == "" {
				return fmt.Errorf("--agent is required")
			}

			if token == "" {
				p := cli.DefaultPrompter()
				if username == "" {
					username = p.Ask("Username", "")
				}
				password := p.AskPassword("Password")

				var err error
				token, err = login(server, username, password)
				if err != nil {
					return err
				}
			}

			wsURL, err := buildWSURL(server, token)
			if err != nil {
				return err
			}
			return dashboard.Run(wsURL, agent)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "hub base URL")
	cmd.Flags().StringVar(&agent, "agent", "", `call-center agent name to watch as, e.g. "1000-Jane_Doe"`)
	cmd.Flags().StringVar(&username, "username", "", "login username (prompted if omitted)")
	cmd.Flags().StringVar(&token, "token", "", "JWT (skips the login prompt)")
	return cmd
}

func login(server, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(strings.TrimRight(server, "/")+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %s", resp.Status)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	return result.Token, nil
}

func buildWSURL(server, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}
