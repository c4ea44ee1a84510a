package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/callwatch/callwatch/internal/auth"
	"github.com/callwatch/callwatch/internal/config"
	"github.com/callwatch/callwatch/internal/store"
	"github.com/callwatch/callwatch/pkg/cli"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage monitoring accounts",
	}
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsGrantCmd())
	cmd.AddCommand(newAccountsRevokeCmd())
	return cmd
}

// openStore loads config and opens the account store for a CLI subcommand.
func openStore(cmd *cobra.Command) (*config.Config, store.Store, error) {
	configPath := resolveConfigPath(cmd, nil, "callwatch.json")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.New(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, db, nil
}

func newAccountsAddCmd() *cobra.Command {
	var (
		agent     string
		extension string
		fullName  string
		manager   bool
		role      string
		eavesdrop string
		regServer string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account (password is prompted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			username := args[0]
			p := cli.DefaultPrompter()
			password := p.AskPassword("Password")
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}

			acct := &store.Account{
				Agent:              agent,
				Username:           username,
				FullName:           fullName,
				Extension:          extension,
				Manager:            manager,
				EavesdropExtension: eavesdrop,
				RegistrationServer: regServer,
				Role:               role,
			}
			if acct.FullName == "" {
				acct.FullName = username
			}

			svc := auth.NewService(db, cfg.Auth)
			if err := svc.Register(context.Background(), acct, password); err != nil {
				return err
			}

			fmt.Printf("created account %s (%s)\n", username, acct.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", `call-center agent name, e.g. "1000-Jane_Doe"`)
	cmd.Flags().StringVar(&extension, "extension", "", "agent extension")
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name")
	cmd.Flags().BoolVar(&manager, "manager", false, "grant the manager flag")
	cmd.Flags().StringVar(&role, "role", "user", `API role: "user" or "admin"`)
	cmd.Flags().StringVar(&eavesdrop, "eavesdrop-extension", "", "dedicated eavesdrop extension")
	cmd.Flags().StringVar(&regServer, "registration-server", "", "registration server hostname")
	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			accounts, err := db.ListAccounts(context.Background())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tAGENT\tEXTENSION\tMANAGER\tROLE\tSERVER")
			for _, a := range accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
					a.Username, a.Agent, a.Extension, a.Manager, a.Role, a.RegistrationServer)
			}
			return w.Flush()
		},
	}
}

func newAccountsGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <username> <extension>",
		Short: "Allow a manager account to view an extension",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			acct, err := db.GetAccountByUsername(context.Background(), args[0])
			if err != nil {
				return err
			}
			if acct == nil {
				return fmt.Errorf("no account %q", args[0])
			}

			if err := db.GrantView(context.Background(), acct.ID, args[1]); err != nil {
				return err
			}
			fmt.Printf("granted %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func newAccountsRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <username> <extension>",
		Short: "Revoke a manager account's view of an extension",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			acct, err := db.GetAccountByUsername(context.Background(), args[0])
			if err != nil {
				return err
			}
			if acct == nil {
				return fmt.Errorf("no account %q", args[0])
			}

			if err := db.RevokeView(context.Background(), acct.ID, args[1]); err != nil {
				return err
			}
			fmt.Printf("revoked %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}
