package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/maheshrc27/autopost/internal/database"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/transfer"
	"github.com/maheshrc27/autopost/pkg/utils"
)

var (
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "autopostctl",
	Short:        "Operate the autopost publishing core",
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stdout")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(postsCmd())
	rootCmd.AddCommand(accountsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db, cfg.DatabaseDriver, quietLogger(os.Stdout)); err != nil {
				return err
			}
			fmt.Println("Migrations applied")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		operator string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := utils.GenerateToken(cfg.SecretKey, operator, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "operator", "operator name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one scheduler sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), verbose, func(ctx context.Context, a *ctlApp) error {
				report, err := a.sweep.Sweep(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Sweep", "Due", "Claimed", "Skipped", "Enqueued", "Posted", "Failed", "Errors"})
				tw.AppendRow(table.Row{report.ID, report.Due, report.Claimed, report.Skipped, report.Enqueued, report.Posted, report.Failed, report.Errors})
				tw.Render()
				return nil
			})
		},
	}
}

func postsCmd() *cobra.Command {
	posts := &cobra.Command{Use: "posts", Short: "Inspect and retry posts"}
	posts.AddCommand(postsListCmd())
	posts.AddCommand(postsRetryCmd())
	return posts
}

func postsListCmd() *cobra.Command {
	var (
		status, provider string
		limit            uint64
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), verbose, func(ctx context.Context, a *ctlApp) error {
				posts, err := a.posts.List(ctx, models.PostFilter{
					Status:   models.Status(status),
					Provider: models.Provider(provider),
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(posts)
				}
				printPosts(posts)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&provider, "provider", "", "provider filter")
	cmd.Flags().Uint64Var(&limit, "limit", 50, "maximum number of posts")
	return cmd
}

func printPosts(posts []*models.Post) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Provider", "Status", "Scheduled", "Provider ID", "Failure"})
	for _, p := range posts {
		scheduled := ""
		if p.ScheduledAt != nil {
			scheduled = p.ScheduledAt.Local().Format(time.DateTime)
		}
		tw.AppendRow(table.Row{p.ID, p.Provider, p.Status, scheduled, p.ProviderPostID, p.FailureReason})
	}
	tw.Render()
}

func postsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <post-id>",
		Short: "Re-queue a failed post and publish it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), verbose, func(ctx context.Context, a *ctlApp) error {
				post, err := a.posts.Retry(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(post)
				}
				printPosts([]*models.Post{post})
				return nil
			})
		},
	}
}

func accountsCmd() *cobra.Command {
	acc := &cobra.Command{Use: "accounts", Short: "Manage provider accounts"}
	acc.AddCommand(accountsListCmd())
	acc.AddCommand(accountsAddXCmd())
	acc.AddCommand(accountsAddInstagramCmd())
	acc.AddCommand(accountsRemoveCmd())
	acc.AddCommand(accountsDefaultCmd())
	return acc
}

func accountsListCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), verbose, func(ctx context.Context, a *ctlApp) error {
				accounts, err := a.accounts.List(ctx, models.Provider(provider))
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(accounts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Provider", "Name", "Default"})
				for _, acc := range accounts {
					def := ""
					if acc.IsDefault {
						def = "*"
					}
					tw.AppendRow(table.Row{acc.ID, acc.Provider, acc.Name, def})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider filter")
	return cmd
}

func addAccount(cmd *cobra.Command, req *transfer.AccountCreation) error {
	return withApp(cmd.Context(), verbose, func(ctx context.Context, a *ctlApp) error {
		acc, err := a.accounts.Add(ctx, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(acc)
		}
		fmt.Printf("Added %s account %q (%s)\n", acc.Provider, acc.Name, acc.ID)
		return nil
	})
}

func accountsAddXCmd() *cobra.Command {
	var (
		name       string
		makeDefault bool
		creds      models.XCredentials
	)
	cmd := &cobra.Command{
		Use:   "add-x",
		Short: "Add an X account with OAuth 1.0a user keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return addAccount(cmd, &transfer.AccountCreation{Provider: string(models.ProviderX), Name: name, Default: makeDefault, X: &creds})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "make this the default X account")
	cmd.Flags().StringVar(&creds.APIKey, "api-key", "", "consumer key")
	cmd.Flags().StringVar(&creds.APISecret, "api-secret", "", "consumer secret")
	cmd.Flags().StringVar(&creds.AccessToken, "access-token", "", "user access token")
	cmd.Flags().StringVar(&creds.AccessSecret, "access-secret", "", "user access token secret")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func accountsAddInstagramCmd() *cobra.Command {
	var (
		name        string
		makeDefault bool
		expiresIn   time.Duration
		creds       models.InstagramCredentials
	)
	cmd := &cobra.Command{
		Use:   "add-instagram",
		Short: "Add an Instagram business account with a long-lived Graph token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiresIn > 0 {
				creds.ExpiresAt = time.Now().Add(expiresIn).UTC()
			}
			return addAccount(cmd, &transfer.AccountCreation{Provider: string(models.ProviderInstagram), Name: name, Default: makeDefault, Instagram: &creds})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "make this the default Instagram account")
	cmd.Flags().StringVar(&creds.BusinessAccountID, "business-account-id", "", "Instagram business account id")
	cmd.Flags().StringVar(&creds.AccessToken, "access-token", "", "long-lived access token")
	cmd.Flags().StringVar(&creds.AppID, "app-id", "", "Meta app id, needed for token refresh")
	cmd.Flags().StringVar(&creds.AppSecret, "app-secret", "", "Meta app secret, needed for token refresh")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 60*24*time.Hour, "remaining token lifetime")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func accountsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Remove an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), verbose, func(ctx context.Context, a *ctlApp) error {
				if err := a.accounts.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("Removed", args[0])
				return nil
			})
		},
	}
}

func accountsDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default <account-id>",
		Short: "Make an account the default for its provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), verbose, func(ctx context.Context, a *ctlApp) error {
				if err := a.accounts.SetDefault(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("Default set to", args[0])
				return nil
			})
		},
	}
}
