package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mediatools/internal/adapter/repo"
	"mediatools/internal/db"
	"mediatools/internal/infra"
	"mediatools/internal/middleware"
	"mediatools/internal/plans"
	"mediatools/internal/tools/sqllint"
)

var databaseURL string

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mediactl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mediactl",
		Short:        "Operator CLI for the mediatools API",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	cmd.AddCommand(
		newPlanCmd(),
		newUsageCmd(),
		newTokenCmd(),
		newMigrateCmd(),
		newSQLLintCmd(),
	)
	return cmd
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and assign plans",
	}

	var userID, plan string
	set := &cobra.Command{
		Use:   "set",
		Short: "Assign a plan to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return errors.New("--user is required")
			}
			tier, err := plans.Parse(plan)
			if err != nil {
				return err
			}
			runner, closeDB, err := openRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := repo.NewProfileRepository(runner).SetPlan(ctx, userID, string(tier)); err != nil {
				return fmt.Errorf("set plan: %w", err)
			}
			p := plans.Get(tier)
			fmt.Fprintf(cmd.OutOrStdout(), "user %s now on plan %s (daily limit %s, max %dp)\n", userID, p.ID, limitLabel(p.DailyLimit), p.MaxResolution)
			return nil
		},
	}
	set.Flags().StringVar(&userID, "user", "", "user ID")
	set.Flags().StringVar(&plan, "plan", string(plans.Pro), "plan to assign (free, pro, exclusive or an alias)")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDAILY\tMAX RES\tCONCURRENT\tPRICE\tACCESS")
			for _, p := range plans.Catalog() {
				fmt.Fprintf(tw, "%s\t%s\t%dp\t%d\t%d.%02d\t%s\n", p.ID, limitLabel(p.DailyLimit), p.MaxResolution, p.MaxConcurrent, p.PriceCents/100, p.PriceCents%100, p.Access)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}

func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect durable usage counters",
	}
	var userID string
	var days int
	show := &cobra.Command{
		Use:   "show",
		Short: "Show recent daily usage for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}
			runner, closeDB, err := openRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			history, err := repo.NewUsageRepository(runner).History(ctx, userID, days)
			if err != nil {
				return err
			}
			plan, err := repo.NewProfileRepository(runner).PlanForUser(ctx, userID)
			if err != nil {
				plan = string(plans.Free)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user %s plan %s\n", userID, plans.Normalize(plan, plans.Free))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DAY\tJOBS")
			for _, d := range history {
				fmt.Fprintf(tw, "%s\t%d\n", d.Day.Format("2006-01-02"), d.Downloads)
			}
			return tw.Flush()
		},
	}
	show.Flags().StringVar(&userID, "user", "", "user ID")
	show.Flags().IntVar(&days, "days", 7, "number of days to show")
	cmd.AddCommand(show)
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint API tokens",
	}
	var userID, plan, secret, issuer string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}
			if secret == "" {
				return errors.New("JWT_SECRET or --secret is required")
			}
			token, err := middleware.IssueToken(secret, issuer, userID, string(plans.Normalize(plan, plans.Free)), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "subject user ID")
	issue.Flags().StringVar(&plan, "plan", string(plans.Free), "plan claim")
	issue.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret")
	issue.Flags().StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "mediatools"), "token issuer")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.AddCommand(issue)
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the profiles and usage tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := db.Migrate(ctx, databaseURL); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(db.Statements))
			return nil
		},
	}
}

func newSQLLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sqllint [path...]",
		Short: "Check inline SQL for --sql <uuid> audit markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, err := sqllint.Lint(args)
			if err != nil {
				return err
			}
			if len(vs) == 0 {
				return nil
			}
			errOut := cmd.ErrOrStderr()
			fmt.Fprintln(errOut, "missing SQL audit markers")
			for _, v := range vs {
				fmt.Fprintf(errOut, "  %s\n", v)
			}
			return fmt.Errorf("%d violations", len(vs))
		},
	}
}

func openRunner(ctx context.Context) (*infra.SQLRunner, func(), error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil, errors.New("DATABASE_URL or --database-url is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "mediactl").Logger()
	return infra.NewSQLRunner(pool, logger), pool.Close, nil
}

func limitLabel(n int) string {
	if n < 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
