package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	apperrors "propdesk/internal/errors"
	"propdesk/internal/models"
)

func newAccountCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Evaluation account management",
		Long:  "Create, launch, and inspect evaluation accounts.",
	}

	cmd.AddCommand(newAccountCreateCmd(app))
	cmd.AddCommand(newAccountLaunchCmd(app))
	cmd.AddCommand(newAccountListCmd(app))
	cmd.AddCommand(newAccountShowCmd(app))
	return cmd
}

func newAccountCreateCmd(app *App) *cobra.Command {
	var (
		userID    string
		challenge string
		size      float64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new evaluation account",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}
			if size <= 0 {
				return apperrors.NewValidationError("size", size, "must be positive")
			}

			ct := models.ChallengeType(challenge)
			if ct != models.ChallengeOneStep && ct != models.ChallengeTwoStep {
				return apperrors.NewValidationError("challenge", challenge, "must be one_step or two_step")
			}

			acct := &models.Account{
				ID:                uuid.NewString(),
				UserID:            userID,
				Challenge:         ct,
				Phase:             1,
				Size:              size,
				Balance:           size,
				Equity:            size,
				DailyStartBalance: size,
				Status:            models.AccountPending,
				CreatedAt:         time.Now(),
			}
			if err := app.Ledger.CreateAccount(context.Background(), acct); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(acct)
			}
			output.Success("Account created: %s", acct.ID)
			output.Dim("challenge=%s size=%.0f status=%s", acct.Challenge, acct.Size, acct.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&challenge, "challenge", "one_step", "challenge type (one_step|two_step)")
	cmd.Flags().Float64Var(&size, "size", 100000, "account size")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newAccountLaunchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "launch <account-id>",
		Short: "Activate a pending account and start its trading session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}

			start := time.Now()
			expires := start.Add(app.Config.Engine.SessionDuration)
			if err := app.Ledger.ActivateAccount(context.Background(), args[0], start, expires); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"account_id":      args[0],
					"session_start":   start,
					"session_expires": expires,
				})
			}
			output.Success("Account %s activated", args[0])
			output.Dim("session expires %s", expires.Format(time.RFC3339))
			return nil
		},
	}
}

func newAccountListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all evaluation accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}

			accounts, err := app.Ledger.ListAccounts(context.Background())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(accounts)
			}

			if len(accounts) == 0 {
				output.Dim("No accounts")
				return nil
			}
			output.Printf("%-38s %-10s %-9s %12s %12s %12s %s\n",
				"ID", "CHALLENGE", "PHASE", "SIZE", "BALANCE", "EQUITY", "STATUS")
			for _, a := range accounts {
				output.Printf("%-38s %-10s %-9d %12.2f %12.2f %12.2f %s\n",
					a.ID, a.Challenge, a.Phase, a.Size, a.Balance, a.Equity, a.Status)
			}
			return nil
		},
	}
}

func newAccountShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show one account with its trades and violations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}
			ctx := context.Background()

			acct, err := app.Ledger.GetAccount(ctx, args[0])
			if err != nil {
				return err
			}
			trades, err := app.Ledger.ListTrades(ctx, acct.ID)
			if err != nil {
				return err
			}
			violations, err := app.Ledger.ListViolations(ctx, acct.ID)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"account":    acct,
					"trades":     trades,
					"violations": violations,
				})
			}

			output.Printf("Account %s (%s)\n", acct.ID, acct.Status)
			output.Printf("  challenge: %s phase %d, size %.2f\n", acct.Challenge, acct.Phase, acct.Size)
			output.Printf("  balance: %.2f  equity: %.2f  day start: %.2f\n",
				acct.Balance, acct.Equity, acct.DailyStartBalance)
			if !acct.SessionExpires.IsZero() {
				output.Printf("  session expires: %s\n", acct.SessionExpires.Format(time.RFC3339))
			}

			output.Println()
			if len(trades) == 0 {
				output.Dim("No trades")
			} else {
				output.Printf("%-38s %-10s %-5s %5s %10s %10s %10s %s\n",
					"TRADE", "SYMBOL", "SIDE", "LOTS", "ENTRY", "EXIT", "PNL", "STATUS")
				for _, t := range trades {
					output.Printf("%-38s %-10s %-5s %5d %10.2f %10.2f %10s %s\n",
						t.ID, t.Symbol, t.Side, t.Lots, t.EntryPrice, t.ExitPrice, output.PnL(t.PnL), t.Status)
				}
			}

			if len(violations) > 0 {
				output.Println()
				output.Warning("Violations:")
				for _, v := range violations {
					output.Printf("  [%s] %s: %s\n", v.CreatedAt.Format(time.RFC3339), v.Type, v.Details)
				}
			}
			return nil
		},
	}
}

func newRolloverCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Reset daily drawdown baselines for all active accounts",
		Long: `Snapshots each active account's current balance as the new daily drawdown
baseline. Run once per trading day, typically from cron at market open.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}
			ctx := context.Background()

			accounts, err := app.Ledger.ListActiveAccounts(ctx)
			if err != nil {
				return err
			}
			for i := range accounts {
				if err := app.Ledger.ResetDailyStart(ctx, accounts[i].ID); err != nil {
					output.Error("rollover failed for %s: %v", accounts[i].ID, err)
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{"accounts": len(accounts)})
			}
			output.Success("Daily baseline reset for %d account(s)", len(accounts))
			return nil
		},
	}
}
