package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"propdesk/internal/oracle"
)

func newTradeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Trade inspection and manual close",
	}

	cmd.AddCommand(newTradeListCmd(app))
	cmd.AddCommand(newTradeCloseCmd(app))
	return cmd
}

func newTradeListCmd(app *App) *cobra.Command {
	var accountID string
	var openOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}
			ctx := context.Background()

			trades, err := app.Ledger.ListTrades(ctx, accountID)
			if openOnly {
				trades, err = app.Ledger.ListOpenTrades(ctx, accountID)
			}
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades")
				return nil
			}

			output.Printf("%-38s %-10s %-5s %5s %10s %10s %10s %-8s %s\n",
				"TRADE", "SYMBOL", "SIDE", "LOTS", "ENTRY", "EXIT", "PNL", "STATUS", "REASON")
			for _, t := range trades {
				output.Printf("%-38s %-10s %-5s %5d %10.2f %10.2f %10s %-8s %s\n",
					t.ID, t.Symbol, t.Side, t.Lots, t.EntryPrice, t.ExitPrice,
					output.PnL(t.PnL), t.Status, t.CloseReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().BoolVar(&openOnly, "open", false, "only open trades")
	cmd.MarkFlagRequired("account")
	return cmd
}

func newTradeCloseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close <trade-id>",
		Short: "Close an open trade at the current market price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			return app.withQuotes(func(ctx context.Context, o oracle.Oracle) error {
				if err := app.buildEngine(o).CloseTrade(ctx, args[0]); err != nil {
					return err
				}

				trade, err := app.Ledger.GetTrade(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(trade)
				}
				output.Success("Trade %s closed @ %.2f", trade.ID, trade.ExitPrice)
				output.Printf("  pnl: %s  closed at: %s\n", output.PnL(trade.PnL), trade.ClosedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}
