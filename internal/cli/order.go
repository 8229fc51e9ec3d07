package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "propdesk/internal/errors"
	"propdesk/internal/models"
	"propdesk/internal/oracle"
)

// withQuotes starts the configured oracle, waits for a full quote board,
// runs fn, and stops the feed. One-shot commands like market orders need
// live prices even outside the long-running engine process; the shared
// SQLite ledger makes the resulting writes visible to it immediately.
func (app *App) withQuotes(fn func(ctx context.Context, o oracle.Oracle) error) error {
	if app.Ledger == nil {
		return fmt.Errorf("ledger unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := app.buildOracle()
	if err := app.startOracle(ctx, o); err != nil {
		return fmt.Errorf("starting oracle: %w", err)
	}
	defer o.Stop()

	if err := waitForQuotes(ctx, o, app.configuredSymbols(), 30*time.Second); err != nil {
		return apperrors.ErrMarketClosed
	}
	return fn(ctx, o)
}

func parseSide(s string) (models.OrderSide, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return models.OrderSideBuy, nil
	case "SELL":
		return models.OrderSideSell, nil
	default:
		return "", apperrors.NewValidationError("side", s, "must be BUY or SELL")
	}
}

func newOrderCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Order placement and management",
	}

	cmd.AddCommand(newOrderMarketCmd(app))
	cmd.AddCommand(newOrderLimitCmd(app))
	cmd.AddCommand(newOrderCancelCmd(app))
	cmd.AddCommand(newOrderListCmd(app))
	return cmd
}

func orderRequestFlags(cmd *cobra.Command, req *orderFlags) {
	cmd.Flags().StringVar(&req.accountID, "account", "", "account id")
	cmd.Flags().StringVar(&req.symbol, "symbol", "NIFTY", "symbol (NIFTY|BANKNIFTY)")
	cmd.Flags().StringVar(&req.side, "side", "", "BUY or SELL")
	cmd.Flags().IntVar(&req.lots, "lots", 1, "number of lots")
	cmd.Flags().Float64Var(&req.stopLoss, "sl", 0, "stop loss price (0 = none)")
	cmd.Flags().Float64Var(&req.takeProfit, "tp", 0, "take profit price (0 = none)")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("side")
}

type orderFlags struct {
	accountID  string
	symbol     string
	side       string
	lots       int
	stopLoss   float64
	takeProfit float64
	limitPrice float64
}

func (f *orderFlags) request() (models.OrderRequest, error) {
	side, err := parseSide(f.side)
	if err != nil {
		return models.OrderRequest{}, err
	}
	return models.OrderRequest{
		AccountID:  f.accountID,
		Symbol:     models.Symbol(strings.ToUpper(f.symbol)),
		Side:       side,
		Lots:       f.lots,
		LimitPrice: f.limitPrice,
		StopLoss:   f.stopLoss,
		TakeProfit: f.takeProfit,
	}, nil
}

func newOrderMarketCmd(app *App) *cobra.Command {
	var flags orderFlags

	cmd := &cobra.Command{
		Use:   "market",
		Short: "Place a market order",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			req, err := flags.request()
			if err != nil {
				return err
			}

			return app.withQuotes(func(ctx context.Context, o oracle.Oracle) error {
				fill, err := app.buildEngine(o).PlaceMarketOrder(ctx, req)
				if err != nil {
					output.Error("Order rejected: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(fill)
				}
				output.Success("Filled: %s %d lot(s) %s @ %.2f", fill.Side, fill.Lots, fill.Symbol, fill.FillPrice)
				output.Dim("trade=%s slippage=%+.2f", fill.TradeID, fill.Slippage)
				return nil
			})
		},
	}

	orderRequestFlags(cmd, &flags)
	return cmd
}

func newOrderLimitCmd(app *App) *cobra.Command {
	var flags orderFlags

	cmd := &cobra.Command{
		Use:   "limit",
		Short: "Place a limit order",
		Long: `Queues a resting limit order. The matching loop in the running engine
fills it once the market reaches the limit price.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			req, err := flags.request()
			if err != nil {
				return err
			}

			return app.withQuotes(func(ctx context.Context, o oracle.Oracle) error {
				order, err := app.buildEngine(o).PlaceLimitOrder(ctx, req)
				if err != nil {
					output.Error("Order rejected: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(order)
				}
				output.Success("Limit order queued: %s %d lot(s) %s @ %.2f", order.Side, order.Lots, order.Symbol, order.LimitPrice)
				output.Dim("order=%s", order.ID)
				return nil
			})
		},
	}

	orderRequestFlags(cmd, &flags)
	cmd.Flags().Float64Var(&flags.limitPrice, "price", 0, "limit price")
	cmd.MarkFlagRequired("price")
	return cmd
}

func newOrderCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending limit order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}

			cancelled, err := app.Ledger.CancelOrder(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !cancelled {
				return apperrors.ErrOrderNotPending
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"cancelled": true})
			}
			output.Success("Order %s cancelled", args[0])
			return nil
		},
	}
}

func newOrderListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending limit orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}

			orders, err := app.Ledger.ListPendingOrders(context.Background())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(orders)
			}
			if len(orders) == 0 {
				output.Dim("No pending orders")
				return nil
			}
			output.Printf("%-38s %-38s %-10s %-5s %5s %10s\n",
				"ORDER", "ACCOUNT", "SYMBOL", "SIDE", "LOTS", "PRICE")
			for _, o := range orders {
				output.Printf("%-38s %-38s %-10s %-5s %5d %10.2f\n",
					o.ID, o.AccountID, o.Symbol, o.Side, o.Lots, o.LimitPrice)
			}
			return nil
		},
	}
}
