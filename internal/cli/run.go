package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"propdesk/internal/bots"
	"propdesk/internal/engine"
	apperrors "propdesk/internal/errors"
	"propdesk/internal/metrics"
	"propdesk/internal/models"
	"propdesk/internal/oracle"
	"propdesk/internal/stream"
	"propdesk/pkg/utils"
)

// buildOracle constructs the configured price feed.
func (app *App) buildOracle() oracle.Oracle {
	if app.Config.IsSynthetic() {
		return oracle.NewSyntheticOracle(app.Config.Oracle, app.Config.Instruments)
	}
	return oracle.NewKiteOracle(oracle.KiteOracleConfig{
		APIKey:      app.Config.Credentials.Kite.APIKey,
		AccessToken: app.Config.Credentials.Kite.AccessToken,
	})
}

// startOracle connects the price feed, retrying transient failures. The
// live feed in particular can hit connection timeouts on flaky networks.
func (app *App) startOracle(ctx context.Context, o oracle.Oracle) error {
	return utils.Retry(ctx, utils.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}, func() error {
		return o.Start(ctx)
	})
}

// buildEngine constructs an execution engine over the app's ledger and the
// given oracle.
func (app *App) buildEngine(o oracle.Oracle) *engine.ExecutionEngine {
	return engine.NewExecutionEngine(app.Ledger, o, engine.Config{
		Leverage:      app.Config.Engine.Leverage,
		SlippageBound: app.Config.Engine.SlippageBound,
		Instruments:   app.Config.InstrumentTable(),
	}, app.Logger)
}

// riskConfig maps the [challenges] section onto the risk manager's
// threshold overrides.
func (app *App) riskConfig() engine.RiskConfig {
	return engine.RiskConfig{
		MaxDrawdownPct:         app.Config.Challenges.MaxDrawdownPct,
		DailyDrawdownPct:       app.Config.Challenges.DailyDrawdownPct,
		OneStepTargetPct:       app.Config.Challenges.OneStepTargetPct,
		TwoStepPhase1TargetPct: app.Config.Challenges.TwoStepPhase1TargetPct,
		TwoStepPhase2TargetPct: app.Config.Challenges.TwoStepPhase2TargetPct,
		Instruments:            app.Config.InstrumentTable(),
	}
}

// waitForQuotes blocks until the oracle has published a quote for every
// configured symbol, or the timeout elapses.
func waitForQuotes(ctx context.Context, o oracle.Oracle, symbols []models.Symbol, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ready := true
		for _, s := range symbols {
			if o.GetQuote(s) == nil {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no quotes after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (app *App) configuredSymbols() []models.Symbol {
	symbols := make([]models.Symbol, 0, len(app.Config.Instruments))
	for _, inst := range app.Config.Instruments {
		symbols = append(symbols, models.Symbol(inst.Symbol))
	}
	return symbols
}

func newRunCmd(app *App) *cobra.Command {
	var botSpecs []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the evaluation engine",
		Long: `Starts the price oracle, order matching, stop monitor, equity monitor, and
risk manager, and serves Prometheus metrics. Runs until interrupted.

Bots can be launched at startup with repeated --bot flags, each of the form
account-id:symbol:strategy-id (strategies: rsi_momentum, ema_cross).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Ledger == nil {
				return fmt.Errorf("ledger unavailable")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			o := app.buildOracle()
			if err := app.startOracle(ctx, o); err != nil {
				return apperrors.Wrap(err, "starting oracle")
			}
			defer o.Stop()

			hub := stream.NewHub()
			hub.Start(ctx)
			defer hub.Stop()
			o.OnTick(func(tick models.Tick) {
				metrics.RecordTick(string(tick.Symbol))
				hub.Publish(tick)
			})

			eng := app.buildEngine(o)
			monitor := engine.NewEquityMonitor(app.Ledger, o, app.Config.InstrumentTable(), app.Logger)
			risk := engine.NewRiskManager(app.Ledger, o, eng, app.riskConfig(), app.Logger)
			runner := bots.NewRunner(eng, hub, app.Logger)
			defer runner.StopAll()

			go eng.RunMatchingLoop(ctx, app.Config.Engine.MatchInterval)
			go eng.RunStopLoop(ctx, app.Config.Engine.StopInterval)
			go monitor.RunLoop(ctx, app.Config.Engine.EquityInterval)
			go risk.RunLoop(ctx, app.Config.Engine.RiskInterval)

			if app.Config.Metrics.Enabled {
				go serveMetrics(ctx, app, app.Config.Metrics.Addr)
			}

			if len(botSpecs) > 0 {
				if err := waitForQuotes(ctx, o, app.configuredSymbols(), 30*time.Second); err != nil {
					app.Logger.Warn().Err(err).Msg("Starting bots without full quote board")
				}
				for _, spec := range botSpecs {
					if err := startBotFromSpec(ctx, runner, spec); err != nil {
						app.Logger.Error().Err(err).Str("spec", spec).Msg("Bot start failed")
					}
				}
			}

			app.Logger.Info().
				Str("oracle", app.Config.Oracle.Mode).
				Str("db_path", app.Config.Engine.DBPath).
				Msg("Evaluation engine running")

			<-ctx.Done()
			app.Logger.Info().Msg("Shutting down")
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&botSpecs, "bot", nil, "bot to launch: account-id:symbol:strategy-id (repeatable)")
	return cmd
}

func startBotFromSpec(ctx context.Context, runner *bots.Runner, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return fmt.Errorf("bot spec must be account-id:symbol:strategy-id, got %q", spec)
	}
	_, err := runner.StartBot(ctx, bots.BotConfig{
		AccountID:  parts[0],
		Symbol:     models.Symbol(strings.ToUpper(parts[1])),
		StrategyID: parts[2],
	})
	return err
}

func serveMetrics(ctx context.Context, app *App, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	app.Logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.Logger.Error().Err(err).Msg("Metrics server failed")
	}
}
