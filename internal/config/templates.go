package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Propdesk Evaluation Engine Configuration

[engine]
# Path to the SQLite ledger database (defaults to <config dir>/propdesk.db)
# db_path = "/path/to/propdesk.db"
# Notional leverage used for margin checks
leverage = 10.0
# Slippage bound b: execution price = reference * (1 + U(-b, b))
slippage_bound = 0.0005
# Loop intervals
match_interval = "1s"
stop_interval = "1s"
equity_interval = "2s"
risk_interval = "1s"
# Trading session length granted on account launch
session_duration = "720h"

[oracle]
# Price feed mode: "synthetic" or "kite"
mode = "synthetic"
# Synthetic tick emission period
tick_interval = "1s"

[challenges]
# Loss floors measured against account size / daily start balance
max_drawdown_pct = 0.04
daily_drawdown_pct = 0.02
# Profit targets per challenge type and phase
one_step_target_pct = 0.10
two_step_phase1_target_pct = 0.08
two_step_phase2_target_pct = 0.05

[[instruments]]
symbol = "NIFTY"
multiplier = 50
seed_price = 21500.0
volatility = 3.0
spread_min = 0.5
spread_max = 2.5
max_spread = 10.0

[[instruments]]
symbol = "BANKNIFTY"
multiplier = 15
seed_price = 46500.0
volatility = 9.0
spread_min = 1.0
spread_max = 6.0
max_spread = 25.0

[metrics]
enabled = true
addr = ":9185"
`

const credentialsTemplate = `# Propdesk Credentials
# Only required for the live (kite) price feed.

[kite]
api_key = ""
access_token = ""
`

// createTemplateConfig writes a template config.toml and returns an error
// asking the user to review it.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	credPath := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		if err := os.WriteFile(credPath, []byte(credentialsTemplate), 0600); err != nil {
			return fmt.Errorf("writing credentials template: %w", err)
		}
	}

	return fmt.Errorf("config not found, template created at %s", path)
}
