// Package config centralizes viper defaults and typed accessors for the
// reconciliation engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pennywhistle/tally-ho/internal/common"
	"github.com/spf13/viper"
)

// SetDefaults registers every configuration key the engine reads. Call once
// before any accessor.
func SetDefaults() {
	viper.SetDefault("database.path", defaultDatabasePath())
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("dispatcher.max_concurrent", 5)
	viper.SetDefault("dispatcher.max_attempts", 3)
	viper.SetDefault("dispatcher.stuck_threshold", 15*time.Minute)
	viper.SetDefault("dispatcher.sweep_interval", 5*time.Minute)
	viper.SetDefault("dispatcher.backoff_initial", time.Second)
	viper.SetDefault("dispatcher.backoff_ceiling", 8*time.Second)

	viper.SetDefault("matcher.date_window_days", 3)
	viper.SetDefault("matcher.assist_window_days", 7)
	viper.SetDefault("matcher.amount_tolerance", 0.01)

	viper.SetDefault("decision.auto_approve", 95)
	viper.SetDefault("decision.pre_approved", 90)
	viper.SetDefault("decision.high_value", 500.0)

	viper.SetDefault("resolver.home_jurisdiction", "NC")

	// The source rules never agreed on the orphan grace period (5 vs 45
	// days), so it is configuration, not a constant.
	viper.SetDefault("orphans.age_days", 5)
	viper.SetDefault("orphans.max_per_run", 20)
	viper.SetDefault("orphans.min_confidence", 70)
	viper.SetDefault("orphans.interval", 24*time.Hour)

	viper.SetDefault("server.addr", ":8080")

	viper.SetDefault("advisor.provider", "none")
	viper.SetDefault("advisor.model", "gpt-4o-mini")

	viper.SetDefault("poster.base_url", "")
	viper.SetDefault("poster.payer_account", "corporate-card")
	viper.SetDefault("events.base_url", "")
}

// DatabasePath returns the SQLite database location.
func DatabasePath() string {
	return viper.GetString("database.path")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tally.db"
	}
	return filepath.Join(home, ".local", "share", "tally", "tally.db")
}

// Validate performs cross-field sanity checks on the loaded configuration.
func Validate() error {
	if viper.GetInt("dispatcher.max_concurrent") < 1 {
		return fmt.Errorf("%w: dispatcher.max_concurrent must be at least 1", common.ErrInvalidConfig)
	}
	if viper.GetInt("dispatcher.max_attempts") < 1 {
		return fmt.Errorf("%w: dispatcher.max_attempts must be at least 1", common.ErrInvalidConfig)
	}
	if viper.GetInt("matcher.assist_window_days") < viper.GetInt("matcher.date_window_days") {
		return fmt.Errorf("%w: matcher.assist_window_days must not be narrower than matcher.date_window_days", common.ErrInvalidConfig)
	}
	if viper.GetInt("orphans.age_days") < 1 {
		return fmt.Errorf("%w: orphans.age_days must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}
