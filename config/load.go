package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. GOTSENGINE_RISK_MAX_STOCKS.
const EnvPrefix = "GOTSENGINE"

// Load reads path (yaml, toml or json; empty means defaults only), applies
// environment overrides and validates the result. A .env file in the
// working directory is loaded first if present.
func Load(path string) (EngineConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return EngineConfig{}, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return EngineConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override keys
// that are absent from the file.
func setDefaults(v *viper.Viper, d EngineConfig) {
	v.SetDefault("indicators.sma_short", d.Indicators.SMAShort)
	v.SetDefault("indicators.sma_long", d.Indicators.SMALong)
	v.SetDefault("indicators.rsi_period", d.Indicators.RSIPeriod)
	v.SetDefault("indicators.macd_fast", d.Indicators.MACDFast)
	v.SetDefault("indicators.macd_slow", d.Indicators.MACDSlow)
	v.SetDefault("indicators.macd_signal", d.Indicators.MACDSignal)
	v.SetDefault("indicators.bollinger_period", d.Indicators.BollingerPeriod)
	v.SetDefault("indicators.bollinger_k", d.Indicators.BollingerK)

	v.SetDefault("strategies.ma_cross.enabled", d.Strategies.MACross.Enabled)
	v.SetDefault("strategies.ma_cross.full_gap", d.Strategies.MACross.FullGap)
	v.SetDefault("strategies.rsi.enabled", d.Strategies.RSI.Enabled)
	v.SetDefault("strategies.rsi.oversold", d.Strategies.RSI.Oversold)
	v.SetDefault("strategies.rsi.overbought", d.Strategies.RSI.Overbought)
	v.SetDefault("strategies.macd.enabled", d.Strategies.MACD.Enabled)
	v.SetDefault("strategies.macd.full_gap", d.Strategies.MACD.FullGap)
	v.SetDefault("strategies.bollinger.enabled", d.Strategies.Bollinger.Enabled)
	v.SetDefault("strategies.hma.enabled", d.Strategies.HMA.Enabled)
	v.SetDefault("strategies.hma.window", d.Strategies.HMA.Window)
	v.SetDefault("strategies.hma.strength", d.Strategies.HMA.Strength)

	v.SetDefault("fusion.min_agreement", d.Fusion.MinAgreement)

	v.SetDefault("risk.initial_capital", d.Risk.InitialCapital)
	v.SetDefault("risk.max_stocks", d.Risk.MaxStocks)
	v.SetDefault("risk.position_size_percent", d.Risk.PositionSizePercent)
	v.SetDefault("risk.stop_loss_percent", d.Risk.StopLossPercent)
	v.SetDefault("risk.take_profit_percent", d.Risk.TakeProfitPercent)
	v.SetDefault("risk.daily_loss_limit_percent", d.Risk.DailyLossLimitPercent)

	v.SetDefault("fees.mode", d.Fees.Mode)
	v.SetDefault("fees.buy_rate", d.Fees.BuyRate)
	v.SetDefault("fees.sell_rate", d.Fees.SellRate)
	v.SetDefault("fees.tax_rate", d.Fees.TaxRate)
	v.SetDefault("fees.rural_tax_rate", d.Fees.RuralTaxRate)

	v.SetDefault("session.open_spec", d.Session.OpenSpec)
	v.SetDefault("session.close_spec", d.Session.CloseSpec)
	v.SetDefault("session.timezone", d.Session.Timezone)

	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.order_timeout", d.Engine.OrderTimeout)
	v.SetDefault("engine.node_id", d.Engine.NodeID)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}
