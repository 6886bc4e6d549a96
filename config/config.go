package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // session time zones resolve without system zoneinfo

	"github.com/evdnx/gotsengine/indicator"
	"github.com/shopspring/decimal"
)

// ErrInvalidConfiguration wraps every validation failure.
var ErrInvalidConfiguration = errors.New("invalid configuration")

const (
	FeeModeSimulation = "simulation"
	FeeModeReal       = "real"
)

// EngineConfig holds every tunable of the decision engine. It is read once
// at start-up and treated as read-only afterwards.
type EngineConfig struct {
	Indicators IndicatorConfig `mapstructure:"indicators"`
	Strategies StrategyConfig  `mapstructure:"strategies"`
	Fusion     FusionConfig    `mapstructure:"fusion"`
	Risk       RiskConfig      `mapstructure:"risk"`
	Fees       FeeConfig       `mapstructure:"fees"`
	Session    SessionConfig   `mapstructure:"session"`
	Engine     RuntimeConfig   `mapstructure:"engine"`
	Log        LogConfig       `mapstructure:"log"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
}

type IndicatorConfig struct {
	SMAShort        int     `mapstructure:"sma_short"`        // default 5
	SMALong         int     `mapstructure:"sma_long"`         // default 20
	RSIPeriod       int     `mapstructure:"rsi_period"`       // default 14
	MACDFast        int     `mapstructure:"macd_fast"`        // default 12
	MACDSlow        int     `mapstructure:"macd_slow"`        // default 26
	MACDSignal      int     `mapstructure:"macd_signal"`      // default 9
	BollingerPeriod int     `mapstructure:"bollinger_period"` // default 20
	BollingerK      float64 `mapstructure:"bollinger_k"`      // default 2
}

// Params converts to the indicator package's parameter set.
func (c IndicatorConfig) Params() indicator.Params {
	return indicator.Params{
		SMAShort:        c.SMAShort,
		SMALong:         c.SMALong,
		RSIPeriod:       c.RSIPeriod,
		MACDFast:        c.MACDFast,
		MACDSlow:        c.MACDSlow,
		MACDSignal:      c.MACDSignal,
		BollingerPeriod: c.BollingerPeriod,
		BollingerK:      c.BollingerK,
	}
}

// StrategyConfig enables strategies and carries their thresholds.
type StrategyConfig struct {
	MACross   MACrossConfig   `mapstructure:"ma_cross"`
	RSI       RSIConfig       `mapstructure:"rsi"`
	MACD      MACDConfig      `mapstructure:"macd"`
	Bollinger BollingerConfig `mapstructure:"bollinger"`
	HMA       HMAConfig       `mapstructure:"hma"`
}

type MACrossConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	FullGap float64 `mapstructure:"full_gap"` // relative SMA gap that reads as strength 1
}

type RSIConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Oversold   float64 `mapstructure:"oversold"`   // default 30
	Overbought float64 `mapstructure:"overbought"` // default 70
}

type MACDConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	FullGap float64 `mapstructure:"full_gap"` // |hist|/price that reads as strength 1
}

type BollingerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type HMAConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Window   int     `mapstructure:"window"`   // bars replayed into the suite
	Strength float64 `mapstructure:"strength"` // strength reported on a crossover
}

// Active is the number of enabled strategies.
func (c StrategyConfig) Active() int {
	n := 0
	for _, on := range []bool{c.MACross.Enabled, c.RSI.Enabled, c.MACD.Enabled, c.Bollinger.Enabled, c.HMA.Enabled} {
		if on {
			n++
		}
	}
	return n
}

type FusionConfig struct {
	MinAgreement int `mapstructure:"min_agreement"`
}

// RiskConfig – percentages are expressed in percent (3 = 3 %).
type RiskConfig struct {
	InitialCapital        int64   `mapstructure:"initial_capital"`
	MaxStocks             int     `mapstructure:"max_stocks"`
	PositionSizePercent   float64 `mapstructure:"position_size_percent"`
	StopLossPercent       float64 `mapstructure:"stop_loss_percent"`
	TakeProfitPercent     float64 `mapstructure:"take_profit_percent"`
	DailyLossLimitPercent float64 `mapstructure:"daily_loss_limit_percent"`
}

// FeeConfig selects the schedule. Rate overrides are decimal strings
// (e.g. "0.00015"); empty keeps the built-in rate.
type FeeConfig struct {
	Mode         string `mapstructure:"mode"`
	BuyRate      string `mapstructure:"buy_rate"`
	SellRate     string `mapstructure:"sell_rate"`
	TaxRate      string `mapstructure:"tax_rate"`
	RuralTaxRate string `mapstructure:"rural_tax_rate"`
}

// Built-in fee rates per mode. The real schedule keeps separate buy and
// sell commission rates so either side can be overridden alone.
const (
	SimulationFeeRate = "0.0035"
	RealBuyFeeRate    = "0.00015"
	RealSellFeeRate   = "0.00015"
	RealTaxRate       = "0.0023"
	RealRuralTaxRate  = "0.0015"
)

// SellSideRate is the share of a sell amount lost to commission and taxes,
// with unset rates taken from the mode's built-in schedule.
func (f FeeConfig) SellSideRate() (decimal.Decimal, error) {
	sell, tax, rural := RealSellFeeRate, RealTaxRate, RealRuralTaxRate
	if f.Mode == FeeModeSimulation {
		sell, tax, rural = SimulationFeeRate, "0", "0"
	}
	pick := func(override, builtin string) (decimal.Decimal, error) {
		if override == "" {
			override = builtin
		}
		return decimal.NewFromString(override)
	}
	s, err := pick(f.SellRate, sell)
	if err != nil {
		return decimal.Zero, err
	}
	t, err := pick(f.TaxRate, tax)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := pick(f.RuralTaxRate, rural)
	if err != nil {
		return decimal.Zero, err
	}
	return s.Add(t).Add(t.Mul(r)), nil
}

// SessionConfig holds cron specs for the market boundaries.
type SessionConfig struct {
	OpenSpec  string `mapstructure:"open_spec"`  // e.g. "0 9 * * 1-5"
	CloseSpec string `mapstructure:"close_spec"` // e.g. "30 15 * * 1-5"
	Timezone  string `mapstructure:"timezone"`
}

type RuntimeConfig struct {
	Workers      int           `mapstructure:"workers"`
	OrderTimeout time.Duration `mapstructure:"order_timeout"` // 0 = never cancel pending orders
	NodeID       int64         `mapstructure:"node_id"`       // snowflake node for order ids
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the /metrics endpoint
}

// Default returns a configuration that passes Validate.
func Default() EngineConfig {
	return EngineConfig{
		Indicators: IndicatorConfig{
			SMAShort:        5,
			SMALong:         20,
			RSIPeriod:       14,
			MACDFast:        12,
			MACDSlow:        26,
			MACDSignal:      9,
			BollingerPeriod: 20,
			BollingerK:      2,
		},
		Strategies: StrategyConfig{
			MACross:   MACrossConfig{Enabled: true, FullGap: 0.02},
			RSI:       RSIConfig{Enabled: true, Oversold: 30, Overbought: 70},
			MACD:      MACDConfig{Enabled: true, FullGap: 0.01},
			Bollinger: BollingerConfig{Enabled: false},
			HMA:       HMAConfig{Enabled: false, Window: 60, Strength: 0.5},
		},
		Fusion: FusionConfig{MinAgreement: 2},
		Risk: RiskConfig{
			InitialCapital:        10_000_000,
			MaxStocks:             5,
			PositionSizePercent:   10,
			StopLossPercent:       3,
			TakeProfitPercent:     5,
			DailyLossLimitPercent: 2,
		},
		Fees: FeeConfig{Mode: FeeModeSimulation},
		Session: SessionConfig{
			OpenSpec:  "0 9 * * 1-5",
			CloseSpec: "30 15 * * 1-5",
			Timezone:  "Asia/Seoul",
		},
		Engine: RuntimeConfig{Workers: 4, NodeID: 1},
		Log:    LogConfig{Level: "info", Encoding: "json"},
	}
}

// RetentionWindow is the number of prices kept per instrument. It always
// covers the longest indicator history in use.
func (c *EngineConfig) RetentionWindow() int {
	need := c.Indicators.Params().Required()
	if c.Strategies.HMA.Enabled && c.Strategies.HMA.Window > need {
		need = c.Strategies.HMA.Window
	}
	if need*2 < 64 {
		return 64
	}
	return need * 2
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error so the caller can surface a
// clear configuration problem before any trading starts.
func (c *EngineConfig) Validate() error {
	ind := c.Indicators
	for name, v := range map[string]int{
		"sma_short": ind.SMAShort, "sma_long": ind.SMALong, "rsi_period": ind.RSIPeriod,
		"macd_fast": ind.MACDFast, "macd_slow": ind.MACDSlow, "macd_signal": ind.MACDSignal,
		"bollinger_period": ind.BollingerPeriod,
	} {
		if v <= 0 {
			return invalid("%s (%d) must be positive", name, v)
		}
	}
	if ind.SMAShort >= ind.SMALong {
		return invalid("sma_short (%d) must be below sma_long (%d)", ind.SMAShort, ind.SMALong)
	}
	if ind.MACDFast >= ind.MACDSlow {
		return invalid("macd_fast (%d) must be below macd_slow (%d)", ind.MACDFast, ind.MACDSlow)
	}
	if ind.BollingerK <= 0 {
		return invalid("bollinger_k (%f) must be positive", ind.BollingerK)
	}

	st := c.Strategies
	if st.RSI.Oversold < 0 || st.RSI.Overbought > 100 || st.RSI.Oversold >= st.RSI.Overbought {
		return invalid("rsi thresholds (%f/%f) must satisfy 0 <= oversold < overbought <= 100",
			st.RSI.Oversold, st.RSI.Overbought)
	}
	if st.MACross.Enabled && st.MACross.FullGap <= 0 {
		return invalid("ma_cross.full_gap must be positive")
	}
	if st.MACD.Enabled && st.MACD.FullGap <= 0 {
		return invalid("macd.full_gap must be positive")
	}
	if st.HMA.Enabled && (st.HMA.Window < 20 || st.HMA.Strength <= 0 || st.HMA.Strength > 1) {
		return invalid("hma window (%d) must be >= 20 and strength (%f) in (0,1]", st.HMA.Window, st.HMA.Strength)
	}
	active := st.Active()
	if active == 0 {
		return invalid("at least one strategy must be enabled")
	}
	if c.Fusion.MinAgreement < 1 || c.Fusion.MinAgreement > active {
		return invalid("min_agreement (%d) must be within [1, %d]", c.Fusion.MinAgreement, active)
	}

	r := c.Risk
	if r.InitialCapital <= 0 {
		return invalid("initial_capital (%d) must be positive", r.InitialCapital)
	}
	if r.MaxStocks < 1 {
		return invalid("max_stocks (%d) must be at least 1", r.MaxStocks)
	}
	if r.PositionSizePercent <= 0 || r.PositionSizePercent > 100 {
		return invalid("position_size_percent (%f) must be >0 and <=100", r.PositionSizePercent)
	}
	if r.StopLossPercent <= 0 || r.StopLossPercent >= 100 {
		return invalid("stop_loss_percent (%f) must be >0 and <100", r.StopLossPercent)
	}
	if r.TakeProfitPercent <= 0 {
		return invalid("take_profit_percent (%f) must be positive", r.TakeProfitPercent)
	}
	if r.DailyLossLimitPercent <= 0 || r.DailyLossLimitPercent > 100 {
		return invalid("daily_loss_limit_percent (%f) must be >0 and <=100", r.DailyLossLimitPercent)
	}

	if c.Fees.Mode != FeeModeSimulation && c.Fees.Mode != FeeModeReal {
		return invalid("fees.mode %q must be %q or %q", c.Fees.Mode, FeeModeSimulation, FeeModeReal)
	}
	for name, v := range map[string]string{
		"buy_rate": c.Fees.BuyRate, "sell_rate": c.Fees.SellRate,
		"tax_rate": c.Fees.TaxRate, "rural_tax_rate": c.Fees.RuralTaxRate,
	} {
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return invalid("fees.%s %q must be a decimal in [0,1)", name, v)
		}
	}
	if rate, err := c.Fees.SellSideRate(); err != nil || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return invalid("fees: sell commission plus taxes (%s) must be below 1", rate)
	}
	if c.Session.Timezone != "" {
		if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
			return invalid("session.timezone %q: %v", c.Session.Timezone, err)
		}
	}
	if c.Engine.Workers < 1 {
		return invalid("engine.workers (%d) must be at least 1", c.Engine.Workers)
	}
	if c.Engine.OrderTimeout < 0 {
		return invalid("engine.order_timeout must not be negative")
	}
	if c.Engine.NodeID < 0 || c.Engine.NodeID > 1023 {
		return invalid("engine.node_id (%d) must be within [0, 1023]", c.Engine.NodeID)
	}
	return nil
}
