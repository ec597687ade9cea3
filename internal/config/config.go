package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"momentum/internal/engine"
	"momentum/internal/risk"
	"momentum/internal/signal"
	"momentum/types"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

var ErrUnsupportedFormat = errors.New("unsupported config format")

var defaultUniverse = []string{"SPY", "QQQ", "IWM", "EFA", "EEM", "GLD", "USO"}

type Config struct {
	Log struct {
		Level string `toml:"level" yaml:"level"`
	} `toml:"log" yaml:"log"`

	Strategy struct {
		Universe        []string `toml:"universe" yaml:"universe"`
		Reference       string   `toml:"reference" yaml:"reference"`
		LookbackPeriod  int      `toml:"lookback_period" yaml:"lookback_period"`
		RebalancePeriod int      `toml:"rebalance_period" yaml:"rebalance_period"`
		HoldCount       int      `toml:"hold_count" yaml:"hold_count"`
		Sizing          string   `toml:"sizing" yaml:"sizing"`
		ConfirmEntries  bool     `toml:"confirm_entries" yaml:"confirm_entries"`
	} `toml:"strategy" yaml:"strategy"`

	Signal struct {
		LookbackPeriod    int     `toml:"lookback_period" yaml:"lookback_period"`
		FastPeriod        int     `toml:"fast_period" yaml:"fast_period"`
		SlowPeriod        int     `toml:"slow_period" yaml:"slow_period"`
		RSIPeriod         int     `toml:"rsi_period" yaml:"rsi_period"`
		MomentumThreshold float64 `toml:"momentum_threshold" yaml:"momentum_threshold"`
		RSIOversold       float64 `toml:"rsi_oversold" yaml:"rsi_oversold"`
		RSIOverbought     float64 `toml:"rsi_overbought" yaml:"rsi_overbought"`
		// UseMomentum is on unless explicitly disabled.
		UseMomentum     *bool `toml:"use_momentum" yaml:"use_momentum"`
		UseSMACrossover bool  `toml:"use_sma_crossover" yaml:"use_sma_crossover"`
		UseRSIFilter    bool  `toml:"use_rsi_filter" yaml:"use_rsi_filter"`
	} `toml:"signal" yaml:"signal"`

	Risk struct {
		PositionSizeFraction float64 `toml:"position_size_fraction" yaml:"position_size_fraction"`

		// Limits below are defaulted only when absent; an explicit 0 turns
		// the limit off.
		StopLossPct    *float64 `toml:"stop_loss_pct" yaml:"stop_loss_pct"`
		TakeProfitPct  *float64 `toml:"take_profit_pct" yaml:"take_profit_pct"`
		MaxPositions   *int     `toml:"max_positions" yaml:"max_positions"`
		DailyLossLimit *float64 `toml:"daily_loss_limit" yaml:"daily_loss_limit"`
		MaxDrawdown    *float64 `toml:"max_drawdown" yaml:"max_drawdown"`
		MinPrice       float64  `toml:"min_price" yaml:"min_price"`
		MaxPrice       float64  `toml:"max_price" yaml:"max_price"`
		MinVolume      float64  `toml:"min_volume" yaml:"min_volume"`
	} `toml:"risk" yaml:"risk"`

	Backtest struct {
		Start          string  `toml:"start" yaml:"start"`
		End            string  `toml:"end" yaml:"end"`
		Interval       string  `toml:"interval" yaml:"interval"`
		Warmup         int     `toml:"warmup" yaml:"warmup"`
		InitialCapital float64 `toml:"initial_capital" yaml:"initial_capital"`
		FeeModel       string  `toml:"fee_model" yaml:"fee_model"`
		Benchmark      string  `toml:"benchmark" yaml:"benchmark"`
	} `toml:"backtest" yaml:"backtest"`

	Database struct {
		URL string `toml:"url" yaml:"url"`
	} `toml:"database" yaml:"database"`

	Journal struct {
		Path string `toml:"path" yaml:"path"`
	} `toml:"journal" yaml:"journal"`

	Redis struct {
		Enabled  bool   `toml:"enabled" yaml:"enabled"`
		Addr     string `toml:"addr" yaml:"addr"`
		Password string `toml:"password" yaml:"password"`
		DB       int    `toml:"db" yaml:"db"`
		Stream   string `toml:"stream" yaml:"stream"`
		Channel  string `toml:"channel" yaml:"channel"`
	} `toml:"redis" yaml:"redis"`

	Feed struct {
		URL               string `toml:"url" yaml:"url"`
		ReconnectDelaySec int    `toml:"reconnect_delay_sec" yaml:"reconnect_delay_sec"`
		MaxReconnectSec   int    `toml:"max_reconnect_sec" yaml:"max_reconnect_sec"`
	} `toml:"feed" yaml:"feed"`

	Report struct {
		TradesCSV     string `toml:"trades_csv" yaml:"trades_csv"`
		EquityCSV     string `toml:"equity_csv" yaml:"equity_csv"`
		RollingWindow int    `toml:"rolling_window" yaml:"rolling_window"`
	} `toml:"report" yaml:"report"`
}

// BacktestWindow is the parsed [backtest] section.
type BacktestWindow struct {
	Start    time.Time
	End      time.Time
	Interval types.Interval
	Warmup   int
}

// Load reads a .toml, .yaml or .yml file, fills in defaults and checks the
// sections that do not belong to engine.Config.
func Load(path string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	s := &cfg.Strategy
	if len(s.Universe) == 0 {
		s.Universe = append([]string(nil), defaultUniverse...)
	}
	if s.LookbackPeriod <= 0 {
		s.LookbackPeriod = 120
	}
	if s.RebalancePeriod <= 0 {
		s.RebalancePeriod = 20
	}
	if s.HoldCount <= 0 {
		s.HoldCount = 2
	}
	if s.Sizing == "" {
		s.Sizing = string(engine.SizingEqualWeight)
	}

	sig := &cfg.Signal
	if sig.LookbackPeriod <= 0 {
		sig.LookbackPeriod = 20
	}
	if sig.FastPeriod <= 0 {
		sig.FastPeriod = 10
	}
	if sig.SlowPeriod <= 0 {
		sig.SlowPeriod = 20
	}
	if sig.RSIPeriod <= 0 {
		sig.RSIPeriod = 14
	}
	if sig.MomentumThreshold <= 0 {
		sig.MomentumThreshold = 0.02
	}
	if sig.RSIOversold <= 0 {
		sig.RSIOversold = 30
	}
	if sig.RSIOverbought <= 0 {
		sig.RSIOverbought = 70
	}
	if sig.UseMomentum == nil {
		on := true
		sig.UseMomentum = &on
	}

	r := &cfg.Risk
	if r.PositionSizeFraction <= 0 {
		r.PositionSizeFraction = 0.1
	}
	defaultFloat(&r.StopLossPct, 0.03)
	defaultFloat(&r.TakeProfitPct, 0.06)
	defaultFloat(&r.DailyLossLimit, 0.05)
	defaultFloat(&r.MaxDrawdown, 0.15)
	if r.MaxPositions == nil {
		// room for every long and short the strategy holds
		n := max(5, 2*s.HoldCount)
		r.MaxPositions = &n
	}

	b := &cfg.Backtest
	if b.Interval == "" {
		b.Interval = string(types.Day)
	}
	if b.InitialCapital <= 0 {
		b.InitialCapital = 100000
	}
	if b.FeeModel == "" {
		b.FeeModel = "none"
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "momentum.db"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = "momentum:events"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "momentum:orders"
	}
	if cfg.Feed.ReconnectDelaySec <= 0 {
		cfg.Feed.ReconnectDelaySec = 1
	}
	if cfg.Feed.MaxReconnectSec <= 0 {
		cfg.Feed.MaxReconnectSec = 30
	}
	if cfg.Report.RollingWindow <= 0 {
		cfg.Report.RollingWindow = 30
	}
}

func defaultFloat(p **float64, v float64) {
	if *p == nil {
		*p = &v
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func validate(cfg *Config) error {
	cfg.Strategy.Universe = normalizeSymbols(cfg.Strategy.Universe)
	if len(cfg.Strategy.Universe) == 0 {
		return errors.New("strategy.universe is empty")
	}
	cfg.Strategy.Reference = strings.ToUpper(strings.TrimSpace(cfg.Strategy.Reference))
	cfg.Backtest.Benchmark = strings.ToUpper(strings.TrimSpace(cfg.Backtest.Benchmark))

	if _, err := types.ParseInterval(cfg.Backtest.Interval); err != nil {
		return fmt.Errorf("backtest.interval: %w", err)
	}
	if cfg.Backtest.Warmup < 0 {
		return fmt.Errorf("backtest.warmup must not be negative, got %d", cfg.Backtest.Warmup)
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ToEngineConfig builds the engine configuration and validates it.
func (c *Config) ToEngineConfig() (engine.Config, error) {
	useMomentum := c.Signal.UseMomentum == nil || *c.Signal.UseMomentum
	ec := engine.Config{
		Universe:            append([]string(nil), c.Strategy.Universe...),
		ReferenceInstrument: c.Strategy.Reference,
		LookbackPeriod:      c.Strategy.LookbackPeriod,
		RebalancePeriod:     c.Strategy.RebalancePeriod,
		HoldCount:           c.Strategy.HoldCount,
		Sizing:              engine.Sizing(c.Strategy.Sizing),
		ConfirmEntries:      c.Strategy.ConfirmEntries,
		Signal: signal.Params{
			LookbackPeriod:    c.Signal.LookbackPeriod,
			FastPeriod:        c.Signal.FastPeriod,
			SlowPeriod:        c.Signal.SlowPeriod,
			RSIPeriod:         c.Signal.RSIPeriod,
			MomentumThreshold: c.Signal.MomentumThreshold,
			RSIOversold:       c.Signal.RSIOversold,
			RSIOverbought:     c.Signal.RSIOverbought,
			UseMomentum:       useMomentum,
			UseSMACrossover:   c.Signal.UseSMACrossover,
			UseRSIFilter:      c.Signal.UseRSIFilter,
		},
		Risk: risk.Config{
			PositionSizeFraction: decimal.NewFromFloat(c.Risk.PositionSizeFraction),
			StopLossPct:          decimal.NewFromFloat(deref(c.Risk.StopLossPct)),
			TakeProfitPct:        decimal.NewFromFloat(deref(c.Risk.TakeProfitPct)),
			MaxPositions:         deref(c.Risk.MaxPositions),
			DailyLossLimit:       decimal.NewFromFloat(deref(c.Risk.DailyLossLimit)),
			MaxDrawdown:          decimal.NewFromFloat(deref(c.Risk.MaxDrawdown)),
			Filters: risk.Filters{
				MinPrice:  c.Risk.MinPrice,
				MaxPrice:  c.Risk.MaxPrice,
				MinVolume: c.Risk.MinVolume,
			},
		},
		InitialCapital: decimal.NewFromFloat(c.Backtest.InitialCapital),
	}
	if err := ec.Validate(); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

// Window parses the backtest dates. Warmup defaults to the strategy lookback.
func (c *Config) Window() (BacktestWindow, error) {
	start, err := time.Parse(dateLayout, c.Backtest.Start)
	if err != nil {
		return BacktestWindow{}, fmt.Errorf("backtest.start: %w", err)
	}
	end, err := time.Parse(dateLayout, c.Backtest.End)
	if err != nil {
		return BacktestWindow{}, fmt.Errorf("backtest.end: %w", err)
	}
	if !end.After(start) {
		return BacktestWindow{}, fmt.Errorf("backtest.end %s is not after start %s", c.Backtest.End, c.Backtest.Start)
	}
	iv, err := types.ParseInterval(c.Backtest.Interval)
	if err != nil {
		return BacktestWindow{}, fmt.Errorf("backtest.interval: %w", err)
	}
	warmup := c.Backtest.Warmup
	if warmup == 0 {
		warmup = c.Strategy.LookbackPeriod
	}
	return BacktestWindow{Start: start, End: end, Interval: iv, Warmup: warmup}, nil
}

// Instruments is the universe plus the benchmark, if it is not already in it.
func (c *Config) Instruments() []string {
	out := append([]string(nil), c.Strategy.Universe...)
	if b := c.Backtest.Benchmark; b != "" {
		for _, s := range out {
			if s == b {
				return out
			}
		}
		out = append(out, b)
	}
	return out
}

func (c *Config) ReconnectDelays() (time.Duration, time.Duration) {
	return time.Duration(c.Feed.ReconnectDelaySec) * time.Second, time.Duration(c.Feed.MaxReconnectSec) * time.Second
}
