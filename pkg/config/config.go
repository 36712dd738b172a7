package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"QuantPulse/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Binance struct {
		RESTBaseURL    string        `yaml:"rest_base_url"`
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		APISecret      string        `yaml:"api_secret"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		RatePerSecond  float64       `yaml:"rate_per_second"`
		RateBurst      int           `yaml:"rate_burst"`
	} `yaml:"binance"`
	Analytics struct {
		EdgeServiceURL    string        `yaml:"edge_service_url"`
		NetflowServiceURL string        `yaml:"netflow_service_url"`
		Horizon           string        `yaml:"horizon"`
		Timeout           time.Duration `yaml:"timeout"`
	} `yaml:"analytics"`
	Trading struct {
		Mode           string  `yaml:"mode"` // "paper" | "live"
		BuyThreshold   float64 `yaml:"buy_threshold"`
		SellThreshold  float64 `yaml:"sell_threshold"`
		StopLossPct    float64 `yaml:"stop_loss_pct"`
		TakeProfitPct  float64 `yaml:"take_profit_pct"`
		MLGateEnabled  bool    `yaml:"ml_gate_enabled"`
		MLGateMinProba float64 `yaml:"ml_gate_min_proba"`
		Kelly          struct {
			Fraction    float64 `yaml:"fraction"`
			MaxFraction float64 `yaml:"max_fraction"`
		} `yaml:"kelly"`
		Paper struct {
			InitialBalance float64 `yaml:"initial_balance"`
			SnapshotPath   string  `yaml:"snapshot_path"`
		} `yaml:"paper"`
	} `yaml:"trading"`
	Ingestion struct {
		Timeframe    string `yaml:"timeframe"`
		LookbackBars int    `yaml:"lookback_bars"`
		MaxRetries   int    `yaml:"max_retries"`
	} `yaml:"ingestion"`
	Scoring struct {
		Window int `yaml:"window"`
	} `yaml:"scoring"`
	Scheduler struct {
		IngestSecond    int           `yaml:"ingest_second"`
		ScanSecond      int           `yaml:"scan_second"`
		DistributedLock bool          `yaml:"distributed_lock"`
		LockTTL         time.Duration `yaml:"lock_ttl"`
	} `yaml:"scheduler"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Binance.APISecret = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Binance.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		c.Trading.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}

	return c, nil
}

// applyDefaults fills zero values with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Trading.Mode == "" {
		c.Trading.Mode = "paper"
	}
	if c.Trading.BuyThreshold == 0 {
		c.Trading.BuyThreshold = 70
	}
	if c.Trading.SellThreshold == 0 {
		c.Trading.SellThreshold = 30
	}
	if c.Trading.StopLossPct == 0 {
		c.Trading.StopLossPct = 0.05
	}
	if c.Trading.TakeProfitPct == 0 {
		c.Trading.TakeProfitPct = 0.10
	}
	if c.Trading.MLGateMinProba == 0 {
		c.Trading.MLGateMinProba = 0.6
	}
	if c.Trading.Kelly.Fraction == 0 {
		c.Trading.Kelly.Fraction = 0.25
	}
	if c.Trading.Kelly.MaxFraction == 0 {
		c.Trading.Kelly.MaxFraction = 0.3
	}
	if c.Trading.Paper.InitialBalance == 0 {
		c.Trading.Paper.InitialBalance = 10000
	}
	if c.Trading.Paper.SnapshotPath == "" {
		c.Trading.Paper.SnapshotPath = "data/ledger.json"
	}
	if c.Ingestion.Timeframe == "" {
		c.Ingestion.Timeframe = "1m"
	}
	if c.Ingestion.LookbackBars == 0 {
		c.Ingestion.LookbackBars = 500
	}
	if c.Ingestion.MaxRetries == 0 {
		c.Ingestion.MaxRetries = 3
	}
	if c.Scoring.Window == 0 {
		c.Scoring.Window = 120
	}
	if c.Scheduler.IngestSecond == 0 {
		c.Scheduler.IngestSecond = 5
	}
	if c.Scheduler.ScanSecond == 0 {
		c.Scheduler.ScanSecond = 10
	}
	if c.Scheduler.LockTTL == 0 {
		c.Scheduler.LockTTL = 45 * time.Second
	}
	if c.Analytics.Horizon == "" {
		c.Analytics.Horizon = "15m"
	}
	if c.Analytics.Timeout == 0 {
		c.Analytics.Timeout = 3 * time.Second
	}
	if c.Binance.RatePerSecond == 0 {
		c.Binance.RatePerSecond = 10
	}
	if c.Binance.RateBurst == 0 {
		c.Binance.RateBurst = 20
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Trading.Mode != "paper" && c.Trading.Mode != "live" {
		return fmt.Errorf("trading.mode must be 'paper' or 'live', got '%s'", c.Trading.Mode)
	}
	if len(c.Binance.Symbols) == 0 {
		return fmt.Errorf("binance.symbols cannot be empty")
	}
	if c.Trading.BuyThreshold <= c.Trading.SellThreshold {
		return fmt.Errorf("trading.buy_threshold must exceed sell_threshold")
	}
	if c.Trading.Kelly.Fraction <= 0 || c.Trading.Kelly.Fraction > 1 {
		return fmt.Errorf("trading.kelly.fraction must be in (0, 1]")
	}
	if c.Trading.Kelly.MaxFraction <= 0 || c.Trading.Kelly.MaxFraction > 1 {
		return fmt.Errorf("trading.kelly.max_fraction must be in (0, 1]")
	}
	if c.Trading.Paper.InitialBalance < 0 {
		return fmt.Errorf("trading.paper.initial_balance cannot be negative")
	}
	if c.Trading.Mode == "live" && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		return fmt.Errorf("binance api credentials are required in live mode")
	}
	if c.Scheduler.IngestSecond < 0 || c.Scheduler.IngestSecond > 59 {
		return fmt.Errorf("scheduler.ingest_second must be in [0, 59]")
	}
	if c.Scheduler.ScanSecond < 0 || c.Scheduler.ScanSecond > 59 {
		return fmt.Errorf("scheduler.scan_second must be in [0, 59]")
	}
	return nil
}
