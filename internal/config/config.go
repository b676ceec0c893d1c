// Package config
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML values like "10s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

/*
YAML config example:
mode: "live"
log_level: "info"
kabu_base_url: "http://localhost:18080/kabusapi"
kabu_exchange: 1
jquants_base_url: "https://api.jquants.com/v1"
symbols: ["7203", "6758", "9984"]
aoi_threshold: 0.4
aoi_stability_threshold: 0.1
avwap_deviation_multiplier: 0.6
atr_period: 5
stop_loss_atr_multiplier: 1.3
data_fetch_interval: 10s
pre_market_start: "08:55:00"
pre_market_end: "08:59:50"
anchor_time: "09:00:00"
monitor_start: "09:02:00"
monitor_end: "09:15:00"
watchlist_path: "watchlist.json"
signals_path: "signals.json"
*/

type Config struct {
	Mode     string `yaml:"mode"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	KabuBaseURL     string `yaml:"kabu_base_url"`
	KabuAPIKey      string `yaml:"kabu_api_key"`
	KabuExchange    int    `yaml:"kabu_exchange"`
	JQuantsBaseURL  string `yaml:"jquants_base_url"`
	JQuantsEmail    string `yaml:"jquants_email"`
	JQuantsPassword string `yaml:"jquants_password"`
	RateLimitPerSec int    `yaml:"rate_limit_per_sec"`

	Symbols     []string `yaml:"symbols"`
	SymbolsFile string   `yaml:"symbols_file"`

	AOIThreshold             float64       `yaml:"aoi_threshold"`
	AOIStabilityThreshold    float64       `yaml:"aoi_stability_threshold"`
	AVWAPDeviationMultiplier float64       `yaml:"avwap_deviation_multiplier"`
	ATRPeriod                int           `yaml:"atr_period"`
	StopLossATRMultiplier    float64       `yaml:"stop_loss_atr_multiplier"`
	DataFetchInterval        Duration      `yaml:"data_fetch_interval"`

	PreMarketStart string `yaml:"pre_market_start"`
	PreMarketEnd   string `yaml:"pre_market_end"`
	AnchorTime     string `yaml:"anchor_time"`
	MonitorStart   string `yaml:"monitor_start"`
	MonitorEnd     string `yaml:"monitor_end"`

	TelegramToken       string        `yaml:"telegram_token"`
	TelegramChatID      string        `yaml:"telegram_chat_id"`
	NotificationRetries int      `yaml:"notification_retries"`
	NotificationDelay   Duration `yaml:"notification_delay"`

	WatchlistPath string `yaml:"watchlist_path"`
	SignalsPath   string `yaml:"signals_path"`

	ReplayAOICSV    string `yaml:"replay_aoi_csv"`
	ReplayMinuteDir string `yaml:"replay_minute_dir"`
	ReplayDate      string `yaml:"replay_date"`
}

// Default returns a config populated with the strategy defaults.
func Default() Config {
	return Config{
		Mode:                     "live",
		LogLevel:                 "info",
		LogFile:                  "asagake.log",
		KabuBaseURL:              "http://localhost:18080/kabusapi",
		KabuExchange:             1,
		JQuantsBaseURL:           "https://api.jquants.com/v1",
		RateLimitPerSec:          10,
		AOIThreshold:             0.4,
		AOIStabilityThreshold:    0.1,
		AVWAPDeviationMultiplier: 0.6,
		ATRPeriod:                5,
		StopLossATRMultiplier:    1.3,
		DataFetchInterval:        Duration(10 * time.Second),
		PreMarketStart:           "08:55:00",
		PreMarketEnd:             "08:59:50",
		AnchorTime:               "09:00:00",
		MonitorStart:             "09:02:00",
		MonitorEnd:               "09:15:00",
		NotificationRetries:      3,
		NotificationDelay:        Duration(5 * time.Second),
		WatchlistPath:            "watchlist.json",
		SignalsPath:              "signals.json",
	}
}

// LoadFile parses a YAML config file over the defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfig() Config {
	def := Default()

	mode := flag.String("mode", def.Mode, "Mode: live or replay")
	logLevel := flag.String("log-level", def.LogLevel, "Log level: trace, debug, info, warn, error")
	logFile := flag.String("log-file", def.LogFile, "Log file path (empty for stdout only)")
	kabuBaseURL := flag.String("kabu-base-url", def.KabuBaseURL, "kabu Station API base URL")
	kabuExchange := flag.Int("kabu-exchange", def.KabuExchange, "kabu exchange code (1=TSE)")
	jquantsBaseURL := flag.String("jquants-base-url", def.JQuantsBaseURL, "J-Quants API base URL")
	rateLimit := flag.Int("rate-limit", def.RateLimitPerSec, "Market data requests per second")
	symbolsFlag := flag.String("symbols", "", "Comma-separated stock codes to screen")
	symbolsFile := flag.String("symbols-file", "", "Path to stock code list file (one code per line)")
	aoiThreshold := flag.Float64("aoi-threshold", def.AOIThreshold, "Minimum |final AOI| for selection")
	aoiStability := flag.Float64("aoi-stability-threshold", def.AOIStabilityThreshold, "Maximum AOI std dev for selection")
	deviationMult := flag.Float64("avwap-deviation-multiplier", def.AVWAPDeviationMultiplier, "Setup threshold = multiplier * ATR")
	atrPeriod := flag.Int("atr-period", def.ATRPeriod, "ATR period in minutes")
	stopLossMult := flag.Float64("stop-loss-atr-multiplier", def.StopLossATRMultiplier, "Stop loss = extreme +/- multiplier * ATR")
	fetchInterval := flag.Duration("data-fetch-interval", def.DataFetchInterval.Std(), "Pre-open board poll interval")
	notificationRetries := flag.Int("notification-retries", def.NotificationRetries, "Number of notification send attempts")
	notificationDelay := flag.Duration("notification-delay", def.NotificationDelay.Std(), "Delay between notification retries")
	watchlistPath := flag.String("watchlist", def.WatchlistPath, "Monitoring set output path")
	signalsPath := flag.String("signals", def.SignalsPath, "Signal output path")
	replayAOICSV := flag.String("aoi", "", "Replay: AOI samples CSV path")
	replayMinuteDir := flag.String("minute-dir", "", "Replay: minute OHLCV CSV directory")
	replayDate := flag.String("date", "", "Replay: trading date YYYY-MM-DD (JST)")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if *configFile != "" {
		fileCfg, err := LoadFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
		fileCfg.applyEnv()
		return fileCfg
	}

	cfg := def
	cfg.Mode = *mode
	cfg.LogLevel = *logLevel
	cfg.LogFile = *logFile
	cfg.KabuBaseURL = *kabuBaseURL
	cfg.KabuExchange = *kabuExchange
	cfg.JQuantsBaseURL = *jquantsBaseURL
	cfg.RateLimitPerSec = *rateLimit
	if *symbolsFlag != "" {
		cfg.Symbols = strings.Split(*symbolsFlag, ",")
	}
	cfg.SymbolsFile = *symbolsFile
	cfg.AOIThreshold = *aoiThreshold
	cfg.AOIStabilityThreshold = *aoiStability
	cfg.AVWAPDeviationMultiplier = *deviationMult
	cfg.ATRPeriod = *atrPeriod
	cfg.StopLossATRMultiplier = *stopLossMult
	cfg.DataFetchInterval = Duration(*fetchInterval)
	cfg.NotificationRetries = *notificationRetries
	cfg.NotificationDelay = Duration(*notificationDelay)
	cfg.WatchlistPath = *watchlistPath
	cfg.SignalsPath = *signalsPath
	cfg.ReplayAOICSV = *replayAOICSV
	cfg.ReplayMinuteDir = *replayMinuteDir
	cfg.ReplayDate = *replayDate
	cfg.applyEnv()
	return cfg
}

// applyEnv fills credentials from the environment. Secrets never live in the
// YAML file or on the command line.
func (c *Config) applyEnv() {
	if v := os.Getenv("KABU_API_KEY"); v != "" {
		c.KabuAPIKey = v
	}
	if v := os.Getenv("JQUANTS_EMAIL"); v != "" {
		c.JQuantsEmail = v
	}
	if v := os.Getenv("JQUANTS_PASSWORD"); v != "" {
		c.JQuantsPassword = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.TelegramChatID = v
	}
}

func MustLoadConfig() Config {
	cfg := loadConfig()
	if cfg.Mode != "live" && cfg.Mode != "replay" {
		log.Fatalf("Invalid mode %q: must be live or replay", cfg.Mode)
	}
	if cfg.Mode == "replay" && (cfg.ReplayAOICSV == "" || cfg.ReplayMinuteDir == "" || cfg.ReplayDate == "") {
		log.Fatalf("Replay mode requires -aoi, -minute-dir and -date")
	}
	return cfg
}
