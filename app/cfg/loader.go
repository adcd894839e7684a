package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/hoard.db" description:"Path to the SQLite database file"`
	FeedsDir   string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed definition files"`
	ScriptsDir string `long:"scripts-dir" env:"SCRIPTS_DIR" default:"./scripts" description:"Directory containing custom feed scripts"`

	// Application configuration
	Port              string  `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int     `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Maximum number of feeds fetched concurrently"`
	SchedulerInterval int     `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"1800" description:"Interval between fetch cycles in seconds"`
	FetchTimeout      int     `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Default per-feed fetch timeout in seconds"`
	FetchRate         float64 `long:"fetch-rate" env:"FETCH_RATE" default:"0" description:"Outbound HTTP requests per second (0 = unlimited)"`
	FetchRetries      int     `long:"fetch-retries" env:"FETCH_RETRIES" default:"2" description:"Retries for transient feed fetch errors"`
	APIAccessKey      string  `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS Hoard/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" description:"Log output format (text or json)"`
}

func Load() (*Cfg, error) {
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if raw.WorkerCount <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", raw.WorkerCount)
	}
	if raw.LogFormat != "text" && raw.LogFormat != "json" {
		return nil, fmt.Errorf("unknown log format: %s", raw.LogFormat)
	}
	if raw.FetchRetries < 0 {
		return nil, fmt.Errorf("fetch retries must be non-negative, got %d", raw.FetchRetries)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		FeedsDir:          raw.FeedsDir,
		ScriptsDir:        raw.ScriptsDir,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		FetchTimeout:      raw.FetchTimeout,
		FetchRate:         raw.FetchRate,
		FetchRetries:      raw.FetchRetries,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		LogFormat:         raw.LogFormat,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
