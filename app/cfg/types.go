package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath     string
	FeedsDir   string
	ScriptsDir string

	// Application configuration
	Port              string
	WorkerCount       int
	SchedulerInterval int
	FetchTimeout      int
	FetchRate         float64
	FetchRetries      int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	LogFormat string
	Version   string
}

func (c *Cfg) GetFetchTimeout() time.Duration {
	if c.FetchTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.FetchTimeout) * time.Second
}

func (c *Cfg) GetSchedulerInterval() time.Duration {
	if c.SchedulerInterval <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SchedulerInterval) * time.Second
}
