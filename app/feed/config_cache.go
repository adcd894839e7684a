package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const configExt = ".yml"

type ConfigCache struct {
	feedsDir       string
	defaultTimeout int
	cache          map[string]*Config
	mu             sync.RWMutex
}

func NewConfigCache(feedsDir string, defaultTimeout int) *ConfigCache {
	return &ConfigCache{
		feedsDir:       feedsDir,
		defaultTimeout: defaultTimeout,
		cache:          make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); err != nil {
		return fmt.Errorf("feeds directory: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*"+configExt))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		feedName, ok := FeedNameFromPath(file)
		if !ok {
			continue
		}

		config, err := cc.LoadConfig(feedName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "feed", feedName, "source", SourceKindFor(config.URL, config.Script), "enabled", config.Settings.IsEnabled())
	}

	return nil
}

// FeedNameFromPath derives the feed identifier from a definition file path.
func FeedNameFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, configExt) || strings.HasPrefix(base, ".") {
		return "", false
	}
	name := strings.TrimSuffix(base, configExt)
	return name, name != ""
}

func (cc *ConfigCache) LoadConfig(feedName string) (*Config, error) {
	configFile := cc.getConfigFilePath(feedName)
	feedConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	feedConfig.Name = feedName

	if err := cc.validateConfig(feedConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[feedConfig.Name] = feedConfig

	return feedConfig, nil
}

func (cc *ConfigCache) Remove(feedName string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.cache, feedName)
}

func (cc *ConfigCache) GetConfig(feedName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	feedConfig, ok := cc.cache[feedName]
	if !ok {
		return nil, fmt.Errorf("feed config with name '%s' not found", feedName)
	}
	return feedConfig, nil
}

// GetConfigs returns a snapshot of all definitions ordered by name.
func (cc *ConfigCache) GetConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configs := make([]*Config, 0, len(cc.cache))
	for _, v := range cc.cache {
		configs = append(configs, v)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs
}

// MaxTimeout returns the largest per-feed fetch timeout, never below the default.
func (cc *ConfigCache) MaxTimeout() time.Duration {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	longest := cc.defaultTimeout
	for _, c := range cc.cache {
		longest = max(longest, c.Settings.Timeout)
	}
	return time.Duration(longest) * time.Second
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var feedConfig Config
	if err := yaml.Unmarshal(data, &feedConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	feedConfig.URL = strings.TrimSpace(feedConfig.URL)
	feedConfig.Script = strings.TrimSpace(feedConfig.Script)

	if feedConfig.Settings.Timeout == 0 {
		feedConfig.Settings.Timeout = cc.defaultTimeout
	}
	if feedConfig.Settings.MaxItems == 0 {
		feedConfig.Settings.MaxItems = 100
	}

	return &feedConfig, nil
}

func (cc *ConfigCache) validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return fmt.Errorf("feedConfig is nil")
	}

	if feedConfig.Name == "" {
		return fmt.Errorf("feed name is required")
	}
	if feedConfig.URL == "" && feedConfig.Script == "" {
		return fmt.Errorf("either url or script is required")
	}

	nonNegativeFields := map[string]int{
		"timeout":   feedConfig.Settings.Timeout,
		"max items": feedConfig.Settings.MaxItems,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(feedName string) string {
	return filepath.Join(cc.feedsDir, feedName+configExt)
}
