package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Providers Providers `mapstructure:"providers"`
	Rates     Rates     `mapstructure:"rates"`
	Cache     Cache     `mapstructure:"cache"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Provider holds the per-source settings shared by all market-data adapters.
type Provider struct {
	ApiKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	Timeout        int     `mapstructure:"timeout"` // seconds, end-to-end per call
}

// Providers holds the settings for every known market-data source. Priority
// is the enablement order: a source listed there is enabled, and its position
// is authoritative for result ranking and quote fallback. Sources not listed
// are disabled regardless of their settings block.
type Providers struct {
	Priority []string `mapstructure:"priority"`
	Finnhub  Provider `mapstructure:"finnhub"`
	Vantage  Provider `mapstructure:"vantage"`
	OpenFIGI Provider `mapstructure:"openfigi"`
	CNBC     Provider `mapstructure:"cnbc"`
}

// ByName returns the settings block for a configured source name.
func (p *Providers) ByName(name string) (Provider, bool) {
	switch name {
	case "finnhub":
		return p.Finnhub, true
	case "vantage":
		return p.Vantage, true
	case "openfigi":
		return p.OpenFIGI, true
	case "cnbc":
		return p.CNBC, true
	}
	return Provider{}, false
}

// Rates holds the configuration for the FX rate source.
type Rates struct {
	ApiKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// Cache holds the sizing of the in-process memoization caches.
type Cache struct {
	Capacity int `mapstructure:"capacity"` // entries per adapter/operation pair
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("cache.capacity", 128)
	viper.SetDefault("rates.timeout", 3)
	for _, name := range []string{"finnhub", "vantage", "openfigi", "cnbc"} {
		viper.SetDefault("providers."+name+".rate_limit", 10)
		viper.SetDefault("providers."+name+".rate_limit_burst", 5)
		viper.SetDefault("providers."+name+".timeout", 5)
	}

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
