package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DefaultPredictorURL = "http://127.0.0.1:5000"
	DefaultConfigFile   = "config.yaml"
)

type Config struct {
	Predictor struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"predictor"`
	HTTP struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	History struct {
		Enabled bool   `yaml:"enabled"`
		Driver  string `yaml:"driver"`
		URL     string `yaml:"url"`
	} `yaml:"history"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Predictor.URL = DefaultPredictorURL
	cfg.Predictor.Timeout = 10 * time.Second
	cfg.HTTP.Port = 8080
	cfg.HTTP.AllowedOrigins = []string{"*"}
	cfg.History.Driver = "postgres"
	cfg.Log.Level = "info"
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence. A .env file in the working
// directory is loaded first if present.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports the variables of an env file. A missing file is not an
// error; one that cannot be read or parsed is.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PREDICTOR_URL"); ok && v != "" {
		c.Predictor.URL = v
	}
	if v, ok := lookup("PREDICTOR_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PREDICTOR_TIMEOUT: %w", err)
		}
		c.Predictor.Timeout = d
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.HTTP.AllowedOrigins = origins
	}
	if v, ok := lookup("SAVE_HISTORY"); ok && v != "" {
		c.History.Enabled = v == "true"
	}
	if v, ok := lookup("DATABASE_DRIVER"); ok && v != "" {
		c.History.Driver = v
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.History.URL = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FILE"); ok && v != "" {
		c.Log.File = v
	}
	return nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Predictor.URL)
	if err != nil {
		return fmt.Errorf("invalid predictor url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("predictor url must be an absolute http(s) url, got %q", c.Predictor.URL)
	}
	if c.Predictor.Timeout <= 0 {
		return fmt.Errorf("predictor timeout must be positive, got %s", c.Predictor.Timeout)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.HTTP.Port)
	}
	if c.History.Enabled {
		if c.History.Driver != "postgres" && c.History.Driver != "sqlite3" {
			return fmt.Errorf("unsupported history driver %q", c.History.Driver)
		}
		if c.History.URL == "" {
			return errors.New("DATABASE_URL is required when history is enabled")
		}
	}
	return nil
}
