package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_scalper/internal/usecase"
	"gopkg.in/yaml.v3"
)

type Exchange struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	WSEndpoint   string `yaml:"ws_endpoint"`
	RESTEndpoint string `yaml:"rest_endpoint"`
}

type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Config struct {
	Exchange Exchange `yaml:"exchange"`
	Logging  Logging  `yaml:"logging"`
	Server   struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Notifications struct {
		Buffer int `yaml:"buffer"`
		Keep   int `yaml:"keep"`
	} `yaml:"notifications"`
	// DryRun fills orders against live quotes instead of sending them.
	DryRun  bool                    `yaml:"dry_run"`
	Scalper usecase.ScalperSettings `yaml:"scalper"`

	secretsFromEnv bool
}

func Default() *Config {
	cfg := &Config{
		Exchange: Exchange{Name: "bybit"},
		Logging:  Logging{Level: "info", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 14},
		DryRun:   true,
		Scalper:  usecase.DefaultScalperSettings(),
	}
	cfg.Server.Port = 8080
	cfg.Storage.Path = "scalper.db"
	cfg.Notifications.Buffer = 64
	cfg.Notifications.Keep = 100
	return cfg
}

// Load reads path on top of the defaults. Exchange credentials may also come
// from BYBIT_API_KEY / BYBIT_API_SECRET, directly or through a .env file in
// the working directory; the environment wins over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	_ = godotenv.Load()
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
		cfg.secretsFromEnv = true
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
		cfg.secretsFromEnv = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !c.DryRun && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("exchange credentials required when dry_run is off")
	}
	if c.Scalper.SellPercent <= 0 {
		return fmt.Errorf("scalper.sell_percent must be positive")
	}
	if c.Scalper.ReverseDownPercent <= 0 {
		return fmt.Errorf("scalper.reverse_down_percent must be positive")
	}
	if c.Scalper.PriceBias < 0 {
		return fmt.Errorf("scalper.price_bias must not be negative")
	}
	return nil
}

// Save writes the config back to path. Credentials that came from the
// environment are left out.
func (c *Config) Save(path string) error {
	out := *c
	if c.secretsFromEnv {
		out.Exchange.APIKey = ""
		out.Exchange.APISecret = ""
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Saver persists scalper settings edits. Edits arrive on concurrent request
// goroutines, so the update and the write happen under one lock.
type Saver struct {
	mu   sync.Mutex
	cfg  *Config
	path string
}

func NewSaver(cfg *Config, path string) *Saver {
	return &Saver{cfg: cfg, path: path}
}

func (s *Saver) SaveScalper(set usecase.ScalperSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Scalper = set
	return s.cfg.Save(s.path)
}
