package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Bridge  BridgeConfig  `json:"bridge" yaml:"bridge"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

type ServerConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr" env:"GAMEHUB_LISTEN_ADDR"`
	Host       string `json:"host" yaml:"host" env:"GAMEHUB_HOST"`
	Port       int    `json:"port" yaml:"port" env:"GAMEHUB_PORT"`
	FramePath  string `json:"frame_path" yaml:"frame_path" env:"GAMEHUB_FRAME_PATH"`
}

type BridgeConfig struct {
	// AllowedOrigins lists the origins trusted to post to the hub. "*"
	// disables the check.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" env:"GAMEHUB_ALLOWED_ORIGINS" envSeparator:","`
	Debug          bool     `json:"debug" yaml:"debug" env:"GAMEHUB_BRIDGE_DEBUG"`
	FrameID        string   `json:"frame_id" yaml:"frame_id" env:"GAMEHUB_FRAME_ID"`
}

type StoreConfig struct {
	Driver     string `json:"driver" yaml:"driver" env:"GAMEHUB_STORE_DRIVER"`
	RedisAddr  string `json:"redis_addr" yaml:"redis_addr" env:"REDIS_ADDR"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path" env:"GAMEHUB_SQLITE_PATH"`
}

type CatalogConfig struct {
	// Source is a games.json path or http(s) URL.
	Source string `json:"source" yaml:"source" env:"GAMEHUB_CATALOG"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level" env:"GAMEHUB_LOG_LEVEL"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			FramePath:  "/ws/frame",
		},
		Bridge: BridgeConfig{
			FrameID: "game-frame",
		},
		Store: StoreConfig{
			SQLitePath: "gamehub.db",
		},
		Catalog: CatalogConfig{
			Source: "data/games.json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and then applies the environment.
// Files ending in .yaml or .yml are YAML; anything else is parsed as
// HuJSON, so plain JSON works too.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config failed: %w", err)
		}
		if err := decode(path, content, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env failed: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	default:
		std, err := hujson.Standardize(content)
		if err != nil {
			return err
		}
		return json.Unmarshal(std, cfg)
	}
}

func (c *Config) normalize() {
	if c.Server.FramePath == "" {
		c.Server.FramePath = "/ws/frame"
	}
	if c.Server.ListenAddr == "" {
		if c.Server.Host != "" && c.Server.Port > 0 {
			c.Server.ListenAddr = fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
		} else {
			c.Server.ListenAddr = ":8080"
		}
	}
	if c.Bridge.FrameID == "" {
		c.Bridge.FrameID = "game-frame"
	}
	origins := c.Bridge.AllowedOrigins[:0]
	for _, o := range c.Bridge.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Bridge.AllowedOrigins = origins
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
		if c.Store.RedisAddr != "" {
			c.Store.Driver = "redis"
		}
	}
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Catalog.Source == "" {
		return fmt.Errorf("catalog.source is required")
	}
	if !strings.HasPrefix(c.Server.FramePath, "/") {
		return fmt.Errorf("server.frame_path must start with /")
	}
	return nil
}
