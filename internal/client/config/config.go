package config

import (
	"path/filepath"
	"time"
)

// Config holds runtime settings for the chat CLI.
type Config struct {
	ServerEndpointAddr  string        `envconfig:"SERVER_ADDR"`
	AccessToken         string        `envconfig:"TOKEN"`
	IdentityFile        string        `envconfig:"IDENTITY_FILE"`
	LocalDBPath         string        `envconfig:"DB"`
	OnlineCheckInterval time.Duration `envconfig:"ONLINE_CHECK_INTERVAL"`
}

// IdentityDir is the working-directory subfolder holding the local age
// identity and database by default.
const IdentityDir = ".arctic"

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.IdentityFile = filepath.Join(IdentityDir, "identity.txt")
	c.LocalDBPath = filepath.Join(IdentityDir, "client.db")
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON, the environment and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
