package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Gorillas-Team/Gorilink/internal/radio"
	"github.com/Gorillas-Team/Gorilink/internal/socket"
)

const (
	DefaultPrefix            = "!"
	DefaultSource            = "yt"
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 2333
	DefaultPassword          = "youshallnotpass"
	DefaultReconnectInterval = 5000
	DefaultResumeTimeout     = 60
	DefaultRESTTimeout       = 10000
)

type Config struct {
	Token         string          `json:"token"`
	Prefix        string          `json:"prefix"`
	Shards        int             `json:"shards"`
	LogLevel      string          `json:"log_level"`
	MetricsAddr   string          `json:"metrics_addr"`
	DefaultSource string          `json:"default_source"`
	DJRole        string          `json:"dj_role"`
	AdminRole     string          `json:"admin_role"`
	Streams       []radio.Station `json:"streams"`
	DBPath        string          `json:"db_path"`
	Nodes         []NodeConfig    `json:"nodes"`
}

type NodeConfig struct {
	Tag                 string  `json:"tag"`
	Host                string  `json:"host"`
	Port                int     `json:"port"`
	Password            string  `json:"password"`
	Secure              bool    `json:"secure"`
	ReconnectIntervalMS int     `json:"reconnect_interval_ms"`
	ResumeKey           string  `json:"resume_key"`
	Resuming            bool    `json:"resuming"`
	ResumeTimeoutS      int     `json:"resume_timeout_s"`
	RESTTimeoutMS       int     `json:"rest_timeout_ms"`
	RESTRate            float64 `json:"rest_rate"`
}

// envOverrides are applied on top of the file. Zero values leave the file value alone.
type envOverrides struct {
	Token         string  `env:"DISCORD_TOKEN"`
	Prefix        string  `env:"COMMAND_PREFIX"`
	Shards        int     `env:"SHARD_COUNT"`
	LogLevel      string  `env:"LOG_LEVEL"`
	MetricsAddr   string  `env:"METRICS_ADDR"`
	DefaultSource string  `env:"DEFAULT_SOURCE"`
	DBPath        string  `env:"DB_PATH"`
	Node          nodeEnv `envPrefix:"LAVALINK_"`
}

type nodeEnv struct {
	Tag      string `env:"TAG"`
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"`
	Password string `env:"PASSWORD"`
}

// Load reads the JSON file at configPath (missing file is allowed), then .env and the
// process environment, then applies defaults and validates.
func Load(configPath string) (Config, error) {
	var config Config

	if configPath == "" {
		configPath = "config.json"
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", absPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}

	_ = godotenv.Load()

	if err := config.applyEnv(); err != nil {
		return Config{}, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if o.Token != "" {
		c.Token = o.Token
	}
	if o.Prefix != "" {
		c.Prefix = o.Prefix
	}
	if o.Shards != 0 {
		c.Shards = o.Shards
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.MetricsAddr != "" {
		c.MetricsAddr = o.MetricsAddr
	}
	if o.DefaultSource != "" {
		c.DefaultSource = o.DefaultSource
	}
	if o.DBPath != "" {
		c.DBPath = o.DBPath
	}

	if len(c.Nodes) == 0 && o.Node.Host != "" {
		c.Nodes = append(c.Nodes, NodeConfig{
			Tag:      o.Node.Tag,
			Host:     o.Node.Host,
			Port:     o.Node.Port,
			Password: o.Node.Password,
		})
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}

	if c.Shards == 0 {
		c.Shards = 1
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.DefaultSource == "" {
		c.DefaultSource = DefaultSource
	}

	for i := range c.Nodes {
		c.Nodes[i].applyDefaults()
	}
}

func (n *NodeConfig) applyDefaults() {
	if n.Host == "" {
		n.Host = DefaultHost
	}
	if n.Port == 0 {
		n.Port = DefaultPort
	}
	if n.Password == "" {
		n.Password = DefaultPassword
	}
	if n.ReconnectIntervalMS == 0 {
		n.ReconnectIntervalMS = DefaultReconnectInterval
	}
	if n.ResumeTimeoutS == 0 {
		n.ResumeTimeoutS = DefaultResumeTimeout
	}
	if n.RESTTimeoutMS == 0 {
		n.RESTTimeoutMS = DefaultRESTTimeout
	}
	if n.Resuming && n.ResumeKey == "" {
		n.ResumeKey = uuid.NewString()
	}
}

func (c Config) Validate() error {
	if c.Token == "" {
		return errors.New("token is required in config or DISCORD_TOKEN")
	}

	if c.Shards < 0 {
		return fmt.Errorf("shards must be positive, got %d", c.Shards)
	}

	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.Port < 1 || n.Port > 65535 {
			return fmt.Errorf("nodes[%d].port out of range: %d", i, n.Port)
		}
		if n.ReconnectIntervalMS < 0 {
			return fmt.Errorf("nodes[%d].reconnect_interval_ms must not be negative", i)
		}
		if n.RESTRate < 0 {
			return fmt.Errorf("nodes[%d].rest_rate must not be negative", i)
		}

		key := n.Options().Key()
		if seen[key] {
			return fmt.Errorf("nodes[%d]: duplicate node %q", i, key)
		}
		seen[key] = true
	}

	for i, st := range c.Streams {
		if st.Name == "" || st.URL == "" {
			return fmt.Errorf("streams[%d] needs a name and a url", i)
		}
	}

	return nil
}

// Options converts the file representation into socket options.
func (n NodeConfig) Options() socket.Options {
	return socket.Options{
		Tag:               n.Tag,
		Host:              n.Host,
		Port:              n.Port,
		Password:          n.Password,
		Secure:            n.Secure,
		ReconnectInterval: time.Duration(n.ReconnectIntervalMS) * time.Millisecond,
		ResumeKey:         n.ResumeKey,
		ResumeTimeout:     time.Duration(n.ResumeTimeoutS) * time.Second,
		RESTTimeout:       time.Duration(n.RESTTimeoutMS) * time.Millisecond,
		RESTRate:          n.RESTRate,
	}
}

func (c Config) NodeOptions() []socket.Options {
	opts := make([]socket.Options, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		opts = append(opts, n.Options())
	}
	return opts
}
