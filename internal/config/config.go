package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Room      RoomConfig      `yaml:"room"`
	Relay     RelayConfig     `yaml:"relay"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
}

type RoomConfig struct {
	TTL           time.Duration `yaml:"ttl" env:"ROOM_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"ROOM_SWEEP_INTERVAL"`
}

type RelayConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"RELAY_TIMEOUT"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env:"STUN_SERVERS"`
}

type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"RECONNECT_MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"RECONNECT_BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"RECONNECT_MAX_DELAY"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Room.TTL <= 0 {
		c.Room.TTL = 30 * time.Minute
	}
	if c.Room.SweepInterval <= 0 {
		c.Room.SweepInterval = 5 * time.Minute
	}
	if c.Relay.Timeout <= 0 {
		c.Relay.Timeout = 5 * time.Second
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = 5
	}
	if c.Reconnect.BaseDelay <= 0 {
		c.Reconnect.BaseDelay = time.Second
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = 30 * time.Second
	}
}
