package config

import (
	goflag "flag"
	"time"

	flag "github.com/spf13/pflag"
)

type (
	// Config is the root server configuration.
	Config struct {
		Server     Server
		Redis      Redis
		Session    Session
		Sync       Sync
		Monitoring Monitoring
		Debug      bool
	}
	Server struct {
		Address string `fig:"address" default:":8000"`
		// AllowedOrigin restricts websocket upgrades; * accepts any origin.
		AllowedOrigin string `fig:"allowedOrigin" default:"*"`
	}
	Redis struct {
		Addr     string `fig:"addr" default:"127.0.0.1:6379"`
		Password string `fig:"password"`
		Db       int    `fig:"db"`
		// OpTimeout bounds every single store call so a slow or gone
		// Redis degrades to an explicit error instead of a hung handler.
		OpTimeout time.Duration `fig:"opTimeout" default:"3s"`
	}
	Session struct {
		// Ttl is the expiry window of an abandoned session in the store;
		// re-armed on every mutation.
		Ttl time.Duration `fig:"ttl" default:"3600s"`
		// IdLen is the length of generated session ids.
		IdLen int `fig:"idLen" default:"8"`
	}
	Sync struct {
		// ThrottleInterval is the minimum gap between two accepted
		// state publishes from one connection (~30 updates/sec).
		ThrottleInterval time.Duration `fig:"throttleInterval" default:"33ms"`
	}
	Monitoring struct {
		Port             int    `fig:"port" default:"6601"`
		URLPrefix        string `fig:"urlPrefix"`
		MetricEnabled    bool   `fig:"metricEnabled"`
		ProfilingEnabled bool   `fig:"profilingEnabled"`
	}
)

func (m Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

func NewConfig(path string) (conf Config, err error) {
	err = LoadConfig(&conf, path)
	return
}

func (c *Config) AddFlags(fs *flag.FlagSet) *Config {
	fs.StringVar(&c.Server.Address, "address", c.Server.Address, "HTTP server address")
	fs.StringVar(&c.Redis.Addr, "redis", c.Redis.Addr, "Redis server address")
	fs.DurationVar(&c.Session.Ttl, "ttl", c.Session.Ttl, "Session expiry window")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
	return c
}

// ParseFlags updates the config with command-line flag values.
func (c *Config) ParseFlags() {
	c.AddFlags(flag.CommandLine)
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	flag.Parse()
}
