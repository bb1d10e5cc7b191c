package config

import "time"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen         string `yaml:"listen"`
	MaxConnections int    `yaml:"max_connections"` // 0 = unlimited
	ReadTimeout    string `yaml:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout"`
	ProxyTimeout   string `yaml:"proxy_timeout"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

// ReadTimeout returns the server read timeout as a duration.
func (c *Config) ReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 30*time.Second)
}

// WriteTimeout returns the server write timeout as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 60*time.Second)
}

// ProxyTimeout returns the bound on a forwarded request.
func (c *Config) ProxyTimeout() time.Duration {
	return parseDuration(c.Server.ProxyTimeout, 60*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
