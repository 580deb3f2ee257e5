package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr                 string        `mapstructure:"addr" yaml:"addr"`
	AdminAddr            string        `mapstructure:"admin_addr" yaml:"admin_addr"`
	LogLevel             string        `mapstructure:"log_level" yaml:"log_level"`
	LogDir               string        `mapstructure:"log_dir" yaml:"log_dir"`
	LogRetentionDays     int           `mapstructure:"log_retention_days" yaml:"log_retention_days"`
	AuditDBPath          string        `mapstructure:"audit_db_path" yaml:"audit_db_path"`
	MaxMessagesPerMinute int           `mapstructure:"max_messages_per_minute" yaml:"max_messages_per_minute"`
	ReadHeaderTimeout    time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		LogLevel:          "info",
		LogRetentionDays:  7,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.AdminAddr != "" {
		c.AdminAddr = other.AdminAddr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogDir != "" {
		c.LogDir = other.LogDir
	}
	if other.LogRetentionDays != 0 {
		c.LogRetentionDays = other.LogRetentionDays
	}
	if other.AuditDBPath != "" {
		c.AuditDBPath = other.AuditDBPath
	}
	if other.MaxMessagesPerMinute != 0 {
		c.MaxMessagesPerMinute = other.MaxMessagesPerMinute
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
