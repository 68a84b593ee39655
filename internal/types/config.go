package types

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

// AppConfig drives the bot process. It is read from a YAML file and then overridden by
// environment variables, see ApplyEnv.
// MaxWhitelistSlots is only the fallback capacity: the live value is re-read from
// MAX_WHITELIST_SLOTS on every request (SlotLimitFromEnv).
// Audit.SNSArn enables publishing audit events to SNS; Audit.Filter is an optional JMESPath
// expression over the event that must yield true for the event to be published.
type AppConfig struct {
	Port              int         `json:"port" yaml:"port"`
	MaxWhitelistSlots int         `json:"max_whitelist_slots" yaml:"max_whitelist_slots"`
	Audit             AuditConfig `json:"audit" yaml:"audit"`
}

type AuditConfig struct {
	SNSArn    string `json:"sns_arn" yaml:"sns_arn"`
	Filter    string `json:"filter" yaml:"filter"`
	QueueSize int    `json:"queue_size" yaml:"queue_size"`
}

const (
	PortEnvKey       = "PORT"
	MaxSlotsEnvKey   = "MAX_WHITELIST_SLOTS"
	AuditSNSEnvKey   = "AUDIT_SNS_ARN"
	AuditFilterKey   = "AUDIT_FILTER"
	DefaultPort      = 8080
	DefaultMaxSlots  = 5
	DefaultQueueSize = 64

	UserIDHdrName   = "x-user-id"
	UserNameHdrName = "x-user-name"
)

// DefaultAppConfig returns the configuration used when no file is given.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Port:              DefaultPort,
		MaxWhitelistSlots: DefaultMaxSlots,
		Audit:             AuditConfig{QueueSize: DefaultQueueSize},
	}
}

// LoadAppConfig reads the YAML file at path on top of the defaults. An empty path yields the
// defaults.
func LoadAppConfig(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, Err(ErrInvalidConfig, err, "read %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, Err(ErrInvalidConfig, err, "parse %s", path)
	}
	if cfg.Audit.QueueSize == 0 {
		cfg.Audit.QueueSize = DefaultQueueSize
	}
	return cfg, nil
}

// ApplyEnv overrides fields with the values of their environment variables, if set.
func (c *AppConfig) ApplyEnv() error {
	if v := os.Getenv(PortEnvKey); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Err(ErrInvalidConfig, err, "invalid %s", PortEnvKey)
		}
		c.Port = p
	}
	if v := os.Getenv(MaxSlotsEnvKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Err(ErrInvalidConfig, err, "invalid %s", MaxSlotsEnvKey)
		}
		c.MaxWhitelistSlots = n
	}
	if v := os.Getenv(AuditSNSEnvKey); v != "" {
		c.Audit.SNSArn = v
	}
	if v := os.Getenv(AuditFilterKey); v != "" {
		c.Audit.Filter = v
	}
	return nil
}

func (c AppConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535")
	}
	if c.MaxWhitelistSlots <= 0 {
		return fmt.Errorf("max_whitelist_slots must be positive")
	}
	if c.Audit.QueueSize < 0 {
		return fmt.Errorf("audit.queue_size must be non-negative. 0 for default")
	}
	return nil
}

// SlotLimitFromEnv returns a capacity provider that reads MAX_WHITELIST_SLOTS on each call and
// falls back to fallback when the variable is unset or not a positive integer.
func SlotLimitFromEnv(fallback int) func() int {
	return func() int {
		v := os.Getenv(MaxSlotsEnvKey)
		if v == "" {
			return fallback
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fallback
		}
		return n
	}
}
