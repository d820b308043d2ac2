package flipr

import (
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/joshp123/gohome-flipr/internal/config"
)

const (
	defaultBaseURL      = "https://apis.goflipr.com"
	defaultPollInterval = 60 * time.Second
)

// Config defines runtime configuration for the Flipr plugin.
type Config struct {
	BaseURL      string
	Username     string
	Password     string
	PollInterval time.Duration
	Names        []NameRule
}

// NameRule renames accessories whose serial matches Pattern.
type NameRule struct {
	Pattern glob.Glob
	Name    string
}

func ConfigFromFile(cfg config.FliprConfig) (Config, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return Config{}, fmt.Errorf("flipr username and password are required")
	}

	interval, err := cfg.Interval()
	if err != nil {
		return Config{}, err
	}

	rules := make([]NameRule, 0, len(cfg.NameOverrides))
	for _, o := range cfg.NameOverrides {
		g, err := glob.Compile(o.Match)
		if err != nil {
			return Config{}, fmt.Errorf("flipr name override %q: %w", o.Match, err)
		}
		rules = append(rules, NameRule{Pattern: g, Name: o.Name})
	}

	return Config{
		BaseURL:      cfg.BaseURL,
		Username:     cfg.Username,
		Password:     cfg.Password,
		PollInterval: interval,
		Names:        rules,
	}, nil
}

// displayName returns the first matching override, else the serial.
func (c Config) displayName(serial string) string {
	for _, rule := range c.Names {
		if rule.Pattern.Match(serial) {
			return strings.ReplaceAll(rule.Name, "{serial}", serial)
		}
	}
	return serial
}

func (c Config) interval() time.Duration {
	if c.PollInterval <= 0 {
		return defaultPollInterval
	}
	return c.PollInterval
}
