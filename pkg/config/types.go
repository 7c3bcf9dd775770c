package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent tokenstream configuration stored as
// config.toml in the .tokenstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Parser    ParserConfig    `toml:"parser"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Publisher PublisherConfig `toml:"publisher"`
}

// ParserConfig holds settings shared by every command that runs a stream
// parser.
type ParserConfig struct {
	// Format is the output format of "tokenstream parse": json, pretty or auto.
	Format string `toml:"format,omitempty"`

	// ChunkSize is the read size used when feeding a file into the parser.
	ChunkSize uint `toml:"chunk_size,omitempty"`

	LineEvents bool `toml:"line_events,omitempty"`
	Brackets   bool `toml:"brackets,omitempty"`
	Repair     bool `toml:"repair,omitempty"`
}

// ProxyConfig holds proxy-specific settings.
type ProxyConfig struct {
	Upstream string `toml:"upstream,omitempty"`
	Listen   string `toml:"listen,omitempty"`

	// Capture writes every relayed SSE body to .tokenstream/captures/.
	Capture bool `toml:"capture,omitempty"`

	Workers uint `toml:"workers,omitempty"`
}

// PublisherConfig selects where parsed stream summaries are published.
type PublisherConfig struct {
	// Provider is "nop" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
	ClientID string `toml:"client_id,omitempty"`
}

// BrokerList splits Brokers on commas, dropping blanks.
func (p PublisherConfig) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(p.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"parser.format": {
		get: func(c *Config) string { return c.Parser.Format },
		set: func(c *Config, v string) error {
			switch v {
			case FormatJSON, FormatPretty, FormatAuto:
				c.Parser.Format = v
				return nil
			default:
				return fmt.Errorf("invalid value for parser.format: %q (expected %s, %s or %s)", v, FormatJSON, FormatPretty, FormatAuto)
			}
		},
	},
	"parser.chunk_size": {
		get: func(c *Config) string { return formatUint(c.Parser.ChunkSize) },
		set: func(c *Config, v string) error { return parseUint("parser.chunk_size", v, &c.Parser.ChunkSize) },
	},
	"parser.line_events": {
		get: func(c *Config) string { return strconv.FormatBool(c.Parser.LineEvents) },
		set: func(c *Config, v string) error { return parseBool("parser.line_events", v, &c.Parser.LineEvents) },
	},
	"parser.brackets": {
		get: func(c *Config) string { return strconv.FormatBool(c.Parser.Brackets) },
		set: func(c *Config, v string) error { return parseBool("parser.brackets", v, &c.Parser.Brackets) },
	},
	"parser.repair": {
		get: func(c *Config) string { return strconv.FormatBool(c.Parser.Repair) },
		set: func(c *Config, v string) error { return parseBool("parser.repair", v, &c.Parser.Repair) },
	},
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.capture": {
		get: func(c *Config) string { return strconv.FormatBool(c.Proxy.Capture) },
		set: func(c *Config, v string) error { return parseBool("proxy.capture", v, &c.Proxy.Capture) },
	},
	"proxy.workers": {
		get: func(c *Config) string { return formatUint(c.Proxy.Workers) },
		set: func(c *Config, v string) error { return parseUint("proxy.workers", v, &c.Proxy.Workers) },
	},
	"publisher.provider": {
		get: func(c *Config) string { return c.Publisher.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case PublisherNop, PublisherKafka:
				c.Publisher.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for publisher.provider: %q (expected %s or %s)", v, PublisherNop, PublisherKafka)
			}
		},
	},
	"publisher.brokers": {
		get: func(c *Config) string { return c.Publisher.Brokers },
		set: func(c *Config, v string) error { c.Publisher.Brokers = v; return nil },
	},
	"publisher.topic": {
		get: func(c *Config) string { return c.Publisher.Topic },
		set: func(c *Config, v string) error { c.Publisher.Topic = v; return nil },
	},
	"publisher.client_id": {
		get: func(c *Config) string { return c.Publisher.ClientID },
		set: func(c *Config, v string) error { c.Publisher.ClientID = v; return nil },
	},
}

func formatUint(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string, dst *uint) error {
	n, err := strconv.ParseUint(v, 10, 0)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = uint(n)
	return nil
}

func parseBool(key, v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = b
	return nil
}
