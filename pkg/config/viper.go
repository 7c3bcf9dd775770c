package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/tokenstream/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable read by InitViper.
const EnvPrefix = "TOKENSTREAM"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the TOKENSTREAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (TOKENSTREAM_PROXY_LISTEN, TOKENSTREAM_PARSER_REPAIR, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("parser.format", d.Parser.Format)
	v.SetDefault("parser.chunk_size", d.Parser.ChunkSize)
	v.SetDefault("parser.line_events", d.Parser.LineEvents)
	v.SetDefault("parser.brackets", d.Parser.Brackets)
	v.SetDefault("parser.repair", d.Parser.Repair)

	v.SetDefault("proxy.upstream", d.Proxy.Upstream)
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.capture", d.Proxy.Capture)
	v.SetDefault("proxy.workers", d.Proxy.Workers)

	v.SetDefault("publisher.provider", d.Publisher.Provider)
	v.SetDefault("publisher.brokers", d.Publisher.Brokers)
	v.SetDefault("publisher.topic", d.Publisher.Topic)
	v.SetDefault("publisher.client_id", d.Publisher.ClientID)
}

// FromViper reads a Config back out of v after flags, env and file have
// been merged.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Parser: ParserConfig{
			Format:     v.GetString("parser.format"),
			ChunkSize:  v.GetUint("parser.chunk_size"),
			LineEvents: v.GetBool("parser.line_events"),
			Brackets:   v.GetBool("parser.brackets"),
			Repair:     v.GetBool("parser.repair"),
		},
		Proxy: ProxyConfig{
			Upstream: v.GetString("proxy.upstream"),
			Listen:   v.GetString("proxy.listen"),
			Capture:  v.GetBool("proxy.capture"),
			Workers:  v.GetUint("proxy.workers"),
		},
		Publisher: PublisherConfig{
			Provider: v.GetString("publisher.provider"),
			Brokers:  v.GetString("publisher.brokers"),
			Topic:    v.GetString("publisher.topic"),
			ClientID: v.GetString("publisher.client_id"),
		},
	}
}
