package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g. --repair
// on both "tokenstream parse" and "tokenstream proxy").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling the Add*Flag helpers and
// BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagFormat     = "format"
	FlagChunkSize  = "chunk-size"
	FlagLineEvents = "line-events"
	FlagBrackets   = "brackets"
	FlagRepair     = "repair"

	FlagUpstream    = "upstream"
	FlagProxyListen = "listen"
	FlagCapture     = "capture"
	FlagWorkers     = "workers"

	FlagPublisher = "publisher"
	FlagBrokers   = "brokers"
	FlagTopic     = "topic"
)

// Flags is the registry shared by every command.
var Flags = FlagSet{
	FlagFormat: {
		Name:        "format",
		Shorthand:   "f",
		ViperKey:    "parser.format",
		Description: "Output format: json, pretty or auto (pretty on a terminal)",
	},
	FlagChunkSize: {
		Name:        "chunk-size",
		ViperKey:    "parser.chunk_size",
		Description: "Bytes read from the input per parser feed",
	},
	FlagLineEvents: {
		Name:        "line-events",
		ViperKey:    "parser.line_events",
		Description: "Emit per-line text fragment events",
	},
	FlagBrackets: {
		Name:        "brackets",
		ViperKey:    "parser.brackets",
		Description: "Track {...} blocks in the content",
	},
	FlagRepair: {
		Name:        "repair",
		ViperKey:    "parser.repair",
		Description: "Repair truncated tool call arguments at end of stream",
	},
	FlagUpstream: {
		Name:        "upstream",
		Shorthand:   "u",
		ViperKey:    "proxy.upstream",
		Description: "Upstream LLM provider URL",
	},
	FlagProxyListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "proxy.listen",
		Description: "Address for the proxy to listen on",
	},
	FlagCapture: {
		Name:        "capture",
		ViperKey:    "proxy.capture",
		Description: "Save every relayed SSE body under .tokenstream/captures",
	},
	FlagWorkers: {
		Name:        "workers",
		ViperKey:    "proxy.workers",
		Description: "Number of publish workers",
	},
	FlagPublisher: {
		Name:        "publisher",
		ViperKey:    "publisher.provider",
		Description: "Summary publisher: nop or kafka",
	},
	FlagBrokers: {
		Name:        "brokers",
		ViperKey:    "publisher.brokers",
		Description: "Comma separated kafka brokers",
	},
	FlagTopic: {
		Name:        "topic",
		ViperKey:    "publisher.topic",
		Description: "Kafka topic for stream summaries",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, key string, target *uint) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper populated only with NewDefaultConfig values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
