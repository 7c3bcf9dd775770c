package config

const (
	// Output formats of "tokenstream parse".
	FormatJSON   = "json"
	FormatPretty = "pretty"
	FormatAuto   = "auto"

	// Publisher providers.
	PublisherNop   = "nop"
	PublisherKafka = "kafka"
)

const (
	defaultFormat    = FormatAuto
	defaultChunkSize = 4096

	defaultUpstream    = "https://api.openai.com"
	defaultProxyListen = ":8080"
	defaultWorkers     = 3

	defaultPublisher = PublisherNop
	defaultBrokers   = "localhost:9092"
	defaultTopic     = "tokenstream.stream.parsed"
	defaultClientID  = "tokenstream"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Parser: ParserConfig{
			Format:    defaultFormat,
			ChunkSize: defaultChunkSize,
		},
		Proxy: ProxyConfig{
			Upstream: defaultUpstream,
			Listen:   defaultProxyListen,
			Workers:  defaultWorkers,
		},
		Publisher: PublisherConfig{
			Provider: defaultPublisher,
			Brokers:  defaultBrokers,
			Topic:    defaultTopic,
			ClientID: defaultClientID,
		},
	}
}
