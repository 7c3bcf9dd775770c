// Package proxycmder provides the proxy server command.
package proxycmder

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/config"
	"github.com/papercomputeco/tokenstream/pkg/dotdir"
	"github.com/papercomputeco/tokenstream/pkg/eventstream"
	"github.com/papercomputeco/tokenstream/pkg/eventstream/kafka"
	"github.com/papercomputeco/tokenstream/pkg/eventstream/nop"
	"github.com/papercomputeco/tokenstream/pkg/logger"
	"github.com/papercomputeco/tokenstream/pkg/stream"
	"github.com/papercomputeco/tokenstream/proxy"
)

type proxyCommander struct {
	configDir string
	debug     bool

	cfg *config.Config

	// flag targets, read back through viper
	listen     string
	upstream   string
	capture    bool
	workers    uint
	publisher  string
	brokers    string
	topic      string
	lineEvents bool
	brackets   bool
	repair     bool

	logger *zap.Logger
}

const proxyLongDesc string = `Run the tapping proxy server.

The proxy transparently forwards every request to the configured upstream.
Streaming (text/event-stream) responses are relayed to the client byte for
byte while a parser consumes the same bytes. When a stream completes its
summary (sections, tool calls, usage) is published.

Publishers: nop (log only), kafka (one JSON message per stream).

Examples:
  tokenstream proxy --upstream https://openrouter.ai/api
  tokenstream proxy --capture --repair
  tokenstream proxy --publisher kafka --brokers kafka-1:9092,kafka-2:9092`

const proxyShortDesc string = "Run the tokenstream tapping proxy"

// proxyFlags are the registry flags proxy binds to viper.
var proxyFlags = []string{
	config.FlagProxyListen,
	config.FlagUpstream,
	config.FlagCapture,
	config.FlagWorkers,
	config.FlagPublisher,
	config.FlagBrokers,
	config.FlagTopic,
	config.FlagLineEvents,
	config.FlagBrackets,
	config.FlagRepair,
}

func NewProxyCmd() *cobra.Command {
	cmder := &proxyCommander{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: proxyShortDesc,
		Long:  proxyLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, proxyFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagProxyListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddBoolFlag(cmd, config.Flags, config.FlagCapture, &cmder.capture)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagPublisher, &cmder.publisher)
	config.AddStringFlag(cmd, config.Flags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagTopic, &cmder.topic)
	config.AddBoolFlag(cmd, config.Flags, config.FlagLineEvents, &cmder.lineEvents)
	config.AddBoolFlag(cmd, config.Flags, config.FlagBrackets, &cmder.brackets)
	config.AddBoolFlag(cmd, config.Flags, config.FlagRepair, &cmder.repair)

	return cmd
}

func (c *proxyCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	pcfg, err := proxyConfig(c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer pcfg.Publisher.Close()

	p, err := proxy.New(pcfg, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	c.logger.Info("starting proxy server",
		zap.String("listen", pcfg.ListenAddr),
		zap.String("upstream", pcfg.UpstreamURL),
		zap.String("publisher", c.cfg.Publisher.Provider),
		zap.String("capture_dir", pcfg.CaptureDir),
	)

	return p.Run()
}

// proxyConfig translates the merged configuration into a proxy.Config.
// The caller owns the returned publisher.
func proxyConfig(cfg *config.Config, configDir string, log *zap.Logger) (proxy.Config, error) {
	pcfg := proxy.Config{
		ListenAddr:  cfg.Proxy.Listen,
		UpstreamURL: cfg.Proxy.Upstream,
		NumWorkers:  cfg.Proxy.Workers,
		ParserOptions: []stream.Option{
			stream.WithLineEvents(cfg.Parser.LineEvents),
			stream.WithBracketTracking(cfg.Parser.Brackets),
			stream.WithRepair(cfg.Parser.Repair),
		},
	}

	if cfg.Proxy.Capture {
		dir, err := dotdir.NewManager().CaptureDir(configDir)
		if err != nil {
			return proxy.Config{}, err
		}
		pcfg.CaptureDir = dir
	}

	pub, err := newPublisher(cfg.Publisher, log)
	if err != nil {
		return proxy.Config{}, err
	}
	pcfg.Publisher = pub

	return pcfg, nil
}

func newPublisher(cfg config.PublisherConfig, log *zap.Logger) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case "", config.PublisherNop:
		return nop.NewPublisher(), nil
	case config.PublisherKafka:
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:  cfg.BrokerList(),
			Topic:    cfg.Topic,
			ClientID: cfg.ClientID,
			Logger:   log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher %q: must be nop or kafka", cfg.Provider)
	}
}
