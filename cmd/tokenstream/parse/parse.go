// Package parsecmder provides the parse command, which runs a captured or
// piped SSE stream through the parser and prints the events.
package parsecmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/tokenstream/pkg/cliui"
	"github.com/papercomputeco/tokenstream/pkg/config"
	"github.com/papercomputeco/tokenstream/pkg/event"
	"github.com/papercomputeco/tokenstream/pkg/follow"
	"github.com/papercomputeco/tokenstream/pkg/logger"
	"github.com/papercomputeco/tokenstream/pkg/stream"
	"github.com/papercomputeco/tokenstream/pkg/tap"
	"github.com/papercomputeco/tokenstream/pkg/toolcall"
)

type parseCommander struct {
	format     string
	chunkSize  uint
	lineEvents bool
	brackets   bool
	repair     bool

	follow  bool
	stats   bool
	noColor bool
	debug   bool

	in     io.Reader
	out    io.Writer
	logger *zap.Logger
}

const parseLongDesc string = `Parse an SSE token stream.

Reads an OpenAI compatible stream from the given file, or from stdin when no
file is given, and prints every parser event in order.

--format json writes one JSON object per event (NDJSON). --format pretty
renders prose, framed code blocks and tool calls for reading. The default,
auto, picks pretty on a terminal and json otherwise.

--follow keeps reading a file that is still being written, such as a proxy
capture, until the stream ends.

Examples:
  tokenstream parse capture.sse
  curl -sN https://api.openai.com/v1/chat/completions ... | tokenstream parse -f pretty
  tokenstream parse --follow --repair .tokenstream/captures/<id>.sse`

const parseShortDesc string = "Parse an SSE token stream into events"

// parseFlags are the registry flags parse binds to viper.
var parseFlags = []string{
	config.FlagFormat,
	config.FlagChunkSize,
	config.FlagLineEvents,
	config.FlagBrackets,
	config.FlagRepair,
}

func NewParseCmd() *cobra.Command {
	cmder := &parseCommander{}

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: parseShortDesc,
		Long:  parseLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, parseFlags)
			cfg := config.FromViper(v)

			cmder.format = cfg.Parser.Format
			cmder.chunkSize = cfg.Parser.ChunkSize
			cmder.lineEvents = cfg.Parser.LineEvents
			cmder.brackets = cfg.Parser.Brackets
			cmder.repair = cfg.Parser.Repair

			switch cmder.format {
			case config.FormatJSON, config.FormatPretty, config.FormatAuto:
			default:
				return fmt.Errorf("invalid format %q: must be json, pretty or auto", cmder.format)
			}
			if cmder.chunkSize == 0 {
				return errors.New("chunk size must be positive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.logger = logger.NewLoggerWithWriters(cmder.debug, cmd.ErrOrStderr())
			defer func() { _ = cmder.logger.Sync() }()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return cmder.run(cmd.Context(), path)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagFormat, &cmder.format)
	config.AddUintFlag(cmd, config.Flags, config.FlagChunkSize, &cmder.chunkSize)
	config.AddBoolFlag(cmd, config.Flags, config.FlagLineEvents, &cmder.lineEvents)
	config.AddBoolFlag(cmd, config.Flags, config.FlagBrackets, &cmder.brackets)
	config.AddBoolFlag(cmd, config.Flags, config.FlagRepair, &cmder.repair)

	cmd.Flags().BoolVar(&cmder.follow, "follow", false, "Keep reading the file as it grows until the stream ends")
	cmd.Flags().BoolVar(&cmder.stats, "stats", false, "Emit a stats event just before the stream end event")
	cmd.Flags().BoolVar(&cmder.noColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable colored pretty output")

	return cmd
}

func (c *parseCommander) run(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, closeSrc, err := c.open(ctx, path)
	if err != nil {
		return err
	}
	defer closeSrc()

	parser := stream.New(c.parserOptions()...)

	pretty := c.format == config.FormatPretty ||
		(c.format == config.FormatAuto && cliui.IsTerminal(c.out))

	var (
		render *cliui.Pretty
		encErr error
	)
	if pretty {
		if c.noColor {
			cliui.DisableColor()
		}
		render = cliui.NewPretty(c.out)
		parser.Subscribe(func(ev event.Event) { render.Handle(c.repaired(ev)) })
	} else {
		enc := json.NewEncoder(c.out)
		parser.Subscribe(func(ev event.Event) {
			if encErr == nil {
				encErr = enc.Encode(c.repaired(ev))
			}
		})
	}

	// A followed file never reports EOF, so the stream end stops the read.
	parser.On(event.TypeStreamEnd, func(event.Event) { cancel() })

	start := time.Now()
	err = parser.Run(ctx, &chunkReader{r: src, n: int(c.chunkSize)})
	if err != nil && !(errors.Is(err, context.Canceled) && parser.Finalized()) {
		return err
	}

	summary := parser.Summary()
	c.logger.Debug("stream parsed",
		zap.String("id", summary.ID),
		zap.Int("frames", summary.Frames),
		zap.Int("skipped", summary.Skipped),
		zap.Uint64("events", summary.Events),
		zap.Bool("graceful", summary.Graceful),
	)

	if render != nil {
		render.Footer(summary.FinishReason, summary.Usage, time.Since(start))
		return render.Err()
	}
	if encErr != nil {
		return fmt.Errorf("writing events: %w", encErr)
	}
	return nil
}

// open returns the stream source and its cleanup.
func (c *parseCommander) open(ctx context.Context, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		if c.follow {
			return nil, nil, errors.New("--follow needs a file argument")
		}
		return c.in, func() {}, nil
	}

	if c.follow {
		r, err := follow.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening stream: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func (c *parseCommander) parserOptions() []stream.Option {
	return []stream.Option{
		stream.WithLogger(c.logger),
		stream.WithLineEvents(c.lineEvents),
		stream.WithBracketTracking(c.brackets),
		stream.WithRepair(c.repair),
		stream.WithStats(c.stats),
		stream.WithMetadata(tap.Callbacks{
			OnID: func(id string) {
				c.logger.Debug("stream id", zap.String("id", id))
			},
			OnUsage: func(r tap.Report) {
				if r.HasUsageData {
					c.logger.Debug("stream usage",
						zap.Int("prompt_tokens", r.Usage.PromptTokens),
						zap.Int("completion_tokens", r.Usage.CompletionTokens),
					)
				}
			},
		}),
	}
}

// repaired returns ev with repaired arguments when --repair is set and ev
// completes a tool call. Other events are returned unchanged.
func (c *parseCommander) repaired(ev event.Event) event.Event {
	if !c.repair || ev.Type != event.TypeToolComplete || ev.Tool == nil {
		return ev
	}

	st := toolcall.RepairState(toolcall.State{Arguments: ev.Tool.Arguments, Complete: true})
	if !st.Repaired {
		return ev
	}

	tool := *ev.Tool
	tool.Arguments = st.Arguments
	tool.Repaired = true
	ev.Tool = &tool
	return ev
}

// chunkReader caps every Read at n bytes.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}
