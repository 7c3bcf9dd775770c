// Package initcmder provides the init command for initializing a local
// .tokenstream directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tokenstream/pkg/cliui"
	"github.com/papercomputeco/tokenstream/pkg/config"
)

const (
	dirName = ".tokenstream"

	fetchTimeout = 10 * time.Second

	// maxRemoteConfig caps the size of a config fetched with --preset <url>.
	maxRemoteConfig = 1 << 20
)

const initLongDesc string = `Initialize a new .tokenstream/ directory in the current working directory.

Creates a local .tokenstream/ directory that takes precedence over the default
~/.tokenstream/ directory for configuration and proxy captures, and writes
a config.toml into it.

--preset selects the upstream the proxy points at (openai, openrouter,
ollama) or names an http(s) URL to fetch a complete config.toml from.
An existing config.toml is only replaced when --preset is given.

Examples:
  tokenstream init
  tokenstream init --preset openrouter
  tokenstream init --preset https://example.com/tokenstream.toml`

const initShortDesc string = "Initialize a local .tokenstream/ directory"

type initCommander struct {
	preset string
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")

	return cmd
}

func (c *initCommander) run(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, statErr := os.Stat(dir)
	existed := statErr == nil && info.IsDir()

	var cfg *config.Config
	if c.preset != "" {
		cfg, err = c.presetConfig(ctx)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .tokenstream directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, err = os.Stat(cfger.GetTarget())
	hasConfig := err == nil

	switch {
	case cfg != nil:
		if err := cfger.SaveConfig(cfg); err != nil {
			return err
		}
	case !hasConfig:
		if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
			return err
		}
	}

	if existed {
		fmt.Fprintf(c.out, "%s Already initialized: %s\n", cliui.SuccessMark, dir)
	} else {
		fmt.Fprintf(c.out, "%s Initialized .tokenstream directory: %s\n", cliui.SuccessMark, dir)
	}
	if cfg != nil {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("proxy.upstream"), cliui.ValueStyle.Render(cfg.Proxy.Upstream))
	}

	return nil
}

// presetConfig resolves --preset as a URL or a named preset.
func (c *initCommander) presetConfig(ctx context.Context) (*config.Config, error) {
	if strings.HasPrefix(c.preset, "http://") || strings.HasPrefix(c.preset, "https://") {
		return fetchRemoteConfig(ctx, c.preset)
	}
	return config.PresetConfig(c.preset)
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
