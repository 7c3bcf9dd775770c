// Package configcmder provides the config command for managing persistent
// tokenstream configuration stored in the .tokenstream/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tokenstream/pkg/cliui"
	"github.com/papercomputeco/tokenstream/pkg/config"
)

const configLongDesc string = `Manage persistent tokenstream configuration.

Configuration is stored as config.toml in the .tokenstream/ directory and
provides default values for command flags. CLI flags and TOKENSTREAM_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  parser.format, parser.chunk_size, parser.line_events,
  parser.brackets, parser.repair,
  proxy.upstream, proxy.listen, proxy.capture, proxy.workers,
  publisher.provider, publisher.brokers, publisher.topic, publisher.client_id

Use subcommands to get, set, or list configuration values:
  tokenstream config set <key> <value>    Set a configuration value
  tokenstream config get <key>            Get a configuration value
  tokenstream config list                 List all configuration values

Examples:
  tokenstream config set parser.repair true
  tokenstream config set publisher.provider kafka
  tokenstream config get proxy.upstream
  tokenstream config list`

const configShortDesc string = "Manage persistent tokenstream configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validateKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(out io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	if target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}
