// Package tokenstreamcmder
package tokenstreamcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/tokenstream/cmd/tokenstream/config"
	initcmder "github.com/papercomputeco/tokenstream/cmd/tokenstream/init"
	parsecmder "github.com/papercomputeco/tokenstream/cmd/tokenstream/parse"
	proxycmder "github.com/papercomputeco/tokenstream/cmd/tokenstream/proxy"
	versioncmder "github.com/papercomputeco/tokenstream/cmd/version"
)

const tokenstreamLongDesc string = `Tokenstream parses LLM token streams as they arrive.

It turns OpenAI compatible SSE bodies into ordered events: prose and code
sections, assembled tool calls, images and usage.

  tokenstream parse [file]   Parse a captured stream (or stdin)
  tokenstream proxy          Run a tapping proxy in front of a provider
  tokenstream init           Create a local .tokenstream/ directory
  tokenstream config         Manage persistent configuration`

const tokenstreamShortDesc string = "Tokenstream - incremental LLM stream parsing"

func NewTokenstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tokenstream",
		Short:         tokenstreamShortDesc,
		Long:          tokenstreamLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .tokenstream/ directory")

	// Add subcommands
	cmd.AddCommand(parsecmder.NewParseCmd())
	cmd.AddCommand(proxycmder.NewProxyCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
