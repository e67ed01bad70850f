package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newscast/internal/config"
	"newscast/internal/logger"
)

var cfgFile string

// NewRootCmd builds the root command with every subcommand attached,
// following the donor's NewRootCmd/cobra.OnInitialize shape.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newscast",
		Short: "Feed ingestion, story clustering, and per-user audio episode generation",
		Long: `newscast is the core of a news-to-podcast system: it clusters ingested
articles into story clusters, scores them for editorial importance, and
assembles per-user short-form audio episodes on request.

The front-end HTTP routing, authentication, user-preference storage, and
the durable queue transport that ferries episode requests to the builder
are external to this binary; see the episode-status HTTP surface and the
"serve" command's embedded queue for a single-process stand-in.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(func() {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
			return
		}
		logger.Init(cfg.App.Env)
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./episodes.yaml)")

	root.AddCommand(NewIngestCmd())
	root.AddCommand(NewServeCmd())
	root.AddCommand(NewMigrateCmd())

	return root
}
