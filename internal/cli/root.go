// Package cli builds the fmsys command tree
package cli

import (
	"fmt"

	"github.com/fmtools/fmsys/internal/version"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(execx.NewRunner())
}

func newRootCmd(runner execx.Runner) *cobra.Command {
	g := &globals{runner: runner}

	rootCmd := &cobra.Command{
		Use:     "fmsys",
		Short:   MsgRootShort,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(g.verbosity)
			log.Debug().Str("command", cmd.CommandPath()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&g.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", MsgFlagConfig)
	rootCmd.PersistentFlags().StringVar(&g.root, "root", "", MsgFlagRoot)

	rootCmd.AddGroup(&cobra.Group{ID: "check", Title: "CHECK:"})
	rootCmd.AddGroup(&cobra.Group{ID: "manage", Title: "MANAGE:"})
	rootCmd.AddGroup(&cobra.Group{ID: "misc", Title: "MISC:"})

	rootCmd.AddCommand(newCheckCmd(g))
	rootCmd.AddCommand(newBasicCheckCmd(g))
	rootCmd.AddCommand(newSyncCmd(g))
	rootCmd.AddCommand(newRepoCmd(g))
	rootCmd.AddCommand(newOverlayCmd(g))
	rootCmd.AddCommand(newGenConfigCmd(g))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   MsgVersionShort,
		GroupID: "misc",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
		},
	}
}
