package cli

import (
	"fmt"
	"strconv"

	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/spf13/cobra"
)

func newRepoCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repo",
		Short:   MsgRepoShort,
		GroupID: "manage",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: MsgRepoListShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), "Name", "Priority", "Sync", "Present")
			for _, name := range a.repos.List() {
				r, err := a.repos.Get(name)
				if err != nil {
					return err
				}
				t.Append([]string{
					r.Name,
					strconv.Itoa(r.Priority),
					r.SyncType,
					strconv.FormatBool(filesystem.IsDir(a.fs, a.repos.Directory(name))),
				})
			}
			t.Render()
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: MsgRepoAddShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.repos.Create(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgRepoCreated, args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sync NAME",
		Short: MsgRepoSyncShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return a.repos.Sync(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(newRepoCheckCmd(g))
	return cmd
}

func newRepoCheckCmd(g *globals) *cobra.Command {
	var autofix bool
	cmd := &cobra.Command{
		Use:   "check NAME",
		Short: MsgRepoCheckShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.repos.Check(cmd.Context(), args[0], autofix); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), MsgCheckClean)
			return nil
		},
	}
	cmd.Flags().BoolVar(&autofix, "autofix", false, MsgFlagAutofix)
	return cmd
}
