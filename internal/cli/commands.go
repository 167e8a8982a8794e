package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fmtools/fmsys/pkg/checker"
	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/report"
	"github.com/fmtools/fmsys/pkg/syncer"
	"github.com/spf13/cobra"
)

func newCheckCmd(g *globals) *cobra.Command {
	var opts checker.Options
	cmd := &cobra.Command{
		Use:     "check",
		Short:   MsgCheckShort,
		GroupID: "check",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := g.newApp(out)
			if err != nil {
				return err
			}
			r := report.New(out)
			c, err := a.checker(r)
			if err != nil {
				return err
			}
			logger := logging.GetLogger("cli.check")
			logger.Info().
				Bool("autofix", opts.Autofix).
				Bool("deepHardware", opts.DeepHardware).
				Bool("deepFileSystem", opts.DeepFileSystem).
				Msg("Starting full check")

			if err := c.FullCheck(cmd.Context(), opts); err != nil {
				return err
			}
			return summarise(out, r)
		},
	}
	cmd.Flags().BoolVar(&opts.Autofix, "autofix", false, MsgFlagAutofix)
	cmd.Flags().BoolVar(&opts.DeepHardware, "deep-hardware", false, MsgFlagDeepHardware)
	cmd.Flags().BoolVar(&opts.DeepFileSystem, "deep-filesystem", false, MsgFlagDeepFilesystem)
	return cmd
}

// summarise prints the findings per domain and fails when any error was
// found
func summarise(out io.Writer, r *report.Reporter) error {
	findings := r.Findings()
	if len(findings) == 0 {
		_, _ = fmt.Fprintln(out, MsgCheckClean)
		return nil
	}
	renderSummary(out, findings)
	errs, warns := r.Count(report.Error)+r.Count(report.Fatal), r.Count(report.Warning)
	_, _ = fmt.Fprintf(out, MsgCheckSummary, errs, warns)
	if errs > 0 {
		return fmt.Errorf(MsgErrCheckFailed, errs)
	}
	return nil
}

func newBasicCheckCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "basic-check",
		Short:   MsgBasicCheckShort,
		GroupID: "check",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.basicCheck(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), MsgBasicCheckPassed)
			return nil
		},
	}
}

func newSyncCmd(g *globals) *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:     "sync",
		Short:   MsgSyncShort,
		GroupID: "manage",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := g.newApp(out)
			if err != nil {
				return err
			}
			if err := a.basicCheck(cmd.Context()); err != nil {
				return err
			}
			if jobs <= 0 {
				jobs = a.cfg.Sync.Jobs
			}
			if err := a.syncAll(cmd.Context(), out, jobs); err != nil {
				return fmt.Errorf(MsgErrSync, err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, MsgFlagJobs)
	return cmd
}

// syncAll syncs the repositories, then the overlays. Overlays go second
// because their duplicate removal looks at the repository contents.
func (a *app) syncAll(ctx context.Context, out io.Writer, jobs int) error {
	var repoTasks []syncer.Task
	for _, name := range a.repos.List() {
		name := name
		repoTasks = append(repoTasks, syncer.Task{
			Name: "repository " + name,
			Run: func(ctx context.Context, w io.Writer) error {
				return a.repos.WithOutput(w).Sync(ctx, name)
			},
		})
	}
	repoErr := syncer.Run(ctx, repoTasks, out, jobs)

	names, err := a.overlays.List()
	if err != nil {
		return err
	}
	var overlayTasks []syncer.Task
	for _, name := range names {
		name := name
		overlayTasks = append(overlayTasks, syncer.Task{
			Name: "overlay " + name,
			Run: func(ctx context.Context, w io.Writer) error {
				return a.overlays.WithOutput(w).SyncOverlay(ctx, name)
			},
		})
	}
	return errors.Join(repoErr, syncer.Run(ctx, overlayTasks, out, jobs))
}

func newGenConfigCmd(g *globals) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:     "genconfig",
		Short:   MsgGenConfigShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := config.GenerateConfig(config.Default())
			if err != nil {
				return err
			}
			if !write {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			}
			path := config.DefaultConfigFile
			if g.configPath != "" {
				path = g.configPath
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgConfigWritten, path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, MsgFlagWrite)
	return cmd
}
