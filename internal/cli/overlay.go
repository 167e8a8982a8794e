package cli

import (
	"fmt"
	"strconv"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/overlay"
	"github.com/fmtools/fmsys/pkg/overlaydb"
	"github.com/spf13/cobra"
)

func newOverlayCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "overlay",
		Short:   MsgOverlayShort,
		GroupID: "manage",
	}
	cmd.AddCommand(newOverlayListCmd(g))
	cmd.AddCommand(newOverlayAddCmd(g))
	cmd.AddCommand(newOverlayAddSourceCmd(g, overlay.Trusted))
	cmd.AddCommand(newOverlayAddSourceCmd(g, overlay.Transient))
	cmd.AddCommand(newOverlayCheckCmd(g))
	cmd.AddCommand(&cobra.Command{
		Use:   "remove NAME",
		Short: MsgOverlayRemove,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !a.overlays.Exists(args[0]) {
				return errors.Newf(errors.ErrNotFound, "overlay %s does not exist", args[0])
			}
			if err := a.overlays.RemoveOverlay(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgOverlayRemoved, args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sync NAME",
		Short: MsgOverlaySync,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return a.overlays.SyncOverlay(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "enable NAME PACKAGE",
		Short: MsgOverlayEnable,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.overlays.EnableOverlayPackage(args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgPackageEnabled, args[1], args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disable NAME PACKAGE",
		Short: MsgOverlayDisable,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.overlays.DisableOverlayPackage(args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgPackageDisabled, args[1], args[0])
			return nil
		},
	})
	return cmd
}

func newOverlayListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: MsgOverlayList,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := g.newApp(out)
			if err != nil {
				return err
			}
			names, err := a.overlays.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				_, _ = fmt.Fprintln(out, MsgNoOverlays)
				return nil
			}
			t := newTable(out, "Name", "Type", "Source", "Packages")
			for _, name := range names {
				o, err := a.overlays.Get(name)
				if err != nil {
					t.Append([]string{name, "invalid", err.Error(), ""})
					continue
				}
				pkgs, _ := overlay.LivePackages(a.fs, a.overlays.Dir(name))
				t.Append([]string{name, string(o.Variant), o.SyncURI, strconv.Itoa(len(pkgs))})
			}
			t.Render()
			return nil
		},
	}
}

// newOverlayAddCmd adds an overlay. Without --url the overlay is looked up
// in the overlay list, which also decides whether it is trusted.
func newOverlayAddCmd(g *globals) *cobra.Command {
	var (
		vcs, url        string
		trusted, static bool
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: MsgOverlayAdd,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.basicCheck(cmd.Context()); err != nil {
				return err
			}

			if static {
				if vcs != "" || url != "" {
					return errors.New(errors.ErrInvalidInput, MsgErrVariant)
				}
				if err := a.overlays.AddStaticOverlay(name); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgOverlayAdded, overlay.Static, name)
				return nil
			}

			if url == "" {
				db, err := overlaydb.Load(a.paths.OverlayDB())
				if err != nil {
					return fmt.Errorf(MsgErrOverlayDB, name, err)
				}
				e, err := db.Lookup(name)
				if err != nil {
					return fmt.Errorf(MsgErrOverlayDB, name, err)
				}
				vcs, url = e.VCS, e.URL
				trusted = trusted || e.Trusted()
			}
			if vcs == "" {
				vcs = overlay.VCSGit
			}

			variant := overlay.Transient
			if trusted {
				variant = overlay.Trusted
				err = a.overlays.AddTrustedOverlay(cmd.Context(), name, vcs, url)
			} else {
				err = a.overlays.AddTransientOverlay(cmd.Context(), name, vcs, url)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgOverlayAdded, variant, name)
			return nil
		},
	}
	cmd.Flags().StringVar(&vcs, "vcs", "", MsgFlagVCS)
	cmd.Flags().StringVar(&url, "url", "", MsgFlagURL)
	cmd.Flags().BoolVar(&trusted, "trusted", false, MsgFlagTrusted)
	cmd.Flags().BoolVar(&static, "static", false, MsgFlagStatic)
	return cmd
}

// newOverlayAddSourceCmd adds an overlay of the given variant from an
// explicit VCS source
func newOverlayAddSourceCmd(g *globals, variant overlay.Variant) *cobra.Command {
	short := MsgOverlayAddTransient
	if variant == overlay.Trusted {
		short = MsgOverlayAddTrusted
	}
	return &cobra.Command{
		Use:   "add-" + string(variant) + " NAME VCS URL",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.basicCheck(cmd.Context()); err != nil {
				return err
			}
			if variant == overlay.Trusted {
				err = a.overlays.AddTrustedOverlay(cmd.Context(), args[0], args[1], args[2])
			} else {
				err = a.overlays.AddTransientOverlay(cmd.Context(), args[0], args[1], args[2])
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), MsgOverlayAdded, variant, args[0])
			return nil
		},
	}
}

func newOverlayCheckCmd(g *globals) *cobra.Command {
	var content, autofix bool
	cmd := &cobra.Command{
		Use:   "check NAME",
		Short: MsgOverlayCheck,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.overlays.CheckOverlay(cmd.Context(), args[0], content, autofix); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), MsgCheckClean)
			return nil
		},
	}
	cmd.Flags().BoolVar(&content, "content", false, MsgFlagContent)
	cmd.Flags().BoolVar(&autofix, "autofix", false, MsgFlagAutofix)
	return cmd
}
