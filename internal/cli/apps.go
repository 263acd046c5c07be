package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AzozzALFiras/velo"
	"github.com/AzozzALFiras/velo/internal/app"
)

func newAppsCommand(e *env) *cobra.Command {
	var category string
	var installed bool
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List the applications velo knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			defs := c.Applications()
			if installed {
				if defs, err = c.Installed(cmd.Context()); err != nil {
					return err
				}
			}
			if category != "" {
				if !validCategory(category) {
					return fmt.Errorf("unknown category %q", category)
				}
				filtered := defs[:0:0]
				for _, d := range defs {
					if string(d.Category) == category {
						filtered = append(filtered, d)
					}
				}
				defs = filtered
			}
			return e.print(defs, func(w io.Writer) error {
				rows := make([][]string, 0, len(defs))
				for _, d := range defs {
					var sections []string
					for _, s := range d.OrderedSections() {
						sections = append(sections, string(s.Provider))
					}
					rows = append(rows, []string{d.ID, d.Name, string(d.Category), strings.Join(sections, ",")})
				}
				return table(w, []string{"ID", "NAME", "CATEGORY", "SECTIONS"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list this category (web-server, database, cache, runtime)")
	cmd.Flags().BoolVar(&installed, "installed", false, "only list applications installed on the host")
	return cmd
}

func validCategory(c string) bool {
	switch app.Category(c) {
	case app.CategoryWebServer, app.CategoryDatabase, app.CategoryCache, app.CategoryRuntime:
		return true
	}
	return false
}

func newStatusCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [app...]",
		Short: "Show whether applications are installed and running",
		Long: `Show the status of the given applications, or of every known one, in a
single round trip per host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if e.allHosts {
				m, err := e.manager(ctx)
				if err != nil {
					return err
				}
				all, err := m.Status(ctx, args...)
				if perr := e.print(all, func(w io.Writer) error { return hostStatusTable(w, all) }); perr != nil {
					return perr
				}
				return err
			}

			c, err := e.defaultClient(ctx)
			if err != nil {
				return err
			}
			statuses, err := c.Status(ctx, args...)
			if err != nil {
				return err
			}
			return e.print(statuses, func(w io.Writer) error {
				return hostStatusTable(w, map[string]map[string]velo.SoftwareStatus{e.hostName(): statuses})
			})
		},
	}
	addAllHostsFlag(cmd, e)
	return cmd
}

func hostStatusTable(w io.Writer, all map[string]map[string]velo.SoftwareStatus) error {
	hosts := make([]string, 0, len(all))
	for h := range all {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	var rows [][]string
	for _, h := range hosts {
		ids := make([]string, 0, len(all[h]))
		for id := range all[h] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			s := all[h][id]
			rows = append(rows, []string{h, id, s.Kind().String(), s.Version()})
		}
	}
	return table(w, []string{"HOST", "APP", "STATUS", "VERSION"}, rows)
}

func newLoadCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "load <app> [section]",
		Short: "Load one section of an application, or all of them",
		Long: `Load an application's sections from the host and print the resulting
state. Sections that fail are listed under failures; the others still load.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			var st velo.State
			if len(args) == 2 {
				st, err = c.LoadSection(cmd.Context(), args[0], args[1])
			} else {
				st, err = c.LoadAll(cmd.Context(), args[0])
			}
			if st.Loaded == nil && err != nil {
				return err
			}
			if perr := e.print(st, nil); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newVersionsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <app>",
		Short: "List the installed versions of a runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			info, err := c.Versions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.print(info, func(w io.Writer) error {
				for _, v := range info.Installed {
					mark := " "
					if v == info.Active {
						mark = "*"
					}
					fmt.Fprintf(w, "%s %s\n", mark, v)
				}
				return nil
			})
		},
	}
}

func newSwitchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "switch <app> <version>",
		Short: "Make another installed version the active one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.SwitchVersion(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if err := e.print(res, func(w io.Writer) error {
				if res.Switched {
					_, err := fmt.Fprintf(w, "%s is now %s (via %s)\n", args[0], res.Version, res.Via)
					return err
				}
				for _, a := range res.Attempts {
					fmt.Fprintf(w, "%s: exit %d %s\n", a.Strategy, a.ExitCode, strings.TrimSpace(a.Output))
				}
				return nil
			}); err != nil {
				return err
			}
			if !res.Switched {
				return fmt.Errorf("%s was not switched to %s", args[0], args[1])
			}
			return nil
		},
	}
}

func newVersionCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the velo version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := velo.GetVersion()
			return e.print(info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "velo %s (%d applications)\n", info.Version, len(info.Applications))
				return err
			})
		},
	}
}
