package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AzozzALFiras/velo"
)

func newControlCommand(e *env, verb velo.Verb, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(verb) + " <service|app>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			results := map[string]velo.ControlResult{}
			var opErr error
			if e.allHosts {
				m, err := e.manager(ctx)
				if err != nil {
					return err
				}
				results, opErr = m.Control(ctx, args[0], verb)
			} else {
				c, err := e.defaultClient(ctx)
				if err != nil {
					return err
				}
				res, err := c.Control(ctx, args[0], verb)
				if err != nil {
					return err
				}
				results[e.hostName()] = res
			}

			if err := e.print(results, func(w io.Writer) error { return controlTable(w, results) }); err != nil {
				return err
			}
			if opErr != nil {
				return opErr
			}
			for h, r := range results {
				if !r.OK {
					return fmt.Errorf("%s %s failed on %s", verb, r.Service, h)
				}
			}
			return nil
		},
	}
	addAllHostsFlag(cmd, e)
	return cmd
}

func controlTable(w io.Writer, results map[string]velo.ControlResult) error {
	hosts := make([]string, 0, len(results))
	for h := range results {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	rows := make([][]string, 0, len(hosts))
	for _, h := range hosts {
		r := results[h]
		state := "ok"
		if !r.OK {
			state = "failed"
		}
		rows = append(rows, []string{h, r.Service, string(r.Verb), state, firstLine(r.Output)})
	}
	return table(w, []string{"HOST", "SERVICE", "VERB", "RESULT", "OUTPUT"}, rows)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func newInstallCommand(e *env) *cobra.Command {
	var pkg string
	cmd := &cobra.Command{
		Use:   "install <app>",
		Short: "Install an application with the host's package manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.Install(cmd.Context(), args[0], pkg)
			if err != nil {
				return err
			}
			if err := e.print(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\n%s", res.Command, res.Output)
				return err
			}); err != nil {
				return err
			}
			if !res.OK {
				return fmt.Errorf("installing %s failed", res.Package)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pkg, "package", "", "package to install instead of the application's default")
	return cmd
}
