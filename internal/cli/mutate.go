package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AzozzALFiras/velo"
)

func newDBCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Create and drop databases (mysql, postgresql, mongodb)",
	}
	cmd.AddCommand(
		newDBVerbCommand(e, "create", "Create a database", (*velo.Client).CreateDatabase),
		newDBVerbCommand(e, "drop", "Drop a database", (*velo.Client).DeleteDatabase),
	)
	return cmd
}

type dbFunc func(c *velo.Client, ctx context.Context, engine, name string) (bool, error)

func newDBVerbCommand(e *env, use, short string, fn dbFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <engine> <name>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			ok, err := fn(c, cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			res := struct {
				Engine string `json:"engine" yaml:"engine" toml:"engine"`
				Name   string `json:"name" yaml:"name" toml:"name"`
				OK     bool   `json:"ok" yaml:"ok" toml:"ok"`
			}{args[0], args[1], ok}
			if err := e.print(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s %s on %s: %t\n", use, args[1], args[0], ok)
				return err
			}); err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s %s on %s failed", use, args[1], args[0])
			}
			return nil
		},
	}
}

func newSiteCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Create and delete virtual hosts on nginx or apache",
	}
	cmd.AddCommand(newSiteCreateCommand(e), newSiteDeleteCommand(e))
	return cmd
}

func newSiteCreateCommand(e *env) *cobra.Command {
	var spec velo.SiteSpec
	var aliases string
	cmd := &cobra.Command{
		Use:   "create <nginx|apache> <domain>",
		Short: "Write, enable and reload a virtual host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			spec.Domain = args[1]
			spec.Aliases = splitList(aliases)
			res, err := c.CreateSite(cmd.Context(), args[0], spec)
			if err != nil {
				return err
			}
			return e.reportMutation(res)
		},
	}
	cmd.Flags().StringVar(&aliases, "aliases", "", "comma separated extra server names")
	cmd.Flags().StringVar(&spec.Root, "root", "", "document root (default: <web root>/<domain>)")
	cmd.Flags().StringVar(&spec.PHPSocket, "php-socket", "", "PHP-FPM socket to pass .php requests to")
	return cmd
}

func newSiteDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <nginx|apache> <domain>",
		Short: "Disable and remove a virtual host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.DeleteSite(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return e.reportMutation(res)
		},
	}
}
