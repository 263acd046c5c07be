package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/AzozzALFiras/velo"
)

func newConfigCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write an application's main configuration file",
	}
	cmd.AddCommand(newConfigGetCommand(e), newConfigSetCommand(e), newConfigPullCommand(e))
	return cmd
}

func newConfigGetCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "get <app>",
		Short: "Print the configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			cf, err := c.Config(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.print(cf, func(w io.Writer) error {
				_, err := io.WriteString(w, cf.Content)
				return err
			})
		},
	}
}

func newConfigSetCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "set <app> <file|->",
		Short: "Replace the configuration file and reload if the config test passes",
		Long: `Write new content to the configuration file, run the application's config
test and reload it. When the test fails the service is not reloaded, the
validator output is printed and the command exits non-zero. Use - to read
the content from stdin.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content []byte
			var err error
			if args[1] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(args[1])
			}
			if err != nil {
				return err
			}

			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.SaveConfig(cmd.Context(), args[0], string(content))
			if err != nil {
				return err
			}
			return e.reportMutation(res)
		},
	}
}

func newConfigPullCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <app> <dest>",
		Short: "Copy the configuration file to a local path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.defaultClient(cmd.Context())
			if err != nil {
				return err
			}
			cf, err := c.Config(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !cf.Exists {
				return fmt.Errorf("%s does not exist on %s", cf.Path, e.hostName())
			}
			if err := renameio.WriteFile(args[1], []byte(cf.Content), 0o644); err != nil {
				return err
			}
			e.log.Debug("configuration pulled")
			_, err = fmt.Fprintf(e.out, "%s -> %s\n", cf.Path, args[1])
			return err
		},
	}
}

// reportMutation prints res and fails unless the change is live
func (e *env) reportMutation(res velo.MutateResult) error {
	if err := e.print(res, func(w io.Writer) error {
		switch {
		case res.Applied():
			_, err := fmt.Fprintf(w, "%s updated and reloaded\n", res.Path)
			return err
		case !res.Valid:
			_, err := fmt.Fprintf(w, "%s rejected by the config test:\n%s", res.Path, res.ValidatorOutput)
			return err
		default:
			_, err := fmt.Fprintf(w, "%s written but not reloaded\n", res.Path)
			return err
		}
	}); err != nil {
		return err
	}
	if !res.Applied() {
		return fmt.Errorf("%s: change not applied", res.Path)
	}
	return nil
}
