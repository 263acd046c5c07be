// Package cli is velo's command tree
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo"
	"github.com/AzozzALFiras/velo/internal/aggregator"
	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/config"
	"github.com/AzozzALFiras/velo/internal/logging"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// Dialer opens a runner for a configured host
type Dialer func(ctx context.Context, host string) (transport.Runner, error)

// env is the state shared by every command of one invocation
type env struct {
	cfgFile  string
	host     string
	format   string
	logLevel string
	allHosts bool

	v     *viper.Viper
	cfg   *config.Config
	log   *logging.Logger
	extra []app.Definition
	out   io.Writer

	dial    Dialer
	clients map[string]*velo.Client
	closers []func() error
}

// Execute runs the command tree with os.Args. Sessions opened by the
// command are closed even when it fails.
func Execute(ctx context.Context) error {
	e := &env{}
	err := newRootCommand(e).ExecuteContext(ctx)
	if cerr := e.close(); err == nil {
		err = cerr
	}
	return err
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	return newRootCommand(&env{})
}

func newRootCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "velo",
		Short: "Inspect and manage server software on Linux hosts",
		Long: `velo inspects and manages web servers, databases, caches and language
runtimes on a Linux host, locally or over SSH. Every change is validated
with the software's own config test before it is applied.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.out = cmd.OutOrStdout()
			return e.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.close()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&e.cfgFile, "config", "c", "", "config file (default: ./velo.yaml or ~/.config/velo/velo.yaml)")
	f.StringVarP(&e.host, "host", "H", "", "host to act on (default: default_host from the config)")
	f.StringVarP(&e.format, "output", "o", "text", "output format: text, json, yaml or toml")
	f.StringVar(&e.logLevel, "log-level", "", "log level, overriding the config")

	cmd.AddCommand(
		newAppsCommand(e),
		newStatusCommand(e),
		newLoadCommand(e),
		newControlCommand(e, aggregator.Start, "Start a service"),
		newControlCommand(e, aggregator.Stop, "Stop a service"),
		newControlCommand(e, aggregator.Restart, "Restart a service after testing its configuration"),
		newControlCommand(e, aggregator.Reload, "Reload a service after testing its configuration"),
		newConfigCommand(e),
		newVersionsCommand(e),
		newSwitchCommand(e),
		newDBCommand(e),
		newSiteCommand(e),
		newInstallCommand(e),
		newWatchCommand(e),
		newServeCommand(e),
		newVersionCommand(e),
	)
	return cmd
}

func (e *env) setup() error {
	switch e.format {
	case "text", "json", "yaml", "toml":
	default:
		return fmt.Errorf("unknown output format %q", e.format)
	}

	e.v = config.NewViper(e.cfgFile)
	cfg, err := config.Load(e.v)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Log.Level = e.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	e.cfg = cfg

	if e.log == nil {
		if e.log, err = logging.New(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}
	}

	if len(cfg.CatalogFiles) > 0 {
		if e.extra, err = app.LoadDefinitionFiles(cfg.CatalogFiles...); err != nil {
			return err
		}
	}
	if e.dial == nil {
		e.dial = e.dialHost
	}
	e.clients = map[string]*velo.Client{}
	return nil
}

func (e *env) close() error {
	merr := &velo.MultiError{}
	for i := len(e.closers) - 1; i >= 0; i-- {
		merr.Add(e.closers[i]())
	}
	e.closers = nil
	if e.log != nil {
		_ = e.log.Sync()
	}
	return merr.Err()
}

// dialHost opens a session to host: the local machine or an SSH target
func (e *env) dialHost(ctx context.Context, host string) (transport.Runner, error) {
	var exec transport.Executor
	useSudo := e.cfg.UseSudo(host)
	if host == config.Local {
		exec = transport.NewLocal()
		useSudo = useSudo && os.Geteuid() != 0
	} else {
		sc, err := e.cfg.SSHConfig(host)
		if err != nil {
			return nil, err
		}
		if exec, err = transport.DialSSH(ctx, sc); err != nil {
			return nil, err
		}
	}
	sess := transport.NewSession(exec,
		transport.WithHost(host),
		transport.WithSudo(useSudo, e.cfg.Sudo.Command),
		transport.WithDefaultTimeout(e.cfg.Timeouts.Default),
		transport.WithLogger(e.log.Logger),
	)
	e.closers = append(e.closers, sess.Close)
	return sess, nil
}

func (e *env) hostName() string {
	if e.host != "" {
		return e.host
	}
	return e.cfg.DefaultHost
}

// client returns the client for host, dialing it on first use
func (e *env) client(ctx context.Context, host string) (*velo.Client, error) {
	if c, ok := e.clients[host]; ok {
		return c, nil
	}
	run, err := e.dial(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("host %q: %w", host, err)
	}
	c, err := velo.New(run,
		velo.WithLogger(e.log.Logger.With(zap.String("host", host))),
		velo.WithApplications(e.extra...),
		velo.WithAggregatorOptions(
			aggregator.WithControlTimeout(e.cfg.Timeouts.Default),
			aggregator.WithInstallTimeout(e.cfg.Timeouts.Long),
		),
	)
	if err != nil {
		return nil, err
	}
	e.clients[host] = c
	e.closers = append(e.closers, c.Close)
	return c, nil
}

// defaultClient is the client for --host or the configured default host
func (e *env) defaultClient(ctx context.Context) (*velo.Client, error) {
	return e.client(ctx, e.hostName())
}

// targetHosts is every configured host with --all-hosts, else the selected one
func (e *env) targetHosts() []string {
	if !e.allHosts {
		return []string{e.hostName()}
	}
	hosts := e.cfg.HostNames()
	if len(hosts) == 0 {
		return []string{config.Local}
	}
	return hosts
}

func (e *env) manager(ctx context.Context) (*velo.Manager, error) {
	clients := map[string]*velo.Client{}
	for _, h := range e.targetHosts() {
		c, err := e.client(ctx, h)
		if err != nil {
			return nil, err
		}
		clients[h] = c
	}
	return velo.NewManager(clients, velo.WithTimeout(e.cfg.Timeouts.Long)), nil
}

func addAllHostsFlag(cmd *cobra.Command, e *env) {
	cmd.Flags().BoolVar(&e.allHosts, "all-hosts", false, "act on every configured host")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
