// Package commands is the command line interface of the node agent.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/exalsius/node-agent/internal/agent"
	"github.com/exalsius/node-agent/internal/auth"
	"github.com/exalsius/node-agent/internal/cli"
	"github.com/exalsius/node-agent/internal/constants"
	"github.com/exalsius/node-agent/internal/credentials"
	"github.com/exalsius/node-agent/internal/hardware"
	"github.com/exalsius/node-agent/internal/heartbeat"
	"github.com/exalsius/node-agent/internal/pciref"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	newRunner newRunner
}

// appConfig holds the configuration for the application. Keys match the flag names.
type appConfig struct {
	Verbosity int  `mapstructure:"verbose"`
	JSONLogs  bool `mapstructure:"json-logs"`

	NodeID            string `mapstructure:"node-id"`
	APIURL            string `mapstructure:"api-url"`
	AuthToken         string `mapstructure:"auth-token"`
	Auth0ClientID     string `mapstructure:"auth0-client-id"`
	Auth0ClientDomain string `mapstructure:"auth0-client-domain"`

	SkipHeartbeat   bool          `mapstructure:"skip-heartbeat"`
	CredentialsFile string        `mapstructure:"credentials-file"`
	OfflinePCIDB    bool          `mapstructure:"offline-pci-db"`
	PCIDBURL        string        `mapstructure:"pci-db-url"`
	MetricsTextfile string        `mapstructure:"metrics-textfile"`
	HTTPTimeout     time.Duration `mapstructure:"http-timeout"`
}

// LogValue keeps the auth token out of the logs.
func (c appConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("verbose", c.Verbosity),
		slog.String("node-id", c.NodeID),
		slog.String("api-url", c.APIURL),
		slog.Bool("auth-token-set", c.AuthToken != ""),
		slog.String("auth0-client-id", c.Auth0ClientID),
		slog.String("auth0-client-domain", c.Auth0ClientDomain),
		slog.Bool("skip-heartbeat", c.SkipHeartbeat),
		slog.String("credentials-file", c.CredentialsFile),
		slog.Bool("offline-pci-db", c.OfflinePCIDB),
		slog.String("pci-db-url", c.PCIDBURL),
		slog.String("metrics-textfile", c.MetricsTextfile),
		slog.Duration("http-timeout", c.HTTPTimeout),
	)
}

// overrides are the credentials supplied on the command line or by the configuration.
func (c appConfig) overrides() credentials.Overrides {
	return credentials.Overrides{
		NodeID:            c.NodeID,
		APIURL:            c.APIURL,
		AuthToken:         c.AuthToken,
		Auth0ClientID:     c.Auth0ClientID,
		Auth0ClientDomain: c.Auth0ClientDomain,
	}
}

type runner interface {
	Run(ctx context.Context, o credentials.Overrides) error
}

type newRunner func(c appConfig) (runner, error)

type options struct {
	newRunner newRunner
}

// Options represents an optional function to override App default values.
type Options func(*options)

// New registers commands and return a new App.
func New(args ...Options) (*App, error) {
	opts := options{
		newRunner: newAgent,
	}
	for _, opt := range args {
		opt(&opts)
	}

	a := App{newRunner: opts.newRunner}
	a.cmd = &cobra.Command{
		Use:   constants.CmdName,
		Short: "Report the hardware of this node to the exalsius control plane",
		Long: `Report the hardware of this node to the exalsius control plane.

On every run, the agent inventories the GPUs, CPU, memory and root disk of the node and sends them
in a heartbeat authenticated with the node token. The token is rotated by the control plane on
every accepted heartbeat and stored back in the credential file.

Credentials given as flags, environment variables or configuration replace the stored ones.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config, cli.DecodeHook()); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			slog.Debug("Got app config", "config", a.config)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	if err := a.viper.BindPFlags(a.cmd.Flags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "write logs as JSON")

	// --access-token is the historical name of --auth-token.
	cmd.Flags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "access-token" {
			name = "auth-token"
		}
		return pflag.NormalizedName(name)
	})

	cmd.Flags().StringVar(&app.config.NodeID, "node-id", "", "identifier of this node in the control plane")
	cmd.Flags().StringVar(&app.config.APIURL, "api-url", "", "base URL of the control plane API")
	cmd.Flags().StringVar(&app.config.AuthToken, "auth-token", "", "node token, or refresh token when an Auth0 client is configured (alias --access-token)")
	cmd.Flags().StringVar(&app.config.Auth0ClientID, "auth0-client-id", "", "Auth0 client the refresh token belongs to")
	cmd.Flags().StringVar(&app.config.Auth0ClientDomain, "auth0-client-domain", "", "Auth0 domain issuing access tokens")

	cmd.Flags().BoolVar(&app.config.SkipHeartbeat, "skip-heartbeat", false, "only collect and log the hardware inventory")
	cmd.Flags().StringVar(&app.config.CredentialsFile, "credentials-file", constants.GetDefaultCredentialsPath(), "file storing the node credentials")
	cmd.Flags().BoolVar(&app.config.OfflinePCIDB, "offline-pci-db", false, "never fetch the PCI reference database from the network")
	cmd.Flags().StringVar(&app.config.PCIDBURL, "pci-db-url", constants.DefaultPCIDatabaseURL, "URL of the online PCI reference database")
	cmd.Flags().StringVar(&app.config.MetricsTextfile, "metrics-textfile", "", "write the run outcome as prometheus metrics to this file")
	cmd.Flags().DurationVar(&app.config.HTTPTimeout, "http-timeout", 0, "timeout of every HTTP request, 0 for none")

	for _, f := range []string{"credentials-file", "metrics-textfile"} {
		if err := cmd.MarkFlagFilename(f); err != nil {
			// This should never happen.
			panic(fmt.Sprintf("failed to mark %s flag as filename: %v", f, err))
		}
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run(ctx context.Context) error {
	return a.cmd.ExecuteContext(ctx)
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a App) run(ctx context.Context) error {
	if a.config.CredentialsFile == "" && !a.config.SkipHeartbeat {
		return errors.New("no credentials file: could not find the user configuration directory, use --credentials-file")
	}

	r, err := a.newRunner(a.config)
	if err != nil {
		return err
	}

	return r.Run(ctx, a.config.overrides())
}

// newAgent wires the agent components from the configuration.
func newAgent(c appConfig) (runner, error) {
	l := slog.Default().Handler()
	client := &http.Client{Timeout: c.HTTPTimeout}

	resolver, err := pciref.New(
		pciref.WithLogger(l),
		pciref.WithHTTPClient(client),
		pciref.WithDatabaseURL(c.PCIDBURL),
		pciref.WithNetworkFetch(!c.OfflinePCIDB),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create PCI resolver: %v", err)
	}

	return agent.New(
		credentials.New(c.CredentialsFile, credentials.WithLogger(l)),
		auth.New(auth.WithLogger(l), auth.WithHTTPClient(client)),
		hardware.New(resolver, hardware.WithLogger(l)),
		heartbeat.New(heartbeat.WithLogger(l), heartbeat.WithHTTPClient(client)),
		agent.WithLogger(l),
		agent.WithSkipHeartbeat(c.SkipHeartbeat),
		agent.WithMetricsTextfile(c.MetricsTextfile),
	), nil
}
