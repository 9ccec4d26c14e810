package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/conduit-lang/jsonapi-store/internal/cli/config"
	"github.com/conduit-lang/jsonapi-store/internal/logging"
	"github.com/conduit-lang/jsonapi-store/pkg/transport/httpadapter"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	viper      *viper.Viper
	configFile string
	headers    []string
	noColor    bool
	verbose    bool
}

// session is what a network command needs: configuration, a logger and a
// transport pointed at the configured server
type session struct {
	config  *config.Config
	logger  *zap.Logger
	adapter *httpadapter.Adapter
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{viper: config.New()}

	rootCmd := &cobra.Command{
		Use:   "jsonapi",
		Short: "Inspect and modify resources on a JSON:API server",
		Long: color.CyanString(`jsonapi - command line client for JSON:API servers

Reads and deletes resources through the same store, serializer and
transport used by Go programs embedding this module.

Configuration is read from ./jsonapi.yaml or ~/.config/jsonapi/jsonapi.yaml
and can be overridden with JSONAPI_* environment variables or flags.`),
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default ./jsonapi.yaml)")
	flags.String("base-url", "", "server base URL, e.g. https://api.example.com/v1")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Duration("timeout", 0, "request timeout (default 30s)")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, `extra request header, "Name: value" (repeatable)`)
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "development logging to stderr")

	_ = opts.viper.BindPFlag("base_url", flags.Lookup("base-url"))
	_ = opts.viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = opts.viper.BindPFlag("timeout", flags.Lookup("timeout"))

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newGetCommand(opts))
	rootCmd.AddCommand(newListCommand(opts))
	rootCmd.AddCommand(newDeleteCommand(opts))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// open loads configuration and builds the transport for network commands
func (o *rootOptions) open() (*session, error) {
	cfg, err := config.Load(o.viper, o.configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireBaseURL(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, o.verbose)
	if err != nil {
		return nil, err
	}

	adapterOpts := []httpadapter.Option{
		httpadapter.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpadapter.WithLogger(logger.Named("http")),
	}
	for name, value := range cfg.Headers {
		adapterOpts = append(adapterOpts, httpadapter.WithHeader(name, value))
	}
	for _, header := range o.headers {
		name, value, ok := strings.Cut(header, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", header)
		}
		adapterOpts = append(adapterOpts, httpadapter.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}

	return &session{
		config:  cfg,
		logger:  logger,
		adapter: httpadapter.New(cfg.BaseURL, adapterOpts...),
	}, nil
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the CLI version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)

			titleColor.Fprint(out, "jsonapi version: ")
			fmt.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			fmt.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			fmt.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			fmt.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command until it finishes or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !writeError(rootCmd.ErrOrStderr(), err) {
			errorColor := color.New(color.FgRed, color.Bold)
			errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	}
	return nil
}
