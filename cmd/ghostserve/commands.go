package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bastiangx/ghostserve/internal/cli"
	"github.com/bastiangx/ghostserve/internal/utils"
	"github.com/bastiangx/ghostserve/pkg/config"
	"github.com/bastiangx/ghostserve/pkg/coordinator"
	"github.com/bastiangx/ghostserve/pkg/dictionary"
	"github.com/bastiangx/ghostserve/pkg/server"
	"github.com/bastiangx/ghostserve/pkg/session"
	"github.com/bastiangx/ghostserve/pkg/suggest"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var remotePath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MessagePack IPC server on stdin/stdout",
	RunE:  runServe,
}

var tryCmd = &cobra.Command{
	Use:   "try",
	Short: "Type against the completion engine interactively",
	RunE:  runTry,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or reset the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the active config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := config.LoadConfigWithPriority(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.GetActiveConfigPath(path))
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Rewrite the default config file with builtin defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.RebuildConfigFile()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version",
	Run: func(cmd *cobra.Command, args []string) {
		showVersion()
	},
}

func init() {
	tryCmd.Flags().StringVar(&remotePath, "remote", "", "spawn this ghostserve binary and complete through it")
	configCmd.AddCommand(configPathCmd, configResetCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadProvider builds the local completion backend.
func loadProvider(cfg *config.Config) (*suggest.Provider, error) {
	explicit := dictPath
	if explicit == "" {
		explicit = cfg.Server.Dictionary
	}
	path, err := utils.NewPathResolver().Dictionary(explicit)
	if err != nil {
		return nil, err
	}
	entries, err := dictionary.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "load dictionary")
	}
	log.Debugf("Using dictionary at: %s", path)

	completer := suggest.NewCompleter()
	completer.Load(entries)
	return suggest.NewProvider(completer, suggest.OptionsFromConfig(cfg.Server)), nil
}

// watchConfig reloads path on change. It returns a no-op closer when the
// config came from builtin defaults or cannot be watched.
func watchConfig(path string, fns ...config.ReloadFunc) func() {
	if path == "" {
		return func() {}
	}
	w, err := config.NewWatcher(path)
	if err != nil {
		log.Warn("config changes will not be picked up", "err", err)
		return func() {}
	}
	for _, fn := range fns {
		w.OnReload(fn)
	}
	w.Start()
	return func() { w.Close() }
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := config.LoadConfigWithPriority(configPath)
	if err != nil {
		return err
	}
	provider, err := loadProvider(cfg)
	if err != nil {
		return err
	}

	srv := server.NewServer(provider, os.Stdin, os.Stdout,
		server.WithRateLimit(cfg.Server.RateLimit, int(cfg.Server.RateLimit)+1),
	)
	stop := watchConfig(path, func(c *config.Config) error {
		provider.SetOptions(suggest.OptionsFromConfig(c.Server))
		srv.SetRateLimit(c.Server.RateLimit)
		return nil
	})
	defer stop()

	showStartupInfo(path, provider.Stats()["totalWords"])
	if isatty.IsTerminal(os.Stdin.Fd()) {
		log.Warn("stdin is a terminal; serve expects MessagePack messages, use `ghostserve try` to type interactively")
	}

	ctx, cancel := signalContext()
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()
	select {
	case err := <-served:
		return err
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		return nil
	}
}

func runTry(cmd *cobra.Command, args []string) error {
	cfg, path, err := config.LoadConfigWithPriority(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	var (
		client   coordinator.Client
		feedback session.Feedback
		reload   []config.ReloadFunc
	)
	if remotePath != "" {
		remote, err := spawnRemote(ctx)
		if err != nil {
			return err
		}
		defer remote.Close()
		client, feedback = remote, remote
	} else {
		provider, err := loadProvider(cfg)
		if err != nil {
			return err
		}
		client, feedback = provider, provider
		reload = append(reload, func(c *config.Config) error {
			provider.SetOptions(suggest.OptionsFromConfig(c.Server))
			return nil
		})
	}

	h := cli.NewInputHandler(client, feedback, cfg, cmd.OutOrStdout())
	reload = append(reload, func(c *config.Config) error {
		h.Manager().Apply(c)
		return nil
	})
	stop := watchConfig(path, reload...)
	defer stop()

	return h.Start(ctx, cmd.InOrStdin())
}

// spawnRemote starts a server process with the same config and dictionary
// flags and waits for it to come up.
func spawnRemote(ctx context.Context) (*server.Client, error) {
	args := []string{"serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if dictPath != "" {
		args = append(args, "--dict", dictPath)
	}
	if debugMode {
		args = append(args, "--debug")
	}

	remote, err := server.Spawn(ctx, remotePath, args...)
	if err != nil {
		return nil, err
	}
	readyCtx, cancel := context.WithTimeout(ctx, config.DefaultConfig().Completion.Timeout())
	defer cancel()
	if err := remote.WaitReady(readyCtx); err != nil {
		remote.Close()
		return nil, errors.WithHint(errors.Wrap(err, "remote server"),
			"check that --remote points to a ghostserve binary")
	}
	return remote, nil
}

func showVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[ GhostServe ] Ghost-text completions, served locally")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use -h or --help to see available options")
	logger.Print("Github Repo", "gh", gh)
}

// showStartupInfo prints basic info about the server to stderr.
func showStartupInfo(configPath string, words int) {
	current := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(current)

	title := lipgloss.NewStyle().Bold(true).Render(" GhostServe ")
	fmt.Fprintln(os.Stderr, title)
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("config: ( %s )", config.GetActiveConfigPath(configPath))
	log.Infof("phrases: %d", words)
	log.Info("status: ready")
}
