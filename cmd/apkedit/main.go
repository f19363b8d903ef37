// Command apkedit is the headless APK editor. It loads the bundled and
// archive plugins and drives them the way the editor window does: opening
// and formatting files, running commands and external tools.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/dshills/apkedit/internal/app"
	"github.com/dshills/apkedit/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config    string `name:"config" short:"c" help:"Configuration file" type:"path"`
	DataDir   string `name:"data-dir" help:"Application data directory" type:"path"`
	PluginDir string `name:"plugin-dir" short:"p" help:"Plugin archive directory" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (overrides the configuration)"`

	stdout io.Writer
	stderr io.Writer
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Plugins   PluginsGroup `cmd:"" help:"Plugin management"`
	Commands  CommandsCmd  `cmd:"" help:"List registered commands and shortcuts"`
	Open      OpenCmd      `cmd:"" help:"Open a file the way the editor does"`
	Format    FormatCmd    `cmd:"" help:"Format files with the registered formatters"`
	Exec      ExecCmd      `cmd:"" help:"Execute a registered command"`
	Search    SearchCmd    `cmd:"" help:"Search a workspace"`
	Decompile DecompileCmd `cmd:"" help:"Decompile an APK to Java sources"`
	Tool      ToolCmd      `cmd:"" help:"Run an external tool"`
	Recent    RecentCmd    `cmd:"" help:"Show recently opened files and workspaces"`
	Run       RunCmd       `cmd:"" help:"Run the editor core until interrupted"`
	Cfg       ConfigGroup  `cmd:"" name:"config" help:"Configuration file operations"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

func main() {
	var cli CLI
	cli.stdout = os.Stdout
	cli.stderr = os.Stderr

	kctx := kong.Parse(&cli,
		kong.Name("apkedit"),
		kong.Description("Headless APK editor with plugin support."),
		kong.UsageOnError(),
	)
	err := kctx.Run(&cli.Globals)
	kctx.FatalIfErrorf(err)
}

// loadConfig reads the configuration and applies flag overrides.
func (g *Globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Path:    g.Config,
		DataDir: g.DataDir,
	})
	if err != nil {
		return nil, err
	}
	if g.PluginDir != "" {
		cfg.Plugins.Dir = g.PluginDir
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	return cfg, cfg.Validate()
}

// session is a started application and its cleanup.
type session struct {
	app    *app.App
	logger *logrus.Logger
	closer io.Closer
}

func (s *session) Close() error {
	err := s.app.Close()
	if cerr := s.closer.Close(); err == nil {
		err = cerr
	}
	return err
}

// start loads the configuration, builds the application and starts it.
// Status bar messages are echoed to stderr.
func (g *Globals) start(ctx context.Context, mutate ...func(*config.Config)) (*session, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	logger, closer, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	a.Status().Listen(func(m app.StatusMessage) {
		fmt.Fprintln(g.stderr, m.Text)
	})
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		_ = closer.Close()
		return nil, err
	}
	return &session{app: a, logger: logger, closer: closer}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
