package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dshills/apkedit/internal/config"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/plugin/security"
	"github.com/dshills/apkedit/internal/settings"
	"github.com/dshills/apkedit/internal/tool"
)

// PluginsGroup contains plugin management commands.
type PluginsGroup struct {
	List    PluginsListCmd    `cmd:"" help:"List loaded plugins"`
	Scan    PluginsScanCmd    `cmd:"" help:"Show the result of scanning the plugin directory"`
	Enable  PluginsEnableCmd  `cmd:"" help:"Enable a plugin"`
	Disable PluginsDisableCmd `cmd:"" help:"Disable a plugin"`
}

// PluginsListCmd lists the loaded plugin set.
type PluginsListCmd struct{}

func (c *PluginsListCmd) Run(g *Globals) error {
	s, err := g.start(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	w := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tORIGIN\tSTATE\tSOURCE")
	for _, inst := range s.app.Plugins().List() {
		d := inst.Descriptor()
		source := d.Implementation
		if d.SourcePath != "" {
			source = filepath.Base(d.SourcePath) + ":" + d.Implementation
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.DisplayName, d.Version, d.Origin, inst.State(), source)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for id, perr := range s.app.Plugins().Errors() {
		fmt.Fprintf(g.stderr, "%s: %v\n", id, perr)
	}
	return nil
}

// PluginsScanCmd reports per-archive scan results.
type PluginsScanCmd struct{}

func (c *PluginsScanCmd) Run(g *Globals) error {
	s, err := g.start(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	results := s.app.Archives().LastScan()
	if len(results) == 0 {
		fmt.Fprintf(g.stdout, "no plugin archives in %s\n", s.app.Archives().Dir())
		return nil
	}

	w := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHIVE\tCHECKSUM\tPLUGINS\tCAPABILITIES\tRISK\tSTATUS")
	for _, r := range results {
		status := "open"
		switch {
		case r.Err != nil:
			status = r.Err.Error()
		case r.Closed:
			status = "closed"
		}
		checksum := r.Checksum
		if len(checksum) > 12 {
			checksum = checksum[:12]
		}
		caps := make([]string, len(r.Capabilities))
		for i, c := range r.Capabilities {
			caps[i] = string(c)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			filepath.Base(r.Path), checksum, strings.Join(r.Plugins, ","),
			strings.Join(caps, ","), security.HighestRisk(r.Capabilities), status)
	}
	return w.Flush()
}

// PluginsEnableCmd enables a plugin.
type PluginsEnableCmd struct {
	ID string `arg:"" help:"Plugin id"`
}

func (c *PluginsEnableCmd) Run(g *Globals) error {
	return setEnabled(g, c.ID, true)
}

// PluginsDisableCmd disables a plugin.
type PluginsDisableCmd struct {
	ID string `arg:"" help:"Plugin id"`
}

func (c *PluginsDisableCmd) Run(g *Globals) error {
	return setEnabled(g, c.ID, false)
}

func setEnabled(g *Globals, id string, enabled bool) error {
	s, err := g.start(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.app.SetPluginEnabled(id, enabled); err != nil {
		return err
	}
	if inst, ok := s.app.Plugins().Get(id); ok {
		fmt.Fprintf(g.stdout, "%s: %s\n", id, inst.State())
	}
	return nil
}

// CommandsCmd lists commands and their shortcuts.
type CommandsCmd struct{}

func (c *CommandsCmd) Run(g *Globals) error {
	s, err := g.start(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	keys := make(map[string][]string)
	for _, sc := range s.app.Host().Shortcuts.All() {
		keys[sc.CommandID] = append(keys[sc.CommandID], sc.Keys)
	}

	w := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tTITLE\tCATEGORY\tKEYS")
	for _, cmd := range s.app.Host().Commands.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cmd.ID, cmd.Title, cmd.Category, strings.Join(keys[cmd.ID], " "))
	}
	return w.Flush()
}

// OpenCmd opens a file.
type OpenCmd struct {
	Path  string        `arg:"" help:"File to open" type:"existingfile"`
	Print bool          `help:"Print the document content"`
	Wait  time.Duration `help:"Keep running for background work started by a file handler" default:"0s"`
}

func (c *OpenCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := g.start(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.app.OpenFile(c.Path)
	if err != nil {
		return err
	}
	if res.Handled {
		fmt.Fprintf(g.stdout, "%s: opened by a plugin\n", res.Path)
		if c.Wait > 0 {
			select {
			case <-time.After(c.Wait):
			case <-ctx.Done():
			}
		}
		return nil
	}

	doc := res.Document
	fmt.Fprintf(g.stdout, "%s: %s (%s), %d lines\n",
		doc.Path, doc.Type.Name(), doc.Language, strings.Count(doc.Content, "\n"))
	if c.Print {
		fmt.Fprint(g.stdout, doc.Content)
	}
	return nil
}

// FormatCmd formats files.
type FormatCmd struct {
	Paths []string `arg:"" help:"Files to format" type:"existingfile"`
	Write bool     `short:"w" help:"Write the result back to the files"`
}

func (c *FormatCmd) Run(g *Globals) error {
	s, err := g.start(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	var errs []error
	for _, path := range c.Paths {
		out, err := s.app.FormatFile(path, c.Write)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if c.Write {
			fmt.Fprintf(g.stdout, "formatted %s\n", path)
		} else {
			fmt.Fprint(g.stdout, out)
		}
	}
	return errors.Join(errs...)
}

// ExecCmd executes a command with key=value arguments.
type ExecCmd struct {
	ID   string   `arg:"" help:"Command id"`
	Args []string `arg:"" optional:"" help:"Arguments as key=value"`
}

func (c *ExecCmd) Run(g *Globals) error {
	args, err := parseArgs(c.Args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := g.start(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.app.ExecuteCommand(ctx, c.ID, args)
}

// parseArgs turns key=value pairs into command arguments. Values that
// parse as integers or booleans are passed as such.
func parseArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q, want key=value", pair)
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			args[key] = n
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			args[key] = b
			continue
		}
		args[key] = value
	}
	return args, nil
}

// SearchCmd searches a workspace.
type SearchCmd struct {
	Query     string `arg:"" help:"Text to search for"`
	Workspace string `short:"C" help:"Workspace directory" type:"existingdir" default:"."`
}

func (c *SearchCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := g.start(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.app.OpenWorkspace(c.Workspace); err != nil {
		return err
	}
	matches, err := s.app.Search(ctx, c.Query)
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Fprintf(g.stdout, "%s:%d:%s\n", m.Path, m.Line, m.Text)
	}
	return nil
}

// DecompileCmd decompiles an APK.
type DecompileCmd struct {
	APK string `arg:"" help:"APK file" type:"existingfile"`
	Out string `short:"o" help:"Output directory" type:"path"`
}

func (c *DecompileCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := g.start(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	out := c.Out
	if out == "" {
		out = strings.TrimSuffix(c.APK, filepath.Ext(c.APK)) + "_java"
	}
	if err := s.app.Decompile(ctx, c.APK, out); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "decompiled into %s\n", out)
	return nil
}

// ToolCmd runs an external tool directly.
type ToolCmd struct {
	Name    string   `arg:"" help:"Tool name" enum:"apktool,jadx,smali,git"`
	Args    []string `arg:"" optional:"" passthrough:"" help:"Tool arguments"`
	Workdir string   `short:"C" help:"Working directory" type:"existingdir"`
	Which   bool     `help:"Only show where the tool was found"`
}

func (c *ToolCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	resolver := tool.NewResolver(
		tool.WithToolchainDir(cfg.Tools.ToolchainDir),
		tool.WithBundledDir(cfg.Tools.BundledDir),
		tool.WithJava(cfg.Tools.Java),
	)
	runner := tool.NewRunner(resolver,
		tool.WithPollInterval(cfg.Tools.PollInterval.Std()),
		tool.WithGracePeriod(cfg.Tools.GracePeriod.Std()),
	)

	tools := map[string]*tool.Tool{
		"apktool": tool.NewApktool(runner).Tool,
		"jadx":    tool.NewJadx(runner).Tool,
		"smali":   tool.NewSmali(runner).Tool,
		"git":     tool.NewGit(runner).Tool,
	}
	t := tools[c.Name]

	if c.Which {
		loc, err := resolver.Resolve(t.Spec())
		if err != nil {
			return err
		}
		fmt.Fprintf(g.stdout, "%s (%s)\n", strings.Join(loc.Command(nil), " "), loc.Source)
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	res := t.Invoke(ctx, c.Args, c.Workdir, nil)
	fmt.Fprint(g.stdout, res.Output)
	if err := res.Err(); err != nil {
		return err
	}
	return nil
}

// RecentCmd shows the recent lists.
type RecentCmd struct {
	Workspaces bool `help:"Show workspaces instead of files"`
	Clear      bool `help:"Clear the list"`
}

func (c *RecentCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	store, err := settings.Open(cfg.SettingsPath())
	if err != nil {
		return err
	}

	key := settings.KeyRecentFiles
	if c.Workspaces {
		key = settings.KeyRecentWorkspaces
	}
	if c.Clear {
		if err := store.Delete(key); err != nil {
			return err
		}
		return store.Save()
	}
	for _, p := range store.Strings(key) {
		fmt.Fprintln(g.stdout, p)
	}
	return nil
}

// RunCmd keeps the editor core running: plugins are loaded, the plugin
// directory is watched and metrics are served until interrupted.
type RunCmd struct {
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address"`
	NoWatch     bool   `name:"no-watch" help:"Do not watch the plugin directory"`
}

func (c *RunCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := g.start(ctx, func(cfg *config.Config) {
		cfg.Plugins.Watch = !c.NoWatch
		if c.MetricsAddr != "" {
			cfg.Metrics.Addr = c.MetricsAddr
		}
	})
	if err != nil {
		return err
	}
	defer s.Close()

	s.app.Plugins().Subscribe(func(ev plugin.ManagerEvent) {
		s.logger.WithField("plugin", ev.Plugin).Debugf("plugin %s", ev.Type)
	})

	if addr := s.app.Config().Metrics.Addr; addr != "" {
		s.logger.WithField("addr", addr).Info("serving metrics")
		return s.app.Metrics().Serve(ctx, addr)
	}
	<-ctx.Done()
	return nil
}

// ConfigGroup contains configuration file commands.
type ConfigGroup struct {
	Init ConfigInitCmd `cmd:"" help:"Write the default configuration file"`
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
}

// ConfigInitCmd writes the default configuration.
type ConfigInitCmd struct {
	Force bool `help:"Overwrite an existing file"`
}

func (c *ConfigInitCmd) Run(g *Globals) error {
	path := g.Config
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists", path)
	}
	dataDir := g.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	if err := config.Write(config.Default(dataDir), path); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "wrote %s\n", path)
	return nil
}

// ConfigShowCmd prints the effective configuration.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	data, err := config.Encode(cfg)
	if err != nil {
		return err
	}
	_, err = g.stdout.Write(data)
	return err
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout, "apkedit %s (commit %s, built %s)\n", version, commit, date)
	return nil
}
