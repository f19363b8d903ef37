// Package apktools is the bundled plugin for APK round trips: decoding and
// rebuilding with apktool, decompiling to Java with jadx, opening .apk files
// and the Decompiler service.
package apktools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/command"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/tool"
)

// Implementation is the embedded implementation name.
const Implementation = "bundled.apktools"

// Command IDs.
const (
	CommandDecode    = "apktool.decode"
	CommandBuild     = "apktool.build"
	CommandDecompile = "jadx.decompile"
)

// APKFileType is the binary .apk file type.
var APKFileType = extension.BasicFileType{
	TypeName: "Android Package",
	Exts:     []string{".apk"},
	IconRef:  "android",
	Binary:   true,
}

func init() {
	plugin.RegisterEmbedded(Implementation, func() (plugin.Plugin, error) {
		return New(), nil
	})
}

// Plugin contributes the APK tools. Opening an .apk decodes it in the
// background; Deactivate cancels and waits for running decodes.
type Plugin struct {
	mu     sync.Mutex
	jobs   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{ID: "apktools", DisplayName: "APK Tools", Version: "1.0.0"}
}

// DecodeDir is where an opened APK is decoded: app.apk -> app_src.
func DecodeDir(apk string) string {
	return strings.TrimSuffix(apk, filepath.Ext(apk)) + "_src"
}

// JavaDir is where an APK is decompiled to Java: app.apk -> app_java.
func JavaDir(apk string) string {
	return strings.TrimSuffix(apk, filepath.Ext(apk)) + "_java"
}

// BuildPath is where a decoded directory is rebuilt: app_src -> app_src/dist/app_src.apk.
func BuildPath(dir string) string {
	dir = filepath.Clean(dir)
	return filepath.Join(dir, "dist", filepath.Base(dir)+".apk")
}

// Activate implements plugin.Plugin.
func (p *Plugin) Activate(ctx *plugin.Context) error {
	p.mu.Lock()
	p.jobs, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	runner := hostapi.Runner(ctx)
	apktool := tool.NewApktool(runner)
	jadx := tool.NewJadx(runner)

	ctx.RegisterFileType(APKFileType)

	commands := []command.Command{
		{
			ID:          CommandDecode,
			Title:       "Decode APK",
			Description: "Decode resources and smali sources with apktool",
			Category:    "APK",
			Handler: func(c context.Context, args map[string]any) error {
				apk, err := hostapi.StringArg(args, "apk")
				if err != nil {
					return err
				}
				out := hostapi.StringArgOr(args, "out", DecodeDir(apk))
				return report(ctx, "decode", out, apktool.Decode(c, apk, out, nil))
			},
		},
		{
			ID:          CommandBuild,
			Title:       "Build APK",
			Description: "Rebuild an APK from a decoded directory with apktool",
			Category:    "APK",
			Handler: func(c context.Context, args map[string]any) error {
				dir, err := hostapi.StringArg(args, "dir")
				if err != nil {
					return err
				}
				out := hostapi.StringArgOr(args, "out", BuildPath(dir))
				return report(ctx, "build", out, apktool.Build(c, dir, out, nil))
			},
		},
		{
			ID:          CommandDecompile,
			Title:       "Decompile to Java",
			Description: "Decompile an APK to Java sources with jadx",
			Category:    "APK",
			Handler: func(c context.Context, args map[string]any) error {
				apk, err := hostapi.StringArg(args, "apk")
				if err != nil {
					return err
				}
				out := hostapi.StringArgOr(args, "out", JavaDir(apk))
				return report(ctx, "decompile", out, jadx.Decompile(c, apk, out, nil))
			},
		},
	}
	for i, cmd := range commands {
		if err := ctx.RegisterCommand(cmd); err != nil {
			return err
		}
		ctx.RegisterToolbarItem(extension.Contribution{
			ID:      cmd.ID,
			Title:   cmd.Title,
			Icon:    cmd.ID,
			Command: cmd.ID,
			Group:   "apk",
			Order:   (i + 1) * 10,
		})
	}

	ctx.RegisterFileHandler(&apkHandler{plugin: p, ctx: ctx, apktool: apktool})
	plugin.ProvideService[service.Decompiler](ctx, &decompiler{jadx: jadx})
	return nil
}

// Deactivate implements plugin.Deactivator.
func (p *Plugin) Deactivate() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

// startJob runs fn in the background under the plugin's job context.
func (p *Plugin) startJob(fn func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return false
	}
	jobs := p.jobs
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(jobs)
	}()
	return true
}

func report(ctx *plugin.Context, op, out string, res tool.Result) error {
	if err := res.Err(); err != nil {
		hostapi.Status(ctx, fmt.Sprintf("%s: %s failed: %v", res.Tool, op, err))
		return err
	}
	hostapi.Status(ctx, fmt.Sprintf("%s: %s finished, output in %s", res.Tool, op, out))
	return nil
}

// apkHandler opens .apk files by decoding them next to the archive.
type apkHandler struct {
	plugin  *Plugin
	ctx     *plugin.Context
	apktool *tool.Apktool
}

func (h *apkHandler) CanHandle(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".apk")
}

func (h *apkHandler) HandleOpenFile(path string) bool {
	if !h.CanHandle(path) {
		return false
	}
	out := DecodeDir(path)
	hostapi.Status(h.ctx, "apktool: decoding "+filepath.Base(path))
	return h.plugin.startJob(func(jobs context.Context) {
		_ = report(h.ctx, "decode", out, h.apktool.Decode(jobs, path, out, nil))
	})
}

// decompiler implements service.Decompiler with jadx.
type decompiler struct {
	jadx *tool.Jadx
}

func (d *decompiler) Decompile(ctx context.Context, apkPath, outDir string) error {
	return d.jadx.Decompile(ctx, apkPath, outDir, nil).Err()
}
