package tool

import (
	"context"
)

// Apktool decodes and rebuilds APKs.
type Apktool struct {
	*Tool
}

// NewApktool creates the apktool wrapper.
func NewApktool(runner *Runner) *Apktool {
	return &Apktool{New(Spec{
		Name:         "apktool",
		Binary:       "apktool",
		Jar:          "apktool.jar",
		InstallPaths: CommonInstallPaths(),
	}, runner)}
}

// Decode unpacks apk into outDir, overwriting it.
func (a *Apktool) Decode(ctx context.Context, apk, outDir string, cancel CancelFunc) Result {
	return a.Invoke(ctx, []string{"d", "-f", "-o", outDir, apk}, "", cancel)
}

// Build packs srcDir into outApk.
func (a *Apktool) Build(ctx context.Context, srcDir, outApk string, cancel CancelFunc) Result {
	return a.Invoke(ctx, []string{"b", srcDir, "-o", outApk}, "", cancel)
}

// Jadx decompiles APKs and dex files to Java.
type Jadx struct {
	*Tool
}

// NewJadx creates the jadx wrapper.
func NewJadx(runner *Runner) *Jadx {
	return &Jadx{New(Spec{
		Name:         "jadx",
		Binary:       "jadx",
		Jar:          "jadx.jar",
		InstallPaths: CommonInstallPaths(),
	}, runner)}
}

// Decompile writes Java sources for input into outDir.
func (j *Jadx) Decompile(ctx context.Context, input, outDir string, cancel CancelFunc) Result {
	return j.Invoke(ctx, []string{"-d", outDir, input}, "", cancel)
}

// Smali assembles smali sources into dex files.
type Smali struct {
	*Tool
}

// NewSmali creates the smali assembler wrapper.
func NewSmali(runner *Runner) *Smali {
	return &Smali{New(Spec{
		Name:         "smali",
		Binary:       "smali",
		Jar:          "smali.jar",
		InstallPaths: CommonInstallPaths(),
	}, runner)}
}

// Assemble compiles the smali sources in srcDir into outDex.
func (s *Smali) Assemble(ctx context.Context, srcDir, outDex string, cancel CancelFunc) Result {
	return s.Invoke(ctx, []string{"assemble", srcDir, "-o", outDex}, "", cancel)
}

// Git runs git commands.
type Git struct {
	*Tool
}

// NewGit creates the git wrapper.
func NewGit(runner *Runner) *Git {
	return &Git{New(Spec{
		Name:         "git",
		Binary:       "git",
		InstallPaths: CommonInstallPaths(),
	}, runner)}
}

// Run executes git with args in workDir.
func (g *Git) Run(ctx context.Context, workDir string, cancel CancelFunc, args ...string) Result {
	return g.Invoke(ctx, args, workDir, cancel)
}
