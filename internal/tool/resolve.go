package tool

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of remembered tool locations.
const DefaultCacheSize = 64

// Source records which resolution step located a tool.
type Source string

// Resolution sources, in probe order.
const (
	SourceToolchain Source = "toolchain"
	SourceBundled   Source = "bundled"
	SourcePath      Source = "path"
	SourceInstall   Source = "install"
)

// Location is a resolved tool command.
type Location struct {
	// Path is the executable to run.
	Path string

	// Args are prepended to every invocation (e.g., "-jar", "apktool.jar").
	Args []string

	Source Source
}

// Command returns the full argv for args.
func (l Location) Command(args []string) []string {
	argv := make([]string, 0, 1+len(l.Args)+len(args))
	argv = append(argv, l.Path)
	argv = append(argv, l.Args...)
	return append(argv, args...)
}

// resolution is a cached lookup, including misses.
type resolution struct {
	loc Location
	err error
}

// Resolver locates tools and remembers the result for the process lifetime.
// Concurrent lookups of the same tool probe the file system once.
type Resolver struct {
	toolchainDir string
	bundledDir   string
	java         string
	lookPath     func(string) (string, error)
	logger       *logrus.Entry

	cache *lru.Cache[string, resolution]
	group singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithToolchainDir sets the directory probed first.
func WithToolchainDir(dir string) ResolverOption {
	return func(r *Resolver) {
		r.toolchainDir = dir
	}
}

// WithBundledDir sets the directory holding bundled tool jars.
func WithBundledDir(dir string) ResolverOption {
	return func(r *Resolver) {
		r.bundledDir = dir
	}
}

// WithJava sets the java launcher used for bundled jars.
func WithJava(java string) ResolverOption {
	return func(r *Resolver) {
		r.java = java
	}
}

// WithLookPath replaces the PATH probe.
func WithLookPath(fn func(string) (string, error)) ResolverOption {
	return func(r *Resolver) {
		r.lookPath = fn
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *logrus.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger.WithField("component", "tool-resolver")
		}
	}
}

// NewResolver creates a resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		java:     "java",
		lookPath: exec.LookPath,
		logger:   logrus.New().WithField("component", "tool-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}

	cache, err := lru.New[string, resolution](DefaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("tool: lru cache: %v", err))
	}
	r.cache = cache
	return r
}

// Resolve locates spec, consulting the cache first. A miss returns an
// error wrapping ErrNotFound and is cached as well.
func (r *Resolver) Resolve(spec Spec) (Location, error) {
	if res, ok := r.cache.Get(spec.Name); ok {
		return res.loc, res.err
	}

	v, _, _ := r.group.Do(spec.Name, func() (any, error) {
		if res, ok := r.cache.Get(spec.Name); ok {
			return res, nil
		}
		loc, err := r.probe(spec)
		res := resolution{loc: loc, err: err}
		r.cache.Add(spec.Name, res)

		log := r.logger.WithField("tool", spec.Name)
		if err != nil {
			log.Debug("tool not found")
		} else {
			log.WithField("source", loc.Source).WithField("path", loc.Path).Debug("tool resolved")
		}
		return res, nil
	})
	res := v.(resolution)
	return res.loc, res.err
}

// Forget drops the cached location of name so the next Resolve probes again.
func (r *Resolver) Forget(name string) {
	r.cache.Remove(name)
}

func (r *Resolver) probe(spec Spec) (Location, error) {
	binary := spec.Binary
	if binary == "" {
		binary = spec.Name
	}

	if r.toolchainDir != "" {
		if p, ok := executable(filepath.Join(r.toolchainDir, binary)); ok {
			return Location{Path: p, Source: SourceToolchain}, nil
		}
	}

	if r.bundledDir != "" && spec.Jar != "" {
		jar := filepath.Join(r.bundledDir, spec.Jar)
		if isFile(jar) {
			if java, err := r.lookPath(r.java); err == nil {
				return Location{Path: java, Args: []string{"-jar", jar}, Source: SourceBundled}, nil
			}
			r.logger.WithField("tool", spec.Name).Warn("bundled jar found but java is not available")
		}
	}

	if p, err := r.lookPath(binary); err == nil {
		return Location{Path: p, Source: SourcePath}, nil
	}

	for _, dir := range spec.InstallPaths {
		if p, ok := executable(filepath.Join(dir, binary)); ok {
			return Location{Path: p, Source: SourceInstall}, nil
		}
	}

	return Location{}, fmt.Errorf("%w: %s", ErrNotFound, spec.Name)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// executable reports whether path, or path.exe on Windows, is an
// executable regular file.
func executable(path string) (string, bool) {
	candidates := []string{path}
	if runtime.GOOS == "windows" {
		candidates = append(candidates, path+".exe", path+".bat")
	}
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if runtime.GOOS == "windows" || info.Mode().Perm()&0o111 != 0 {
			return p, true
		}
	}
	return "", false
}

// CommonInstallPaths are the directories probed last on this platform.
func CommonInstallPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/opt/homebrew/bin", "/usr/local/bin"}
	case "windows":
		return []string{`C:\Program Files\Git\cmd`, `C:\tools`}
	default:
		return []string{"/usr/local/bin", "/usr/bin", "/opt/android-tools/bin", "/snap/bin"}
	}
}
