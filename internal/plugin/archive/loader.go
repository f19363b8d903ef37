package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	plua "github.com/dshills/apkedit/internal/plugin/lua"
	"github.com/dshills/apkedit/internal/plugin/security"
)

// HostModule is the module name archives require to reach the host API.
const HostModule = "apkedit"

// APIVersion is the host API version exposed as apkedit.api_version.
const APIVersion = 1

// DefaultExtensions are the archive file extensions scanned by default.
var DefaultExtensions = []string{".jar", ".zip"}

// Provider reports whether an implementation is already available from a
// parent loader.
type Provider interface {
	Provides(name string) bool
}

// ScanResult is the outcome of loading one archive.
type ScanResult struct {
	Path     string
	Checksum string

	// Plugins lists the implementations discovered from the archive.
	Plugins []string

	// Capabilities are the ones the archive's manifest was granted.
	Capabilities []security.Capability

	// Closed is true when the archive's isolation unit was closed during
	// the scan because nothing was discovered from it.
	Closed bool

	Err error
}

// Loader discovers plugins from the archives in one directory. Every
// archive is opened into its own isolation unit: the zip reader plus a
// sandboxed Lua state that can only require modules from that archive and
// the host module.
type Loader struct {
	dir         string
	logger      *logrus.Entry
	extensions  []string
	parent      Provider
	timeout     time.Duration
	concurrency int

	mu   sync.Mutex
	last []ScanResult
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger.WithField("component", "archive-loader")
		}
	}
}

// WithExtensions sets the archive file extensions to scan.
func WithExtensions(exts ...string) Option {
	return func(l *Loader) {
		l.extensions = nil
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			l.extensions = append(l.extensions, ext)
		}
	}
}

// WithParent skips implementations parent already provides.
func WithParent(parent Provider) Option {
	return func(l *Loader) {
		l.parent = parent
	}
}

// WithExecutionTimeout bounds every call into archive Lua code.
func WithExecutionTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

// WithConcurrency limits how many archives are opened at once.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		l.concurrency = n
	}
}

// NewLoader creates a loader for the archives in dir.
func NewLoader(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir:         dir,
		logger:      logrus.New().WithField("component", "archive-loader"),
		extensions:  DefaultExtensions,
		timeout:     plua.DefaultExecutionTimeout,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the scanned directory.
func (l *Loader) Dir() string {
	return l.dir
}

// IsArchive reports whether path has one of the scanned extensions.
func (l *Loader) IsArchive(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range l.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Archives returns the archive files in the directory, sorted. A missing
// directory holds no archives.
func (l *Loader) Archives() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plugin directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !l.IsArchive(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(l.dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LastScan returns the per-archive results of the most recent Load.
func (l *Loader) LastScan() []ScanResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ScanResult, len(l.last))
	copy(out, l.last)
	return out
}

// Load implements plugin.Loader. Archives are opened concurrently. An
// archive that cannot be opened, or an implementation that fails to load,
// is logged and skipped. The result is sorted by implementation name.
func (l *Loader) Load(ctx context.Context) ([]plugin.Discovered, error) {
	paths, err := l.Archives()
	if err != nil {
		return nil, err
	}

	found := make([][]plugin.Discovered, len(paths))
	results := make([]ScanResult, len(paths))

	eg, egctx := errgroup.WithContext(ctx)
	if l.concurrency > 0 {
		eg.SetLimit(l.concurrency)
	}
	for i, path := range paths {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				results[i] = ScanResult{Path: path, Err: err}
				return err
			}
			found[i], results[i] = l.loadArchive(path)
			return nil
		})
	}
	waitErr := eg.Wait()

	var all []plugin.Discovered
	for _, f := range found {
		all = append(all, f...)
	}

	if waitErr != nil {
		plugin.ReleaseAll(all)
		return nil, waitErr
	}

	l.mu.Lock()
	l.last = results
	l.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Descriptor.Implementation < all[j].Descriptor.Implementation
	})
	return all, nil
}

// loadArchive opens one archive as an isolation unit and instantiates its
// implementations.
func (l *Loader) loadArchive(path string) ([]plugin.Discovered, ScanResult) {
	result := ScanResult{Path: path}
	log := l.logger.WithField("archive", filepath.Base(path))

	checksum, err := Checksum(path)
	if err != nil {
		result.Err = err
		log.WithError(err).Warn("failed to read plugin archive")
		return nil, result
	}
	result.Checksum = checksum

	zr, err := zip.OpenReader(path)
	if err != nil {
		result.Err = fmt.Errorf("failed to open archive: %w", err)
		log.WithError(err).Warn("failed to open plugin archive")
		return nil, result
	}

	manifest, err := ReadManifest(&zr.Reader)
	if err != nil {
		_ = zr.Close()
		result.Err = err
		result.Closed = true
		log.WithError(err).Warn("invalid plugin archive manifest")
		return nil, result
	}

	state := plua.NewState(filepath.Base(path), &zr.Reader,
		plua.WithHostModule(HostModule, hostModule(manifest)),
		plua.WithExecutionTimeout(l.timeout),
	)
	unit := plugin.NewBoundary(path, &isolationUnit{state: state, zip: zr})
	unit.OnClose(func(name string, err error) {
		if err != nil {
			l.logger.WithError(err).WithField("archive", filepath.Base(name)).Warn("failed to close plugin archive")
		}
	})

	perms := manifest.Permissions()
	result.Capabilities = perms.Capabilities()

	var plugins []plugin.Discovered
	for _, impl := range manifest.Implementations {
		implLog := log.WithField("implementation", impl.Name)

		if l.parent != nil && l.parent.Provides(impl.Name) {
			implLog.Debug("implementation provided by parent loader")
			continue
		}

		p, err := newLuaPlugin(state, impl, manifest, perms)
		if err != nil {
			implLog.WithError(err).Warn("archive plugin failed to load")
			continue
		}

		plugins = append(plugins, plugin.Discovered{
			Descriptor: plugin.Descriptor{
				Info:           p.Info(),
				Origin:         plugin.OriginArchive,
				SourcePath:     path,
				Implementation: impl.Name,
				Checksum:       checksum,
			},
			Plugin:   p,
			Boundary: unit,
		})
		result.Plugins = append(result.Plugins, impl.Name)
	}

	if len(plugins) == 0 {
		unit.Release()
		result.Closed = true
		log.Debug("no plugins in archive, closed")
		return nil, result
	}

	// NewBoundary handed us one reference; every further plugin needs its own.
	for range plugins[1:] {
		if err := unit.Acquire(); err != nil {
			result.Err = err
			return nil, result
		}
	}

	log.WithField("plugins", len(plugins)).Debug("loaded plugin archive")
	return plugins, result
}

// Checksum returns the hex blake3 digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isolationUnit is the resource behind an archive's boundary.
type isolationUnit struct {
	state *plua.State
	zip   *zip.ReadCloser
}

func (u *isolationUnit) Close() error {
	return errors.Join(u.state.Close(), u.zip.Close())
}

// hostModule returns the loader for the shared apkedit module.
func hostModule(m *Manifest) lua.LGFunction {
	return func(L *lua.LState) int {
		mod := L.NewTable()
		mod.RawSetString("api_version", lua.LNumber(APIVersion))
		mod.RawSetString("archive", lua.LString(m.Name))
		mod.RawSetString("archive_version", lua.LString(m.Version))

		langs := L.NewTable()
		for _, lang := range []extension.Language{
			extension.LangPlainText,
			extension.LangSmali,
			extension.LangJava,
			extension.LangJSON,
			extension.LangYAML,
			extension.LangXML,
		} {
			langs.RawSetString(string(lang), lua.LString(lang))
		}
		mod.RawSetString("languages", langs)

		L.Push(mod)
		return 1
	}
}
