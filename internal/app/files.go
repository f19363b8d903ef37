package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/settings"
)

// Document is a file opened in the editor.
type Document struct {
	Path     string
	Type     extension.FileType
	Language extension.Language
	Content  string
}

// OpenResult reports how a file was opened.
type OpenResult struct {
	Path string

	// Handled is true when a plugin's file handler took the file.
	Handled bool

	// Document is the editor document when no handler took the file.
	Document *Document
}

// OpenFile offers path to the registered file handlers in order. If none
// takes it, the file is opened as a text document typed by its extension.
// Binary files nobody handles are refused with ErrBinaryFile.
func (a *App) OpenFile(path string) (*OpenResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &FileError{Op: "open", Path: path, Err: err}
	}
	if err := requireFile(abs); err != nil {
		return nil, &FileError{Op: "open", Path: path, Err: err}
	}

	var handled bool
	err = a.loop.Do(func() error {
		handled = a.host.Handlers.HandleOpenFile(abs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &OpenResult{Path: abs, Handled: handled}
	if handled {
		a.metrics.FilesOpenedTotal.WithLabelValues("handler").Inc()
	} else {
		ft := a.host.FileTypes.ForPath(abs)
		if ft.IsBinary() {
			return nil, &FileError{Op: "open", Path: path, Err: ErrBinaryFile}
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, &FileError{Op: "open", Path: path, Err: err}
		}
		res.Document = &Document{
			Path:     abs,
			Type:     ft,
			Language: extension.LanguageOf(ft),
			Content:  string(content),
		}
		a.metrics.FilesOpenedTotal.WithLabelValues("editor").Inc()
	}

	if err := a.settings.AddRecent(settings.KeyRecentFiles, abs, a.cfg.Editor.RecentLimit); err != nil {
		a.logger.WithError(err).Warn("failed to record recent file")
	}
	return res, nil
}

// FormatText formats src with the formatter registered for lang.
func (a *App) FormatText(lang extension.Language, src string) (string, error) {
	f, ok := a.host.Formatters.Lookup(lang)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoFormatter, lang)
	}

	start := time.Now()
	out, err := f.Format(src)
	a.metrics.FormatDuration.Observe(time.Since(start).Seconds())
	a.metrics.FormatsTotal.WithLabelValues(string(lang), result(err)).Inc()
	if err != nil {
		return "", err
	}
	return out, nil
}

// FormatFile formats the file at path by its file type's language and
// returns the result. With write set, a changed result replaces the file.
func (a *App) FormatFile(path string, write bool) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", &FileError{Op: "format", Path: path, Err: err}
	}

	lang := extension.LanguageOf(a.host.FileTypes.ForPath(path))
	out, err := a.FormatText(lang, string(src))
	if err != nil {
		return "", &FileError{Op: "format", Path: path, Err: err}
	}

	if write && out != string(src) {
		info, err := os.Stat(path)
		if err != nil {
			return "", &FileError{Op: "format", Path: path, Err: err}
		}
		if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
			return "", &FileError{Op: "format", Path: path, Err: err}
		}
	}
	return out, nil
}

// ExecuteCommand runs a registered command. Failures are also shown on the
// status bar.
func (a *App) ExecuteCommand(ctx context.Context, id string, args map[string]any) error {
	err := a.host.Commands.Execute(ctx, id, args)
	a.metrics.CommandsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		a.status.SetMessage(fmt.Sprintf("%s: %v", id, err))
	}
	return err
}

// DispatchShortcut runs the command bound to keys. It reports false when
// nothing is bound.
func (a *App) DispatchShortcut(ctx context.Context, keys string) (bool, error) {
	id, ok := a.host.Shortcuts.Resolve(keys)
	if !ok {
		return false, nil
	}
	return true, a.ExecuteCommand(ctx, id, nil)
}

// Search searches the current workspace with the Search service.
func (a *App) Search(ctx context.Context, query string) ([]service.Match, error) {
	ws, ok := a.Workspace()
	if !ok {
		return nil, ErrNoWorkspace
	}
	s, ok := service.Get[service.Search](a.host.Services)
	if !ok {
		return nil, &ServiceError{Service: "search"}
	}
	return s.Search(ctx, ws.Root(), query)
}

// Decompile decompiles apk into outDir with the Decompiler service.
func (a *App) Decompile(ctx context.Context, apk, outDir string) error {
	d, ok := service.Get[service.Decompiler](a.host.Services)
	if !ok {
		return &ServiceError{Service: "decompiler"}
	}
	return d.Decompile(ctx, apk, outDir)
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	return nil
}

func joinErrors(op string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(errs...))
}
