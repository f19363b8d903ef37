package extension

import (
	"path/filepath"
	"strings"

	"github.com/dshills/apkedit/internal/registry"
)

// Language identifies the language a file is written in. Highlighters and
// formatters are keyed by it.
type Language string

// Well-known languages.
const (
	LangPlainText Language = "plaintext"
	LangSmali     Language = "smali"
	LangJava      Language = "java"
	LangJSON      Language = "json"
	LangYAML      Language = "yaml"
	LangXML       Language = "xml"
)

// FileType describes a kind of file the editor can recognize.
type FileType interface {
	// Name returns the globally unique file type name.
	Name() string

	// Extensions returns the file extensions claimed by this type.
	Extensions() []string

	// Icon returns an opaque icon reference.
	Icon() string

	// IsBinary reports whether files of this type should not be opened as text.
	IsBinary() bool
}

// Languaged is implemented by file types that know their language.
type Languaged interface {
	Language() Language
}

// BasicFileType is a value FileType.
type BasicFileType struct {
	TypeName string
	Exts     []string
	IconRef  string
	Binary   bool
	Lang     Language
}

// Name implements FileType.
func (f BasicFileType) Name() string { return f.TypeName }

// Extensions implements FileType.
func (f BasicFileType) Extensions() []string { return f.Exts }

// Icon implements FileType.
func (f BasicFileType) Icon() string { return f.IconRef }

// IsBinary implements FileType.
func (f BasicFileType) IsBinary() bool { return f.Binary }

// Language implements Languaged.
func (f BasicFileType) Language() Language { return f.Lang }

// Unknown is returned for paths no registered file type claims.
var Unknown FileType = BasicFileType{
	TypeName: "unknown",
	IconRef:  "file-binary",
	Binary:   true,
	Lang:     LangPlainText,
}

// LanguageOf returns the language of ft, or LangPlainText.
func LanguageOf(ft FileType) Language {
	if l, ok := ft.(Languaged); ok && l.Language() != "" {
		return l.Language()
	}
	return LangPlainText
}

// NormalizeExt lowercases ext and ensures a leading dot. An empty
// extension stays empty.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// FileTypes maps file extensions onto file types.
type FileTypes struct {
	reg *registry.Registry[string, FileType]
}

// NewFileTypes creates an empty file type registry.
func NewFileTypes() *FileTypes {
	return &FileTypes{
		reg: registry.New(registry.WithName[string, FileType]("filetypes")),
	}
}

// Register adds ft under each of its extensions. It returns one registration
// per extension.
func (r *FileTypes) Register(ft FileType, owner string) []ExtRegistration {
	if ft == nil {
		return nil
	}
	var regs []ExtRegistration
	for _, ext := range ft.Extensions() {
		ext = NormalizeExt(ext)
		if ext == "" {
			continue
		}
		regs = append(regs, ExtRegistration{Ext: ext, ID: r.reg.Register(ext, ft, owner)})
	}
	return regs
}

// ExtRegistration is one extension a file type was registered under.
type ExtRegistration struct {
	Ext string
	ID  registry.ID
}

// Lookup returns the file type registered for ext. Both "smali" and
// ".SMALI" resolve the same entry.
func (r *FileTypes) Lookup(ext string) (FileType, bool) {
	return r.reg.Lookup(NormalizeExt(ext))
}

// ForPath returns the file type for path, falling back to Unknown.
func (r *FileTypes) ForPath(path string) FileType {
	if ft, ok := r.Lookup(filepath.Ext(path)); ok {
		return ft
	}
	return Unknown
}

// All returns every registered file type once, in registration order.
func (r *FileTypes) All() []FileType {
	seen := make(map[string]bool)
	var out []FileType
	for _, ft := range r.reg.All() {
		if seen[ft.Name()] {
			continue
		}
		seen[ft.Name()] = true
		out = append(out, ft)
	}
	return out
}

// Remove removes specific registrations.
func (r *FileTypes) Remove(ids ...registry.ID) int {
	return r.reg.Remove(ids...)
}

// UnregisterByOwner removes every file type registered by owner.
func (r *FileTypes) UnregisterByOwner(owner string) int {
	return r.reg.UnregisterByOwner(owner)
}

// Len returns the number of extension registrations.
func (r *FileTypes) Len() int {
	return r.reg.Len()
}
