package service

import "context"

// Decompiler turns an APK into Java sources.
type Decompiler interface {
	Decompile(ctx context.Context, apkPath, outDir string) error
}

// Match is a single search hit.
type Match struct {
	Path string
	Line int
	Text string
}

// Search finds text inside a workspace.
type Search interface {
	Search(ctx context.Context, root, query string) ([]Match, error)
}

// Project describes the workspace currently open in the editor.
type Project interface {
	Root() string
	Name() string
}

// Translator resolves UI strings for a locale.
type Translator interface {
	// Translate returns the message for key, or key itself when unknown.
	Translate(locale, key string) string
	Locales() []string
}

// StatusBar shows short messages to the user. Implementations must accept
// calls from any goroutine.
type StatusBar interface {
	SetMessage(msg string)
}
