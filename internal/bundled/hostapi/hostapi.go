// Package hostapi holds the helpers bundled plugins use to reach services
// the application provides: the external tool runner and the status bar.
package hostapi

import (
	"errors"
	"fmt"

	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/tool"
)

// Owner tags services registered by the application itself.
const Owner = plugin.HostOwner

// ErrMissingArgument is returned by commands called without a required
// argument.
var ErrMissingArgument = errors.New("missing argument")

// Runner returns the application's tool runner, or a default runner when
// none was provided.
func Runner(ctx *plugin.Context) *tool.Runner {
	if r, ok := plugin.ServiceOf[*tool.Runner](ctx); ok && r != nil {
		return r
	}
	return tool.NewRunner(nil)
}

// Status shows msg on the status bar, if there is one, and logs it.
func Status(ctx *plugin.Context, msg string) {
	ctx.Logger().Info(msg)
	if sb, ok := plugin.ServiceOf[service.StatusBar](ctx); ok && sb != nil {
		sb.SetMessage(msg)
	}
}

// StringArg returns the non-empty string argument key.
func StringArg(args map[string]any, key string) (string, error) {
	s, _ := args[key].(string)
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	return s, nil
}

// StringArgOr returns the string argument key, or def when it is unset.
func StringArgOr(args map[string]any, key, def string) string {
	if s, _ := args[key].(string); s != "" {
		return s
	}
	return def
}
