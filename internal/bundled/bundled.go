// Package bundled links the plugins that ship with the editor. Importing it
// registers every bundled implementation with the embedded loader.
package bundled

import (
	"github.com/dshills/apkedit/internal/bundled/apktools"
	"github.com/dshills/apkedit/internal/bundled/data"
	"github.com/dshills/apkedit/internal/bundled/git"
	"github.com/dshills/apkedit/internal/bundled/i18n"
	"github.com/dshills/apkedit/internal/bundled/smali"
)

// Implementations returns the bundled implementation names, sorted.
func Implementations() []string {
	return []string{
		apktools.Implementation,
		data.Implementation,
		git.Implementation,
		i18n.Implementation,
		smali.Implementation,
	}
}
