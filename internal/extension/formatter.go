package extension

import (
	"github.com/dshills/apkedit/internal/registry"
)

// Formatter rewrites source text into canonical form.
type Formatter interface {
	Format(src string) (string, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(src string) (string, error)

// Format implements Formatter.
func (f FormatterFunc) Format(src string) (string, error) {
	return f(src)
}

// Formatters maps languages onto formatters.
type Formatters struct {
	reg *registry.Registry[Language, Formatter]
}

// NewFormatters creates an empty formatter registry.
func NewFormatters() *Formatters {
	return &Formatters{
		reg: registry.New(registry.WithName[Language, Formatter]("formatters")),
	}
}

// Register adds f for lang.
func (r *Formatters) Register(lang Language, f Formatter, owner string) registry.ID {
	return r.reg.Register(lang, f, owner)
}

// Lookup returns the formatter registered for lang.
func (r *Formatters) Lookup(lang Language) (Formatter, bool) {
	return r.reg.Lookup(lang)
}

// Languages returns the languages that currently have a formatter.
func (r *Formatters) Languages() []Language {
	return r.reg.Keys()
}

// Remove removes specific registrations.
func (r *Formatters) Remove(ids ...registry.ID) int {
	return r.reg.Remove(ids...)
}

// UnregisterByOwner removes every formatter registered by owner.
func (r *Formatters) UnregisterByOwner(owner string) int {
	return r.reg.UnregisterByOwner(owner)
}

// Len returns the number of registrations.
func (r *Formatters) Len() int {
	return r.reg.Len()
}
