// Package command provides the global command table and the keyboard
// shortcut table that maps key chords onto command IDs.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/apkedit/internal/registry"
)

// Command errors.
var (
	// ErrCommandNotFound is returned when executing an unknown command.
	ErrCommandNotFound = errors.New("command not found")

	// ErrNoHandler is returned when a command has no handler.
	ErrNoHandler = errors.New("command has no handler")

	// ErrInvalidCommand is returned when registering a command without an ID.
	ErrInvalidCommand = errors.New("command id is required")
)

// Handler executes a command.
type Handler func(ctx context.Context, args map[string]any) error

// Command is an executable action addressable by ID.
type Command struct {
	// ID is the unique command identifier (e.g., "apktool.decode").
	ID string

	// Title is the display name shown in menus.
	Title string

	// Description provides additional context about the command.
	Description string

	// Category groups related commands (e.g., "Build", "Git").
	Category string

	// Handler executes the command.
	Handler Handler
}

// Execute runs the command. The args map is cloned so handlers may modify it.
func (c Command) Execute(ctx context.Context, args map[string]any) (err error) {
	if c.Handler == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, c.ID)
	}

	execArgs := make(map[string]any, len(args))
	for k, v := range args {
		execArgs[k] = v
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %q panicked: %v", c.ID, r)
		}
	}()
	return c.Handler(ctx, execArgs)
}

// SearchText returns the text to use for palette matching.
func (c Command) SearchText() string {
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		return c.Title
	}
	return c.Title + " " + desc
}

// Registry is the global command table. Several owners may register the same
// ID; the latest registration is the one executed.
type Registry struct {
	commands *registry.Registry[string, Command]
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: registry.New(registry.WithName[string, Command]("commands")),
	}
}

// Register adds a command owned by owner.
func (r *Registry) Register(cmd Command, owner string) (registry.ID, error) {
	if cmd.ID == "" {
		return 0, ErrInvalidCommand
	}
	return r.commands.Register(cmd.ID, cmd, owner), nil
}

// Lookup returns the visible command for id.
func (r *Registry) Lookup(id string) (Command, bool) {
	return r.commands.Lookup(id)
}

// Has reports whether id resolves to a command.
func (r *Registry) Has(id string) bool {
	_, ok := r.commands.Lookup(id)
	return ok
}

// Execute runs the command registered under id.
func (r *Registry) Execute(ctx context.Context, id string, args map[string]any) error {
	cmd, ok := r.commands.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, id)
	}
	return cmd.Execute(ctx, args)
}

// All returns the visible commands sorted by ID.
func (r *Registry) All() []Command {
	ids := r.commands.Keys()
	sort.Strings(ids)

	out := make([]Command, 0, len(ids))
	for _, id := range ids {
		if cmd, ok := r.commands.Lookup(id); ok {
			out = append(out, cmd)
		}
	}
	return out
}

// Remove removes specific registrations.
func (r *Registry) Remove(ids ...registry.ID) int {
	return r.commands.Remove(ids...)
}

// UnregisterByOwner removes every command registered by owner.
func (r *Registry) UnregisterByOwner(owner string) int {
	return r.commands.UnregisterByOwner(owner)
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	return r.commands.Len()
}
