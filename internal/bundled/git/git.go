// Package git is the bundled source control plugin. It adds the source
// control panel to the activity bar, git commands, and a Search service
// backed by git grep.
package git

import (
	"context"
	"fmt"

	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/command"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/tool"
)

// Implementation is the embedded implementation name.
const Implementation = "bundled.git"

// Command IDs.
const (
	CommandStatus = "git.status"
	CommandCommit = "git.commit"
)

// ShortcutStatus opens the source control status.
const ShortcutStatus = "ctrl+shift+g"

func init() {
	plugin.RegisterEmbedded(Implementation, func() (plugin.Plugin, error) {
		return New(), nil
	})
}

// Plugin contributes git integration.
type Plugin struct{}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{ID: "git", DisplayName: "Git", Version: "1.0.0"}
}

// Activate implements plugin.Plugin.
func (p *Plugin) Activate(ctx *plugin.Context) error {
	git := tool.NewGit(hostapi.Runner(ctx))

	ctx.RegisterActivityBarItem(extension.Contribution{
		ID:      "git.panel",
		Title:   "Source Control",
		Icon:    "git",
		Command: CommandStatus,
		Order:   20,
	})

	err := ctx.RegisterCommand(command.Command{
		ID:          CommandStatus,
		Title:       "Git: Status",
		Description: "Show the branch and number of changed files",
		Category:    "Git",
		Handler: func(c context.Context, args map[string]any) error {
			root, err := hostapi.StringArg(args, "root")
			if err != nil {
				return err
			}
			res := git.Run(c, root, nil, "status", "--porcelain=v1", "--branch")
			if err := res.Err(); err != nil {
				return err
			}
			st := ParseStatus(res.Output)
			hostapi.Status(ctx, st.String())
			return nil
		},
	})
	if err != nil {
		return err
	}

	err = ctx.RegisterCommand(command.Command{
		ID:          CommandCommit,
		Title:       "Git: Commit All",
		Description: "Stage every change and commit it",
		Category:    "Git",
		Handler: func(c context.Context, args map[string]any) error {
			root, err := hostapi.StringArg(args, "root")
			if err != nil {
				return err
			}
			msg, err := hostapi.StringArg(args, "message")
			if err != nil {
				return err
			}
			if res := git.Run(c, root, nil, "add", "--all"); !res.OK() {
				return res.Err()
			}
			if res := git.Run(c, root, nil, "commit", "--message", msg); !res.OK() {
				return res.Err()
			}
			hostapi.Status(ctx, fmt.Sprintf("git: committed %q", msg))
			return nil
		},
	})
	if err != nil {
		return err
	}

	if err := ctx.BindShortcut(ShortcutStatus, CommandStatus); err != nil {
		return err
	}

	plugin.ProvideService[service.Search](ctx, NewSearch(git))
	return nil
}
