package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeys(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ctrl+Shift+P", "ctrl+shift+p"},
		{"shift+ctrl+p", "ctrl+shift+p"},
		{"shift-ctrl-p", "ctrl+shift+p"},
		{"<C-s>", "ctrl+s"},
		{"cmd+alt+F5", "alt+meta+f5"},
		{"ctrl+ctrl+k", "ctrl+k"},
		{"f1", "f1"},
		{"-", "-"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeKeys(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeKeysInvalid(t *testing.T) {
	for _, in := range []string{"", "  ", "ctrl++p", "foo+p"} {
		_, err := NormalizeKeys(in)
		assert.ErrorIs(t, err, ErrInvalidShortcut, in)
	}
}

func TestShortcutsDispatch(t *testing.T) {
	cmds := NewRegistry()
	ran := 0
	_, _ = cmds.Register(Command{ID: "git.status", Handler: func(context.Context, map[string]any) error {
		ran++
		return nil
	}}, "git")

	s := NewShortcuts()
	_, err := s.Bind("Ctrl+Shift+G", "git.status", "git")
	require.NoError(t, err)

	id, ok := s.Resolve("shift+ctrl+g")
	require.True(t, ok)
	assert.Equal(t, "git.status", id)

	handled, err := s.Dispatch(context.Background(), "ctrl+shift+g", cmds)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, ran)

	handled, err = s.Dispatch(context.Background(), "ctrl+q", cmds)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestShortcutsOwnerSweepRestoresPrevious(t *testing.T) {
	s := NewShortcuts()
	_, _ = s.Bind("ctrl+b", "apktool.build", "apktools")
	_, _ = s.Bind("ctrl+b", "custom.build", "custom")

	id, _ := s.Resolve("ctrl+b")
	assert.Equal(t, "custom.build", id)

	assert.Equal(t, 1, s.UnregisterByOwner("custom"))
	id, _ = s.Resolve("ctrl+b")
	assert.Equal(t, "apktool.build", id)
	assert.Len(t, s.All(), 1)
}

func TestShortcutsBindRequiresCommand(t *testing.T) {
	s := NewShortcuts()
	_, err := s.Bind("ctrl+b", "", "o")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}
