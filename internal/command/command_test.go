package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	var got map[string]any
	_, err := r.Register(Command{
		ID:    "apktool.decode",
		Title: "Decode APK",
		Handler: func(_ context.Context, args map[string]any) error {
			got = args
			args["mutated"] = true
			return nil
		},
	}, "apktools")
	require.NoError(t, err)

	args := map[string]any{"path": "app.apk"}
	require.NoError(t, r.Execute(context.Background(), "apktool.decode", args))
	assert.Equal(t, "app.apk", got["path"])
	_, leaked := args["mutated"]
	assert.False(t, leaked, "handler must receive a copy of args")
}

func TestRegistryExecuteUnknown(t *testing.T) {
	r := NewRegistry()
	err := r.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(Command{Title: "x"}, "o")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestRegistryNoHandler(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(Command{ID: "noop"}, "o")
	require.NoError(t, err)
	assert.ErrorIs(t, r.Execute(context.Background(), "noop", nil), ErrNoHandler)
}

func TestRegistryPanicBecomesError(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register(Command{
		ID:      "boom",
		Handler: func(context.Context, map[string]any) error { panic("kaboom") },
	}, "o")

	err := r.Execute(context.Background(), "boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRegistryLastWinsAndOwnerSweep(t *testing.T) {
	r := NewRegistry()
	errA := errors.New("a")
	errB := errors.New("b")
	_, _ = r.Register(Command{ID: "x", Handler: func(context.Context, map[string]any) error { return errA }}, "a")
	_, _ = r.Register(Command{ID: "x", Handler: func(context.Context, map[string]any) error { return errB }}, "b")

	assert.ErrorIs(t, r.Execute(context.Background(), "x", nil), errB)

	assert.Equal(t, 1, r.UnregisterByOwner("b"))
	assert.ErrorIs(t, r.Execute(context.Background(), "x", nil), errA)

	assert.Equal(t, 1, r.UnregisterByOwner("a"))
	assert.False(t, r.Has("x"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register(Command{ID: "git.status"}, "git")
	_, _ = r.Register(Command{ID: "apktool.build"}, "apktools")
	_, _ = r.Register(Command{ID: "apktool.build", Title: "Build"}, "other")

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "apktool.build", all[0].ID)
	assert.Equal(t, "Build", all[0].Title)
	assert.Equal(t, "git.status", all[1].ID)
}

func TestCommandSearchText(t *testing.T) {
	assert.Equal(t, "Status", Command{Title: "Status"}.SearchText())
	assert.Equal(t, "Status show changes", Command{Title: "Status", Description: " show changes "}.SearchText())
}
