package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecompiler struct{ name string }

func (f *fakeDecompiler) Decompile(context.Context, string, string) error { return nil }

type fakeProject struct{}

func (fakeProject) Root() string { return "/work" }
func (fakeProject) Name() string { return "work" }

func TestProvideAndGet(t *testing.T) {
	r := NewRegistry()

	_, ok := Get[Decompiler](r)
	assert.False(t, ok)

	d := &fakeDecompiler{name: "jadx"}
	Provide[Decompiler](r, d, "apktools")

	got, ok := Get[Decompiler](r)
	require.True(t, ok)
	assert.Same(t, d, got)

	owner, ok := r.Owner(TypeOf[Decompiler]())
	require.True(t, ok)
	assert.Equal(t, "apktools", owner)
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := &fakeDecompiler{name: "first"}
	second := &fakeDecompiler{name: "second"}

	Provide[Decompiler](r, first, "a")
	Provide[Decompiler](r, second, "b")

	got, _ := Get[Decompiler](r)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())

	// a no longer owns the slot
	assert.False(t, r.Unregister(TypeOf[Decompiler](), "a"))
	assert.True(t, r.Unregister(TypeOf[Decompiler](), "b"))
	_, ok := Get[Decompiler](r)
	assert.False(t, ok)
}

func TestUnregisterByOwner(t *testing.T) {
	r := NewRegistry()
	Provide[Decompiler](r, &fakeDecompiler{}, "p")
	Provide[Project](r, fakeProject{}, "p")
	Provide[Translator](r, nil, "other")

	assert.Equal(t, 2, r.UnregisterByOwner("p"))
	assert.Equal(t, 0, r.UnregisterByOwner("p"))
	assert.Equal(t, 1, r.Len())
	assert.Len(t, r.Types(), 1)
}

func TestRegisterNilTypeIgnored(t *testing.T) {
	r := NewRegistry()
	r.Register(nil, "x", "o")
	assert.Equal(t, 0, r.Len())
}
