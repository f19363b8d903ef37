package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusBarMessages(t *testing.T) {
	s := NewStatusBar(2)
	assert.Empty(t, s.Message())

	var seen []string
	stop := s.Listen(func(m StatusMessage) { seen = append(seen, m.Text) })

	s.SetMessage("one")
	s.SetMessage("two")
	s.SetMessage("three")
	assert.Equal(t, "three", s.Message())

	history := s.History()
	assert.Len(t, history, 2)
	assert.Equal(t, "two", history[0].Text)
	assert.Equal(t, []string{"one", "two", "three"}, seen)

	stop()
	s.SetMessage("four")
	assert.Len(t, seen, 3)
}
