package dance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rave/pkg/motion"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	for _, cat := range []Category{Bounce, Sway, Shuffle, Pump, Spin} {
		assert.GreaterOrEqual(t, len(c.Category(cat)), 2, "%s needs alternatives", cat)
	}
	assert.Len(t, c.Category(Spin), 6)

	for _, p := range c.Patterns() {
		assert.True(t, p.Moves[0].Direction.Moving(), "%s starts moving", p.Name)
		assert.Positive(t, p.Length())
	}

	p, ok := c.Lookup("Head Bang")
	require.True(t, ok)
	assert.Equal(t, Pump, p.Category)
	assert.Equal(t, High, p.Energy)
	assert.Equal(t, "thrust_forward", p.Moves[0].Name)

	_, ok = c.Lookup("Macarena")
	assert.False(t, ok)
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		patterns []Pattern
	}{
		{"empty", nil},
		{"no name", []Pattern{{Category: Bounce, Moves: moves(pulseForward)}}},
		{"no moves", []Pattern{{Name: "a", Category: Bounce}}},
		{"starts with hold", []Pattern{{Name: "a", Category: Bounce, Moves: moves(holdBeat, pulseForward)}}},
		{"duplicate", []Pattern{
			{Name: "a", Category: Bounce, Moves: moves(pulseForward)},
			{Name: "a", Category: Sway, Moves: moves(pulseBack)},
		}},
		{"bad category", []Pattern{{Name: "a", Category: numCategories, Moves: moves(pulseForward)}}},
	}
	for _, tt := range tests {
		_, err := NewCatalog(tt.patterns)
		assert.ErrorIs(t, err, ErrInvalidCatalog, tt.name)
	}
}

func TestCatalog_IsolatedFromCaller(t *testing.T) {
	src := []Pattern{{Name: "a", Category: Bounce, Moves: moves(pulseForward, pulseBack)}}
	c, err := NewCatalog(src)
	require.NoError(t, err)

	src[0].Moves[0] = holdBeat
	p, _ := c.Lookup("a")
	assert.Equal(t, motion.Forward, p.Moves[0].Direction)
}
