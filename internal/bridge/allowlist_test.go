package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Game.Example.com", "https://game.example.com"},
		{"https://game.example.com:443", "https://game.example.com"},
		{"http://game.example.com:80/", "http://game.example.com"},
		{"http://localhost:8080", "http://localhost:8080"},
		{"https://[::1]:8443", "https://[::1]:8443"},
		{" null ", "null"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeOrigin(tt.in), "origin %q", tt.in)
	}
}

func TestAllowList(t *testing.T) {
	a := NewAllowList([]string{"https://game.example.com", " ", "http://localhost:3000"})
	assert.False(t, a.Wildcard())
	assert.True(t, a.Allows("https://game.example.com"))
	assert.True(t, a.Allows("HTTPS://GAME.EXAMPLE.COM:443"))
	assert.True(t, a.Allows("http://localhost:3000"))
	assert.False(t, a.Allows("http://localhost:3001"))
	assert.False(t, a.Allows(""))
	assert.False(t, a.Allows("null"))
	assert.ElementsMatch(t, []string{"https://game.example.com", "http://localhost:3000"}, a.Origins())

	w := NewAllowList([]string{"https://game.example.com", "*"})
	assert.True(t, w.Wildcard())
	assert.True(t, w.Allows("https://anything.example.org"))
	assert.Contains(t, w.Origins(), "*")
}

func TestTargetOrigin(t *testing.T) {
	got, err := TargetOrigin("https://cdn.example.com:8443/game/index.html")
	assert.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com:8443", got)

	got, err = TargetOrigin("/games/local/index.html")
	assert.NoError(t, err)
	assert.Equal(t, Wildcard, got)

	_, err = TargetOrigin("http://%zz")
	assert.Error(t, err)
}
