package fallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstShortCircuits(t *testing.T) {
	var ran []string
	step := func(name string, v string, ok bool) Step[string] {
		return Of(name, func(context.Context) (string, bool) {
			ran = append(ran, name)
			return v, ok
		})
	}

	v, name, ok := First(context.Background(),
		step("dir", "", false),
		step("package", "/etc/apache2", true),
		step("which", "/usr/sbin/apache2", true),
	)
	assert.True(t, ok)
	assert.Equal(t, "/etc/apache2", v)
	assert.Equal(t, "package", name)
	assert.Equal(t, []string{"dir", "package"}, ran)
}

func TestFirstNothing(t *testing.T) {
	v, ok := FirstValue(context.Background(),
		NonEmpty("a", func(context.Context) string { return "" }),
		Step[string]{Name: "nil"},
	)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestFirstDefault(t *testing.T) {
	v, name, ok := First(context.Background(),
		NonEmpty("probe", func(context.Context) string { return "" }),
		Value("default", "debian"),
	)
	assert.True(t, ok)
	assert.Equal(t, "debian", v)
	assert.Equal(t, "default", name)
}

func TestFirstCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := FirstValue(ctx, Value("x", 1))
	assert.False(t, ok)
}
